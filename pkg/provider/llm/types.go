package llm

// Request carries everything the LLM needs to produce a translation reply.
// Callers should treat a zero-value request as invalid; at minimum Prompt must
// be non-empty.
type Request struct {
	// System is an optional high-priority instruction injected before the
	// prompt. The translation pipeline uses it for the sectioned-output
	// directive. Providers without a dedicated system slot should prepend it
	// as a "system"-role message.
	System string

	// Prompt is the user-role text that drives the response. For translation
	// calls this is the sentence to translate.
	Prompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Lower
	// values produce more deterministic outputs. Translation calls run close
	// to 0 so that repeated requests yield stable section layouts.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the system directive
	// and prompt. This value directly affects billing.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Provided as a
	// convenience; some providers return it directly rather than computing it
	// from the parts.
	TotalTokens int
}

// Response is returned by Complete.
type Response struct {
	// Text is the full text of the model's reply. The translation pipeline
	// hands it to the section parser as-is.
	Text string

	// Usage contains token accounting for this request/response pair. Zero
	// when the backend does not report usage.
	Usage Usage
}
