package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrWong99/lingocast/internal/audiostore"
	"github.com/MrWong99/lingocast/internal/observe"
)

// handleAudio serves GET /v1/audio/{ref}. Artifacts stream through
// [http.ServeContent] so clients get range support for scrubbing. Forged or
// unknown references answer 404; the store validates the reference shape.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	if s.artifacts == nil {
		writeError(w, http.StatusNotFound, "unknown audio reference")
		return
	}

	f, err := s.artifacts.Open(ref)
	if err != nil {
		if errors.Is(err, audiostore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown audio reference")
			return
		}
		observe.Logger(r.Context()).Error("server: open artifact", "ref", ref, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer f.Close()

	modTime := time.Time{}
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}

	w.Header().Set("Content-Type", audiostore.ContentType(ref))
	http.ServeContent(w, r, ref, modTime, f)
}
