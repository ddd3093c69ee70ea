// Package audiostore persists narration artifacts on local disk and hands out
// opaque references for the HTTP layer to serve.
//
// Each artifact is one file named `<uuid>.<ext>` inside a single directory.
// The reference returned by Put is that filename; callers never construct
// references themselves. Writes are atomic (temp file + rename), so a
// reference either resolves to a complete artifact or not at all.
package audiostore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/MrWong99/lingocast/pkg/provider/tts"
)

// ErrNotFound is returned by Open when no artifact exists under the reference.
var ErrNotFound = errors.New("audiostore: artifact not found")

// Store persists audio artifacts as individual files in one directory.
// Safe for concurrent use.
type Store struct {
	dir string
}

// New creates the directory if needed and returns a Store over it.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("audiostore: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audiostore: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put writes the artifact and returns its reference. A partially written file
// is never visible under a reference.
func (s *Store) Put(audio *tts.Audio) (string, error) {
	if audio == nil || len(audio.Data) == 0 {
		return "", errors.New("audiostore: empty audio")
	}
	ref := uuid.New().String() + "." + audio.Format.Ext()

	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return "", fmt.Errorf("audiostore: create temp file: %w", err)
	}
	if _, err := tmp.Write(audio.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("audiostore: write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("audiostore: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, ref)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("audiostore: publish artifact: %w", err)
	}
	return ref, nil
}

// Open returns the artifact file for ref; the caller closes it. Returns
// ErrNotFound when ref does not resolve to a stored artifact.
func (s *Store) Open(ref string) (*os.File, error) {
	if !validRef(ref) {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("audiostore: open artifact: %w", err)
	}
	return f, nil
}

// ContentType returns the MIME type to serve ref under, derived from its
// extension.
func ContentType(ref string) string {
	ext := strings.TrimPrefix(filepath.Ext(ref), ".")
	return tts.Format(ext).MIMEType()
}

// validRef rejects anything that could escape the store directory. References
// are always uuid-dot-extension, so a separator or dot-dot means a forged
// request and is answered like a miss.
func validRef(ref string) bool {
	return ref != "" &&
		!strings.ContainsAny(ref, `/\`) &&
		!strings.Contains(ref, "..")
}
