// Package photos stores member profile photos under the photo directory.
// Uploads from the REST API and the MCP tool go through the same checks.
package photos

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/starford/webring/internal/apperr"
	"github.com/starford/webring/internal/models"
	"github.com/starford/webring/internal/storage"
)

const (
	// MaxBytes is the largest photo accepted.
	MaxBytes = 5 << 20
	// URLPrefix is where stored photos are served, and the prefix written
	// into a member's profilePic.
	URLPrefix = "/photos/"
)

// ErrTooLarge is returned for photos over MaxBytes.
var ErrTooLarge = fmt.Errorf("%w: photo exceeds 5 MB", apperr.ErrInvalidInput)

var mimeExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var allowedExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// Photo describes a stored photo.
type Photo struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// Store saves and reads photos through a storage provider.
type Store struct {
	files storage.Provider
}

// NewStore returns a Store writing to files.
func NewStore(files storage.Provider) *Store {
	return &Store{files: files}
}

// ExtForMIME returns the file extension for an accepted image MIME type, or
// "" when the type is not accepted. Parameters after ';' are ignored.
func ExtForMIME(mime string) string {
	mime, _, _ = strings.Cut(mime, ";")
	return mimeExt[strings.ToLower(strings.TrimSpace(mime))]
}

// ValidName checks that name is a plain image file name: no directory part,
// no leading dot, an accepted extension.
func ValidName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: filename is required", apperr.ErrInvalidInput)
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: invalid filename %q", apperr.ErrInvalidInput, name)
	}
	if !allowedExt[strings.ToLower(filepath.Ext(name))] {
		return fmt.Errorf("%w: only png, jpg, jpeg, gif and webp files are accepted", apperr.ErrInvalidInput)
	}
	return nil
}

// Save validates data and writes it as name. A non-empty memberID renames
// the file to <memberID><ext> so a member's photo keeps a stable URL.
// The content must sniff as the image type its extension claims.
func (s *Store) Save(name, memberID string, data []byte) (Photo, error) {
	if err := ValidName(name); err != nil {
		return Photo{}, err
	}
	ext := strings.ToLower(filepath.Ext(name))
	if memberID != "" {
		if !models.SlugPattern.MatchString(memberID) {
			return Photo{}, fmt.Errorf("%w: invalid member id %q", apperr.ErrInvalidInput, memberID)
		}
		name = memberID + ext
	}
	if len(data) > MaxBytes {
		return Photo{}, ErrTooLarge
	}

	detected := http.DetectContentType(data)
	want := ext
	if want == ".jpeg" {
		want = ".jpg"
	}
	if ExtForMIME(detected) != want {
		return Photo{}, fmt.Errorf("%w: content does not match extension %s (detected %s)", apperr.ErrInvalidInput, ext, detected)
	}

	if err := s.files.Write(name, data); err != nil {
		return Photo{}, fmt.Errorf("%w: write photo %s: %w", apperr.ErrStorage, name, err)
	}
	return Photo{Filename: name, Size: int64(len(data)), URL: URLPrefix + name}, nil
}

// Read returns the stored photo name.
func (s *Store) Read(name string) ([]byte, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	data, err := s.files.Read(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: photo %s", apperr.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read photo %s: %w", apperr.ErrStorage, name, err)
	}
	return data, nil
}

// List returns the stored photos in name order, skipping files that are not
// accepted images.
func (s *Store) List() ([]Photo, error) {
	files, err := s.files.List("")
	if err != nil {
		return nil, fmt.Errorf("%w: list photos: %w", apperr.ErrStorage, err)
	}
	out := make([]Photo, 0, len(files))
	for _, f := range files {
		if ValidName(f.Path) != nil {
			continue
		}
		out = append(out, Photo{Filename: f.Path, Size: f.Size, URL: URLPrefix + f.Path})
	}
	return out, nil
}
