package email

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

const maxFilenameLength = 100

var unsafeFilenameRegex = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// AttachmentStore writes inbound attachments to a directory
type AttachmentStore struct {
	dir string
	now func() time.Time
}

// NewAttachmentStore creates a store rooted at dir
func NewAttachmentStore(dir string, now func() time.Time) *AttachmentStore {
	if now == nil {
		now = time.Now
	}
	return &AttachmentStore{dir: dir, now: now}
}

// Save writes att under a timestamp-prefixed sanitized name and returns the
// path. An existing file is never overwritten.
func (s *AttachmentStore) Save(att Attachment) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create attachment directory: %w", err)
	}

	base := strconv.FormatInt(s.now().UnixMilli(), 10) + "_" + SanitizeFilename(att.Filename)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	for i := 0; i < 100; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create attachment file: %w", err)
		}

		if _, err := f.Write(att.Data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to write attachment: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close attachment file: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for attachment %q", att.Filename)
}

// SanitizeFilename keeps letters, digits, dots, dashes and underscores
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	name = unsafeFilenameRegex.ReplaceAllString(name, "_")
	if len(name) > maxFilenameLength {
		name = name[:maxFilenameLength]
	}
	if name == "" {
		return "attachment"
	}
	return name
}
