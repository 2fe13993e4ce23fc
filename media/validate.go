package media

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MaxFileSize = 10 << 20
	// MaxFilesPerUpload caps the images accepted in one listing upload.
	MaxFilesPerUpload = 10
	formOverhead      = 1 << 20
)

// RequestLimit is the largest multipart body worth reading for an upload of at most
// files files.
func RequestLimit(files int) int64 {
	return int64(files)*MaxFileSize + formOverhead
}

// AllowList maps an accepted MIME type to the file extensions allowed for it.
type AllowList map[string][]string

var ImageTypes = AllowList{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
	"image/webp": {".webp"},
}

var AllUploadTypes = AllowList{
	"image/jpeg":         {".jpg", ".jpeg"},
	"image/png":          {".png"},
	"image/gif":          {".gif"},
	"image/webp":         {".webp"},
	"application/pdf":    {".pdf"},
	"application/msword": {".doc"},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {".docx"},
}

type FileError struct {
	Filename string
	Reason   string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Filename, e.Reason)
}

// Validate checks size, sniffed content type and extension. It returns the detected MIME type.
func Validate(fh *multipart.FileHeader, allowed AllowList) (string, error) {
	if fh.Size > MaxFileSize {
		return "", &FileError{Filename: fh.Filename, Reason: "file exceeds the 10MB limit"}
	}
	if fh.Size == 0 {
		return "", &FileError{Filename: fh.Filename, Reason: "file is empty"}
	}

	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	detected, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}

	var (
		mimeType string
		exts     []string
	)
	for m := detected; m != nil && mimeType == ""; m = m.Parent() {
		for candidate, e := range allowed {
			if m.Is(candidate) {
				mimeType, exts = candidate, e
				break
			}
		}
	}
	if mimeType == "" {
		return "", &FileError{Filename: fh.Filename, Reason: fmt.Sprintf("file type %s is not allowed", detected.String())}
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	for _, e := range exts {
		if e == ext {
			return mimeType, nil
		}
	}
	return "", &FileError{Filename: fh.Filename, Reason: fmt.Sprintf("extension %q does not match content type %s", ext, mimeType)}
}
