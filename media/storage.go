package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PublicPath is the URL prefix uploaded files are served under.
const PublicPath = "/uploads"

type Storage interface {
	// Save stores r under a generated name keeping the extension of name and returns its public URL.
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

type LocalStorage struct {
	dir     string
	baseURL string
}

func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStorage) Dir() string { return s.dir }

func (s *LocalStorage) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	filename := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	dst := filepath.Join(s.dir, filename)

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return s.baseURL + PublicPath + "/" + filename, nil
}

// Delete removes a file previously returned by Save. URLs this storage did not
// produce are ignored, as are files that are already gone.
func (s *LocalStorage) Delete(_ context.Context, url string) error {
	prefix := s.baseURL + PublicPath + "/"
	if !strings.HasPrefix(url, prefix) {
		return nil
	}
	name := path.Base(strings.TrimPrefix(url, prefix))
	if name == "." || name == "/" || name == ".." {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
