package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

// MaxFileSize caps files read through Fetch.
const MaxFileSize = 32 * 1024 * 1024

// Storage keeps uploaded originals under basePath and doubles as a
// document source for files dropped into the same directory.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "open file", err)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Fetch reads a file relative to the storage root. The relative path is
// the file id.
func (s *Storage) Fetch(ctx context.Context, fileID string) (*domain.SourceFile, error) {
	path, err := s.resolve(fileID)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "fetch file", err)
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch file", fmt.Errorf("%s is a directory", fileID))
	}
	if info.Size() > MaxFileSize {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch file", fmt.Errorf("%s exceeds %d bytes", fileID, MaxFileSize))
	}

	rc, err := s.Open(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return &domain.SourceFile{
		ID:         fileID,
		Name:       filepath.Base(path),
		MimeType:   mime.TypeByExtension(filepath.Ext(path)),
		Size:       info.Size(),
		ModifiedAt: info.ModTime().UTC(),
		Content:    content,
	}, nil
}

func (s *Storage) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve path", errors.New("empty key"))
	}
	return filepath.Join(s.basePath, clean), nil
}
