// Package storage persists generated PDF files on the local filesystem.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/htpdf/htpdf/config"
	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/data"
)

// ErrFileTooLarge is returned when a rendered PDF exceeds the configured
// size limit.
var ErrFileTooLarge = errors.New("file exceeds maximum size")

// maxSaveAttempts bounds collision retries when creating a stored file.
const maxSaveAttempts = 5

// LocalStoreOptions groups dependencies for LocalStore.
type LocalStoreOptions struct {
	Config       config.StorageConfig // Required: storage root and size limit
	TimeProvider data.TimeProvider    // Optional: defaults to real time
	Logger       *slog.Logger         // Optional: structured logger
}

// LocalStore writes generated files under a single root directory. Stored
// paths are relative to the root so the directory can be relocated between
// restarts.
type LocalStore struct {
	root         string
	maxFileSize  int64
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

var _ core.BlobStorage = (*LocalStore)(nil)

// NewLocalStore constructs a LocalStore and creates the root directory.
func NewLocalStore(opts LocalStoreOptions) (*LocalStore, error) {
	root := opts.Config.Path
	if root == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", root, err)
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "local_store")
	}

	return &LocalStore{
		root:         root,
		maxFileSize:  opts.Config.MaxFileSizeBytes,
		timeProvider: timeProvider,
		logger:       logger,
	}, nil
}

// Save writes data under a unique timestamped name derived from baseName
// and returns the path relative to the storage root.
func (s *LocalStore) Save(ctx context.Context, baseName string, content []byte) (string, error) {
	if s.maxFileSize > 0 && int64(len(content)) > s.maxFileSize {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(content), s.maxFileSize)
	}

	name, err := s.writeUnique(baseName, content)
	if err != nil {
		return "", err
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "file stored", "path", name, "bytes", len(content))
	}

	return name, nil
}

// writeUnique creates the file exclusively so two saves of the same base
// name in the same millisecond cannot overwrite each other. On a name
// collision it retries with a random suffix.
func (s *LocalStore) writeUnique(baseName string, content []byte) (string, error) {
	name := s.uniqueName(baseName, "")
	for attempt := 0; ; attempt++ {
		fullPath := filepath.Join(s.root, name)
		f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) // #nosec G304 - path is confined to the storage root
		if err != nil {
			if errors.Is(err, fs.ErrExist) && attempt < maxSaveAttempts {
				name = s.uniqueName(baseName, randomSuffix())
				continue
			}
			return "", fmt.Errorf("create file %s: %w", fullPath, err)
		}
		if _, err := f.Write(content); err != nil {
			f.Close()
			os.Remove(fullPath)
			return "", fmt.Errorf("write file %s: %w", fullPath, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close file %s: %w", fullPath, err)
		}
		return name, nil
	}
}

// Read returns the stored bytes, or nil with no error when the file does
// not exist.
func (s *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath) // #nosec G304 - path is confined to the storage root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	return content, nil
}

// Delete removes the stored file. A missing file counts as a successful
// delete so cleanup sweeps converge.
func (s *LocalStore) Delete(ctx context.Context, path string) (bool, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return false, err
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("delete file %s: %w", path, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "file deleted", "path", path)
	}
	return true, nil
}

// uniqueName derives a timestamped name from the base name, with an
// optional collision suffix inserted before the extension.
func (s *LocalStore) uniqueName(baseName, suffix string) string {
	stem := strings.TrimSuffix(filepath.Base(baseName), filepath.Ext(baseName))
	if stem == "" || stem == "." {
		stem = "document"
	}
	now := s.timeProvider.Now().UTC()
	return fmt.Sprintf("%s_%s%03d%s.pdf", stem, now.Format("20060102150405"), now.Nanosecond()/1e6, suffix)
}

// randomSuffix returns a short hex token for collision retries.
func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("_%d", os.Getpid())
	}
	return "_" + hex.EncodeToString(buf)
}

// resolve joins path against the root and rejects traversal outside it.
func (s *LocalStore) resolve(path string) (string, error) {
	fullPath := filepath.Join(s.root, filepath.Clean("/"+path))
	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return "", fmt.Errorf("resolve storage root: %w", err)
	}
	pathAbs, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	if pathAbs != rootAbs && !strings.HasPrefix(pathAbs, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes storage root", path)
	}
	return fullPath, nil
}
