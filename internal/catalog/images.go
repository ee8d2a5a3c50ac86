package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ImageSource resolves product image references to bytes.
type ImageSource interface {
	Available(ctx context.Context, ref string) bool
	Read(ctx context.Context, ref string) ([]byte, error)
}

// FSImageSource reads images from a directory. Absolute references are used
// as-is; relative ones resolve under Root.
type FSImageSource struct {
	Root string
}

// NewFSImageSource returns an image source rooted at dir.
func NewFSImageSource(dir string) *FSImageSource {
	return &FSImageSource{Root: dir}
}

// Available reports whether ref names a non-empty regular file.
func (s *FSImageSource) Available(_ context.Context, ref string) bool {
	path, err := s.resolve(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Read returns the image bytes for ref.
func (s *FSImageSource) Read(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %q: %w", ref, err)
	}
	return data, nil
}

// AvailableImages filters refs down to those the source can serve.
func AvailableImages(ctx context.Context, src ImageSource, refs []string) []string {
	var out []string
	for _, ref := range refs {
		if src.Available(ctx, ref) {
			out = append(out, ref)
		}
	}
	return out
}

func (s *FSImageSource) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty image reference")
	}
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref), nil
	}
	clean := filepath.Clean(ref)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("image reference %q escapes image root", ref)
	}
	return filepath.Join(s.Root, clean), nil
}
