// Package asset resolves and decodes the images referenced by visual
// objects.
//
// Image names are resolved under the "assets/" directory, either inside an
// fs.FS or against an HTTP base URL. Decoding supports png, jpeg, gif, bmp
// and webp. Wrap a loader with NewCachedLoader to keep decoded images around
// across render passes.
package asset

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Dir is the directory image names are resolved under.
const Dir = "assets"

var (
	ErrNotFound    = errors.New("asset not found")
	ErrInvalidPath = errors.New("invalid asset path")
)

// Loader loads a decoded image by path.
type Loader interface {
	Load(ctx context.Context, path string) (image.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) (image.Image, error)

func (f LoaderFunc) Load(ctx context.Context, path string) (image.Image, error) {
	return f(ctx, path)
}

// LoadError reports a failed load of a single asset.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load asset %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Path returns the asset path for an image name, "assets/" + name.
// Absolute names and names escaping the assets directory are rejected.
func Path(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return Dir + "/" + cleaned, nil
}

func decode(p string, r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, &LoadError{Path: p, Err: fmt.Errorf("decode: %w", err)}
	}
	return img, nil
}
