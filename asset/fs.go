package asset

import (
	"context"
	"errors"
	"image"
	"io/fs"
)

// FSLoader loads assets from a filesystem. Paths are fs.FS paths.
type FSLoader struct {
	fsys fs.FS
}

// NewFSLoader returns a loader reading from fsys.
func NewFSLoader(fsys fs.FS) *FSLoader {
	return &FSLoader{fsys: fsys}
}

func (l *FSLoader) Load(ctx context.Context, p string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Path: p, Err: err}
	}
	if !fs.ValidPath(p) {
		return nil, &LoadError{Path: p, Err: ErrInvalidPath}
	}

	f, err := l.fsys.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Path: p, Err: ErrNotFound}
		}
		return nil, &LoadError{Path: p, Err: err}
	}
	defer f.Close()

	return decode(p, f)
}
