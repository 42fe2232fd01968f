package asset

import (
	"context"
	"image"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of decoded images a CachedLoader keeps.
const DefaultCacheSize = 128

// CachedLoader keeps recently decoded images and collapses concurrent loads
// of the same path into one. Failed loads are not cached.
type CachedLoader struct {
	next  Loader
	cache *lru.Cache[string, image.Image]
	group singleflight.Group
}

// NewCachedLoader wraps next with an LRU cache holding up to size images.
// A size <= 0 uses DefaultCacheSize.
func NewCachedLoader(next Loader, size int) *CachedLoader {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, image.Image](size)
	return &CachedLoader{next: next, cache: cache}
}

func (l *CachedLoader) Load(ctx context.Context, p string) (image.Image, error) {
	if img, ok := l.cache.Get(p); ok {
		return img, nil
	}

	ch := l.group.DoChan(p, func() (any, error) {
		if img, ok := l.cache.Get(p); ok {
			return img, nil
		}
		img, err := l.next.Load(context.WithoutCancel(ctx), p)
		if err != nil {
			return nil, err
		}
		l.cache.Add(p, img)
		return img, nil
	})

	select {
	case <-ctx.Done():
		return nil, &LoadError{Path: p, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(image.Image), nil
	}
}

// Len reports how many images are cached.
func (l *CachedLoader) Len() int {
	return l.cache.Len()
}

// Purge drops every cached image.
func (l *CachedLoader) Purge() {
	l.cache.Purge()
}
