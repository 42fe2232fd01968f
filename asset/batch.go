package asset

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
)

// BatchError is returned by LoadAll when some paths failed. Loaded keeps
// the images that succeeded, in input order.
type BatchError struct {
	Loaded []image.Image
	Failed []string
	Errs   []error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("load assets: %d of %d failed: %s",
		len(e.Failed), len(e.Failed)+len(e.Loaded), strings.Join(e.Failed, ", "))
}

func (e *BatchError) Unwrap() []error { return e.Errs }

// LoadAll loads every path concurrently and waits for all of them.
// If any failed, the result is nil and the error is a *BatchError.
func LoadAll(ctx context.Context, l Loader, paths []string) ([]image.Image, error) {
	imgs := make([]image.Image, len(paths))
	errs := make([]error, len(paths))

	var wg sync.WaitGroup
	wg.Add(len(paths))
	for i, p := range paths {
		go func() {
			defer wg.Done()
			imgs[i], errs[i] = l.Load(ctx, p)
		}()
	}
	wg.Wait()

	var batch BatchError
	for i, err := range errs {
		if err != nil {
			batch.Failed = append(batch.Failed, paths[i])
			batch.Errs = append(batch.Errs, err)
			continue
		}
		batch.Loaded = append(batch.Loaded, imgs[i])
	}
	if len(batch.Failed) > 0 {
		return nil, &batch
	}
	return imgs, nil
}
