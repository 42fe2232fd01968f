// Package render draws frames of visual objects onto a surface.
//
// # Render Passes
//
// A pass clears the surface and draws every object with the surface center
// as the origin:
//
//	r := render.New(render.WithLoader(loader))
//	err := r.Render(ctx, canvas, objects)
//
// Lines are stroked in input order as soon as they are reached. Each image
// is loaded on its own goroutine and drawn once its asset is ready, so
// image z-order follows load completion, not input order. Render returns
// after every image has settled.
//
// # Failures
//
// A failed image load does not stop the other objects. Render waits for
// all of them and returns every *asset.LoadError joined together. Whatever
// was drawn stays on the surface.
//
// # Overlapping Passes
//
// Render does not guard against a second pass on the same surface while a
// first is still loading images. The second pass clears the surface, and
// images from the first can still be drawn after that clear unless the
// first pass's context is cancelled. Callers that want only the latest
// frame on screen cancel the stale pass, as bridge.Bridge does.
package render
