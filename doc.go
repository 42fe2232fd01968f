// Package kame is the host side of a turtle-graphics system.
//
// # Overview
//
// An external module evaluates code and pushes frames of visual objects:
// images placed with a rotation, and line segments. kame loads the module
// once, forwards submitted code to it, and renders every frame onto a 2D
// surface.
//
// # Basic Usage
//
//	mod := lua.New()
//	defer mod.Close()
//
//	canvas := surface.NewCanvas(600, 400)
//	r := render.New(render.WithLoader(
//	    asset.NewCachedLoader(asset.NewFSLoader(os.DirFS(".")), 0)))
//
//	b := bridge.New(mod, r, canvas)
//	b.Start(ctx)
//	defer b.Close()
//
//	b.Submit(ctx, `t = turtle.new() t:forward(100)`)
//	b.WaitRendered(ctx)
//	canvas.SavePNG("display.png")
//
// # Packages
//
//   - visual: the Image and Line objects and their JSON form
//   - render: draws a frame onto a surface, loading images concurrently
//   - bridge: connects a module's run and exec entry points to a renderer
//   - asset: image loaders for directories and HTTP, with an LRU cache
//   - surface: the drawing surface interface, a raster Canvas and a Recorder
//   - module: the module contract, with wasm (WebAssembly guests) and lua
//     (an in-process turtle) implementations
//   - hostfunc: functions a wasm guest can call on the host
//
// The kame command provides run, repl and serve front ends; kame-window
// shows frames in a window.
package kame
