// Package wasm runs an external module compiled to WebAssembly (WASI) and
// exposes it as a module.Module.
//
// # Overview
//
// A Runtime owns one wazero runtime and caches compiled guests, so a guest
// binary is compiled once no matter how many times it is loaded:
//
//	rt, err := wasm.NewRuntime(hostfunc.NewRegistry())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	mod, err := rt.Load(ctx, wasm.FileGuest("turtle.wasm"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mod.Close()
//
//	go mod.Run(ctx, func(objs []visual.Object) { ... })
//	mod.Exec(ctx, "forward 100")
//
// # Guest Protocol
//
// The host writes one JSON command per line to the guest's stdin:
//
//	{"type":"exec","code":"..."}
//
// The guest reports back on stderr with NUL-delimited frames:
//
//	\x00KAME_READY\x00              guest is ready for commands
//	\x00KAME_DONE\x00               last exec finished
//	\x00KAME_ERROR:message\x00      last exec failed
//	\x00KAME_FRAME:[...]\x00        new visual objects (JSON array)
//	\x00KAME:{"fn":..,"args":..}\x00  host function call
//
// Host function calls are answered with a JSON line on stdin:
// {"data":...} or {"error":"..."}. Anything else written to stderr is
// passed through to the module's output.
//
// See testdata/guest for a minimal guest written in Go.
package wasm
