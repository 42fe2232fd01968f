// Package hostfunc provides the host functions a guest module can call.
//
// A guest reaches the host by writing a call frame naming a function and
// its arguments; the host looks the name up in a [Registry] and answers
// with the result or an error.
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("asset_exists", func(ctx context.Context, args map[string]any) (any, error) {
//	    return true, nil
//	})
//
// [Builtins] returns the functions every module gets: time_now and log.
package hostfunc
