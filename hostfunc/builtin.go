package hostfunc

import (
	"context"
	"errors"
	"log"
	"time"
)

// TimeNow returns the current Unix time in seconds.
func TimeNow(ctx context.Context, args map[string]any) (any, error) {
	return float64(time.Now().UnixNano()) / 1e9, nil
}

// NewLog returns a function writing the "message" argument to logger.
func NewLog(logger *log.Logger) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		msg, ok := args["message"].(string)
		if !ok {
			return nil, errors.New("message required")
		}
		logger.Printf("guest: %s", msg)
		return "ok", nil
	}
}

// Builtins returns a registry holding time_now and log.
func Builtins(logger *log.Logger) *Registry {
	r := NewRegistry()
	r.Register("time_now", TimeNow)
	r.Register("log", NewLog(logger))
	return r
}
