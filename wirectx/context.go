// Package wirectx carries per-call flags for bus adapters through a
// context.
package wirectx

import "context"

type ctxIndex int

const (
	ctxIndexVerbose ctxIndex = iota
	ctxIndexDevice
)

func IsVerbose(ctx context.Context) bool {
	val := ctx.Value(ctxIndexVerbose)
	if val == nil {
		return false
	}
	return val.(bool)
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

// Device returns the adapter index selected for the call, if any.
func Device(ctx context.Context) (int, bool) {
	val := ctx.Value(ctxIndexDevice)
	if val == nil {
		return 0, false
	}
	return val.(int), true
}

func SetDevice(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, ctxIndexDevice, index)
}
