package log

import "context"

type snKey struct{}

// WithSN attaches the datagram serial number to ctx.
func WithSN(ctx context.Context, sn uint64) context.Context {
	return context.WithValue(ctx, snKey{}, sn)
}

// SNFrom returns the serial number set by WithSN, 0 when there is none.
func SNFrom(ctx context.Context) uint64 {
	sn, _ := ctx.Value(snKey{}).(uint64)
	return sn
}
