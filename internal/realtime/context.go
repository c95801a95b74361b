package realtime

import "context"

type originKey struct{}

// WithOrigin marks conn as the connection that triggered the work carried
// by ctx. Room and user fan-out skip it; it gets a direct reply instead.
func WithOrigin(ctx context.Context, conn Conn) context.Context {
	return context.WithValue(ctx, originKey{}, conn)
}

// OriginFrom returns the originating connection, or nil for REST calls and
// background work.
func OriginFrom(ctx context.Context) Conn {
	c, _ := ctx.Value(originKey{}).(Conn)
	return c
}
