package backend

import "context"

type bearerKey struct{}

// WithBearer attaches the caller's portal session token to ctx so outgoing
// backend requests act on the caller's behalf.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

// BearerFrom returns the token set by WithBearer.
func BearerFrom(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(bearerKey{}).(string)
	return tok, ok && tok != ""
}

// WithoutBearer hides any caller token so requests made with ctx fall back
// to the service credentials.
func WithoutBearer(ctx context.Context) context.Context {
	return context.WithValue(ctx, bearerKey{}, "")
}
