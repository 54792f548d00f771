// Package appctx holds the request-scoped values shared by config, utils and the HTTP layer.
package appctx

import "context"

type ContextKey string

func (c ContextKey) String() string { return "backoffice." + string(c) }

// Set by the auth middleware from the bearer token, read by the stores for audit fields.
var (
	ContextKeyToken    = ContextKey("Token")
	ContextKeyUsername = ContextKey("Username")
	ContextKeyUserId   = ContextKey("UserId")
	ContextKeyRole     = ContextKey("Role")
)

// ContextKeyCorrelationId is set for every request and by the cmd tools for their run.
var ContextKeyCorrelationId = ContextKey("CorrelationId")

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

func GetInt(ctx context.Context, key ContextKey) (int, bool) {
	v, ok := ctx.Value(key).(int)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
