package utils

import (
	"context"

	"github.com/AnimaI/SMD-Manager/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyTrackingId    = appctx.ContextKeyTrackingId
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetTrackingIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTrackingId)
}

func SetTrackingIdInContext(ctx context.Context, trackingId string) context.Context {
	return appctx.Set(ctx, ContextKeyTrackingId, trackingId)
}
