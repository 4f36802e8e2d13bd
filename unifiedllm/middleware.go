package unifiedllm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CallRecorder receives one observation per completed provider call.
type CallRecorder interface {
	RecordLLMCall(provider, model, outcome string, duration time.Duration, usage Usage)
}

// LoggingMiddleware logs every provider call at debug level and failures at warn.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req Request, next Handler) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := []zap.Field{
			zap.String("provider", req.Provider),
			zap.String("model", req.Model),
			zap.Int("messages", len(req.Messages)),
			zap.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			logger.Warn("llm call failed", append(fields, zap.String("error_kind", string(KindOf(err))), zap.Error(err))...)
			return nil, err
		}
		logger.Debug("llm call",
			append(fields, zap.Int("output_tokens", resp.Usage.OutputTokens))...)
		return resp, nil
	}
}

// RateLimitMiddleware blocks until the limiter admits the call. A nil limiter
// disables limiting.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(ctx context.Context, req Request, next Handler) (*Response, error) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, &AbortError{SDKError: SDKError{Message: "rate limiter wait aborted", Cause: err}}
			}
		}
		return next(ctx, req)
	}
}

// NewRequestsPerMinuteLimiter builds a limiter allowing rpm calls per minute
// with a burst of one. Non-positive rpm returns nil.
func NewRequestsPerMinuteLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

// MetricsMiddleware reports each call's latency to rec. The outcome is "ok"
// or the failure's ErrorKind.
func MetricsMiddleware(rec CallRecorder) Middleware {
	return func(ctx context.Context, req Request, next Handler) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		if rec == nil {
			return resp, err
		}
		if err != nil {
			rec.RecordLLMCall(req.Provider, req.Model, string(KindOf(err)), time.Since(start), Usage{})
			return nil, err
		}
		rec.RecordLLMCall(req.Provider, req.Model, "ok", time.Since(start), resp.Usage)
		return resp, nil
	}
}
