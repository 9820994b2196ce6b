package services

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// Metrics is the subset of the CloudWatch client services report to.
// aws.MetricsClient satisfies it and is nil-safe.
type Metrics interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordValue(ctx context.Context, metricName string, value float64, dimensions map[string]string) error
}

type noopMetrics struct{}

func (noopMetrics) RecordCount(context.Context, string, map[string]string) error { return nil }
func (noopMetrics) RecordValue(context.Context, string, float64, map[string]string) error {
	return nil
}

func metricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// emit sends a metric without holding up the request.
func emit(logger *zap.Logger, send func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := send(ctx); err != nil {
			logger.Debug("Failed to record metric", zap.Error(err))
		}
	}()
}

var (
	validate  = validator.New()
	sanitizer = bluemonday.StrictPolicy()
)

// sanitize strips markup from free text and returns it unescaped, as plain
// text.
func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(s)))
}

// repoError maps repository sentinels to client errors and anything else to
// a logged 500.
func repoError(logger *zap.Logger, err error, notFound, internal string) *apperrors.Error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(notFound)
	case errors.Is(err, repository.ErrConflict):
		return apperrors.Conflict(internal + ": conflicting update")
	default:
		logger.Error(internal, zap.Error(err))
		return apperrors.Internal(internal, err)
	}
}

// validationError turns validator output into a single 400 message naming
// the first offending field.
func validationError(err error) *apperrors.Error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return apperrors.BadRequest("Invalid " + fe.Namespace() + ": failed " + fe.Tag())
	}
	return apperrors.BadRequest("Invalid request")
}
