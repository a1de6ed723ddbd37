package ytaccess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"ytaccess/youtube"
)

// TierStatus is the outcome of one tier of a fallback chain.
type TierStatus int

const (
	// TierSuccess means the tier produced a usable record.
	TierSuccess TierStatus = iota
	// TierEmpty means the tier answered but had nothing to offer.
	TierEmpty
	// TierNotFound means the tier knows the entity does not exist.
	TierNotFound
	// TierFailed means the tier could not answer.
	TierFailed
)

// String returns the status as it appears in logs and metrics.
func (s TierStatus) String() string {
	switch s {
	case TierSuccess:
		return "success"
	case TierEmpty:
		return "empty"
	case TierNotFound:
		return "not_found"
	case TierFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Advance reports whether the chain moves on to the next tier.
func (s TierStatus) Advance() bool {
	return s != TierSuccess
}

// ErrAllTiersFailed is matched by every *ChainError.
var ErrAllTiersFailed = errors.New("ytaccess: all tiers failed")

// ChainError is returned when no tier of an operation could answer. Err
// aggregates one *youtube.TierError per tier that ran.
type ChainError struct {
	Op  string
	Err error
}

// Error returns a string representation of the chain error.
func (e *ChainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ytaccess: %s: all tiers failed", e.Op)
	}
	return fmt.Sprintf("ytaccess: %s: all tiers failed: %v", e.Op, e.Err)
}

// Unwrap returns the aggregated tier errors.
func (e *ChainError) Unwrap() error { return e.Err }

// Is reports whether target is ErrAllTiersFailed.
func (e *ChainError) Is(target error) bool { return target == ErrAllTiersFailed }

// tier is one step of a fallback chain.
type tier[T any] struct {
	name string
	run  func(ctx context.Context) (T, error)
	// empty reports whether a successful answer carries nothing. Nil means
	// every answer counts.
	empty func(T) bool
}

// outcome classifies a tier's answer.
func outcome(err error, empty bool) TierStatus {
	switch {
	case err == nil && !empty:
		return TierSuccess
	case err == nil:
		return TierEmpty
	case errors.Is(err, youtube.ErrNotFound), errors.Is(err, youtube.ErrInvalidURL):
		return TierNotFound
	default:
		return TierFailed
	}
}

// chainRun carries the per-call context shared by the tiers of one operation.
type chainRun struct {
	op      string
	logger  *zap.Logger
	metrics *metrics
}

// runChain runs tiers in order until one succeeds. When none does the
// first empty answer is returned with a nil error; if every tier reported
// not-found the error wraps youtube.ErrNotFound; otherwise it is a
// *ChainError. A cancelled context stops the chain at once.
func runChain[T any](ctx context.Context, run chainRun, tiers []tier[T]) (T, TierStatus, error) {
	var (
		zero        T
		errs        *multierror.Error
		degraded    T
		hasDegraded bool
		allNotFound = true
	)

	for _, t := range tiers {
		if err := ctx.Err(); err != nil {
			return zero, TierFailed, err
		}

		start := time.Now()
		v, err := t.run(ctx)
		empty := err == nil && t.empty != nil && t.empty(v)
		status := outcome(err, empty)

		run.metrics.tierOutcomes.WithLabelValues(run.op, t.name, status.String()).Inc()
		fields := []zap.Field{
			zap.String("tier", t.name),
			zap.String("status", status.String()),
			zap.Duration("elapsed", time.Since(start)),
		}

		if !status.Advance() {
			run.logger.Debug("tier answered", fields...)
			return v, status, nil
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, TierFailed, ctxErr
			}
			errs = multierror.Append(errs, &youtube.TierError{Tier: t.name, Op: run.op, Err: err})
			fields = append(fields, zap.Error(err))
		}
		run.logger.Info("tier fell through", fields...)

		switch status {
		case TierEmpty:
			allNotFound = false
			if !hasDegraded {
				degraded, hasDegraded = v, true
			}
		case TierFailed:
			allNotFound = false
		}
	}

	if hasDegraded {
		return degraded, TierEmpty, nil
	}
	if errs != nil {
		errs.ErrorFormat = joinErrors
	}
	if len(tiers) > 0 && allNotFound {
		return zero, TierNotFound, fmt.Errorf("%w: %s: %w", youtube.ErrNotFound, run.op, errs.ErrorOrNil())
	}
	return zero, TierFailed, &ChainError{Op: run.op, Err: errs.ErrorOrNil()}
}

func joinErrors(errs []error) string {
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}
