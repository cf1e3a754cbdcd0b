package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/samber/lo"

	"github.com/mfa-probe/mfa-probe/stats"
)

var (
	ErrInvalidBatchSize = errors.New("batch size must be positive")
	ErrUnauthorized     = errors.New("unauthorized after credential refresh")
)

// Result is what a submission returns. Only the status code is inspected.
type Result interface {
	StatusCode() int
}

// SubmitFunc sends one batch using token.
type SubmitFunc[T any, R Result] func(ctx context.Context, token string, batch []T) (R, error)

// Plan splits items into consecutive chunks of at most max items, keeping
// input order.
func Plan[T any](items []T, max int) ([][]T, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, max)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return lo.Chunk(items, max), nil
}

type Orchestrator struct {
	cred     *Credential
	auth     Authenticator
	logger   *slog.Logger
	recorder stats.Recorder
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithRecorder(recorder stats.Recorder) Option {
	return func(o *Orchestrator) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

func New(cred *Credential, auth Authenticator, opts ...Option) *Orchestrator {
	o := &Orchestrator{cred: cred, auth: auth, recorder: stats.Discard}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Credential() *Credential { return o.cred }

// Submit sends items in batches of at most max and returns one result per
// batch in batch order. A 401 refreshes the credential and resends that batch
// once; a second 401 for the same batch stops the run with ErrUnauthorized.
// On error the results of the batches already sent are returned as well.
func Submit[T any, R Result](ctx context.Context, o *Orchestrator, items []T, max int, submit SubmitFunc[T, R]) ([]R, error) {
	if o == nil || o.cred == nil || o.auth == nil {
		return nil, errors.New("orchestrator needs a credential and an authenticator")
	}
	batches, err := Plan(items, max)
	if err != nil {
		return nil, err
	}

	results := make([]R, 0, len(batches))
	for i, batch := range batches {
		res, err := submitOne(ctx, o, i+1, batch, submit)
		if err != nil {
			o.recorder.Record(stats.Event{Stage: stats.StageBatch, Type: stats.EventTypeError, Err: err})
			return results, err
		}
		o.recorder.Record(stats.Event{Stage: stats.StageBatch, Type: stats.EventTypeSubmitted, Detail: fmt.Sprintf("batch %d", i+1)})
		if o.logger != nil {
			o.logger.Debug("batch submitted", "batch", i+1, "of", len(batches), "size", len(batch), "status", res.StatusCode())
		}
		results = append(results, res)
	}
	return results, nil
}

func submitOne[T any, R Result](ctx context.Context, o *Orchestrator, n int, batch []T, submit SubmitFunc[T, R]) (R, error) {
	var zero R
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("batch %d: %w", n, err)
	}

	token, generation := o.cred.current()
	res, err := submit(ctx, token, batch)
	if err != nil {
		return zero, fmt.Errorf("batch %d: %w", n, err)
	}
	if res.StatusCode() != http.StatusUnauthorized {
		return res, nil
	}

	o.recorder.Record(stats.Event{Stage: stats.StageBatch, Type: stats.EventTypeUnauthorized, Detail: fmt.Sprintf("batch %d", n)})
	if o.logger != nil {
		o.logger.Info("credential rejected, refreshing", "batch", n, "identity", o.cred.Identity())
	}
	if err := o.cred.Refresh(ctx, o.auth, generation); err != nil {
		return zero, fmt.Errorf("batch %d: %w", n, err)
	}
	o.recorder.Record(stats.Event{Stage: stats.StageBatch, Type: stats.EventTypeRefreshed, Detail: fmt.Sprintf("batch %d", n)})

	token, _ = o.cred.current()
	res, err = submit(ctx, token, batch)
	if err != nil {
		return zero, fmt.Errorf("batch %d: %w", n, err)
	}
	if res.StatusCode() == http.StatusUnauthorized {
		o.recorder.Record(stats.Event{Stage: stats.StageBatch, Type: stats.EventTypeUnauthorized, Detail: fmt.Sprintf("batch %d", n)})
		return zero, fmt.Errorf("batch %d: %w", n, ErrUnauthorized)
	}
	return res, nil
}
