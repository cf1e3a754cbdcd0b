package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mfa-probe/mfa-probe/batch"
	"github.com/mfa-probe/mfa-probe/stats"
)

// MaxBatchSize is the most users the service accepts per create or delete
// request.
const MaxBatchSize = 34

// Admin runs user-management calls as a privileged account, logging in again
// whenever the service rejects the current token.
type Admin struct {
	client       *Client
	orchestrator *batch.Orchestrator
	batchSize    int
	logger       *slog.Logger
}

type AdminOption func(*adminOptions)

type adminOptions struct {
	batchSize int
	token     string
	logger    *slog.Logger
	recorder  stats.Recorder
}

func WithBatchSize(size int) AdminOption {
	return func(o *adminOptions) {
		o.batchSize = size
	}
}

// WithToken seeds the credential with an access token obtained elsewhere.
func WithToken(token string) AdminOption {
	return func(o *adminOptions) {
		o.token = token
	}
}

func WithAdminLogger(logger *slog.Logger) AdminOption {
	return func(o *adminOptions) {
		o.logger = logger
	}
}

func WithAdminRecorder(recorder stats.Recorder) AdminOption {
	return func(o *adminOptions) {
		o.recorder = recorder
	}
}

func NewAdmin(client *Client, username, password string, opts ...AdminOption) (*Admin, error) {
	if client == nil {
		return nil, errors.New("admin needs an api client")
	}
	if username == "" || password == "" {
		return nil, errors.New("admin username and password must be set")
	}
	options := adminOptions{batchSize: MaxBatchSize}
	for _, opt := range opts {
		opt(&options)
	}
	if options.batchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", batch.ErrInvalidBatchSize, options.batchSize)
	}

	cred := batch.NewCredential(username, options.token)
	orchestrator := batch.New(cred, client.Authenticator(password),
		batch.WithLogger(options.logger),
		batch.WithRecorder(options.recorder),
	)
	return &Admin{
		client:       client,
		orchestrator: orchestrator,
		batchSize:    options.batchSize,
		logger:       options.logger,
	}, nil
}

// Token returns the admin's current access token.
func (a *Admin) Token() string { return a.orchestrator.Credential().Token() }

func (a *Admin) CreateUsers(ctx context.Context, users []User, leniency string) ([]*Response, error) {
	return batch.Submit(ctx, a.orchestrator, users, a.batchSize,
		func(ctx context.Context, token string, chunk []User) (*Response, error) {
			return a.client.CreateUsers(ctx, token, chunk, leniency)
		})
}

func (a *Admin) DeleteUsers(ctx context.Context, usernamesOrEmails []string, hard, leniency string) ([]*Response, error) {
	return batch.Submit(ctx, a.orchestrator, usernamesOrEmails, a.batchSize,
		func(ctx context.Context, token string, chunk []string) (*Response, error) {
			return a.client.DeleteUsers(ctx, token, chunk, hard, leniency)
		})
}

// CleanUp hard-deletes every user named by targets. A batch answered with a
// non-2xx status does not stop the others; those failures are returned
// joined. A transport or authorization failure ends the run.
func (a *Admin) CleanUp(ctx context.Context, targets ...Target) error {
	ids := FlattenTargets(targets...)
	if len(ids) == 0 {
		return nil
	}

	results, err := a.DeleteUsers(ctx, ids, Enable, Enable)
	var errs []error
	for i, res := range results {
		if res.Status < 200 || res.Status > 299 {
			errs = append(errs, fmt.Errorf("cleanup batch %d: %w: %d", i+1, ErrUnexpectedStatus, res.Status))
		}
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("cleanup: %w", err))
	}
	if a.logger != nil {
		a.logger.Info("test users cleaned up", "users", len(ids), "batches", len(results), "failures", len(errs))
	}
	return errors.Join(errs...)
}
