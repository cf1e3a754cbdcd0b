package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/sethvargo/go-retry"

	"github.com/mfa-probe/mfa-probe/model"
	"github.com/mfa-probe/mfa-probe/stats"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConnection      = errors.New("mail store connection failed")
	ErrMessageNotFound = errors.New("message not found")

	errNoMatch = errors.New("no matching message yet")
)

// DefaultFolders are scanned by OTP and Token.
var DefaultFolders = []string{"INBOX", "[Gmail]/Spam"}

// sinceSlack widens the server-side SINCE criterion, which only compares
// dates. The exact instant is checked against INTERNALDATE afterwards.
const sinceSlack = 24 * time.Hour

// NotFoundError reports a poll that ran out of time.
type NotFoundError struct {
	Subject string
	Waited  time.Duration
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no message with subject %q after %s", e.Subject, e.Waited.Round(time.Millisecond))
}

func (e *NotFoundError) Unwrap() error { return ErrMessageNotFound }

type SearchCriterion struct {
	Recipient string
	Subject   string
	Since     time.Time
	Folders   []string
}

func (c SearchCriterion) validate() error {
	if strings.TrimSpace(c.Recipient) == "" {
		return fmt.Errorf("%w: recipient is empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return fmt.Errorf("%w: subject is empty", ErrInvalidArgument)
	}
	if len(c.Folders) == 0 {
		return fmt.Errorf("%w: no folders to search", ErrInvalidArgument)
	}
	for _, folder := range c.Folders {
		if strings.TrimSpace(folder) == "" {
			return fmt.Errorf("%w: blank folder name", ErrInvalidArgument)
		}
	}
	return nil
}

type PollPolicy struct {
	MaxWait  time.Duration
	Interval time.Duration
	MarkSeen bool
	Delete   bool
	// SkewTolerance accepts messages received up to this long before the
	// poll started.
	SkewTolerance time.Duration
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		MaxWait:  60 * time.Second,
		Interval: 3 * time.Second,
		MarkSeen: true,
		Delete:   true,
	}
}

func (p PollPolicy) validate() error {
	if p.MaxWait <= 0 {
		return fmt.Errorf("%w: max wait must be positive", ErrInvalidArgument)
	}
	if p.Interval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidArgument)
	}
	if p.SkewTolerance < 0 {
		return fmt.Errorf("%w: skew tolerance must not be negative", ErrInvalidArgument)
	}
	return nil
}

// Poller waits for verification mail on one account. Each call opens its own
// connection, so a Poller may be shared between goroutines.
type Poller struct {
	account   Account
	logger    *slog.Logger
	recorder  stats.Recorder
	now       func() time.Time
	newClient func(Account) (imapClient, error)
}

type Option func(*Poller)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithClock overrides the clock that opens the search window.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

func WithRecorder(recorder stats.Recorder) Option {
	return func(p *Poller) {
		if recorder != nil {
			p.recorder = recorder
		}
	}
}

func withClientFactory(factory func(Account) (imapClient, error)) Option {
	return func(p *Poller) {
		if factory != nil {
			p.newClient = factory
		}
	}
}

func NewPoller(account Account, opts ...Option) *Poller {
	p := &Poller{
		account:   account,
		recorder:  stats.Discard,
		now:       time.Now,
		newClient: dialTLS,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll waits until a message with the given subject, addressed to the
// account, arrives in one of the folders after the call started. It returns a
// *NotFoundError once policy.MaxWait has elapsed without a match.
func (p *Poller) Poll(ctx context.Context, subject string, folders []string, policy PollPolicy) (*model.Message, error) {
	criterion := SearchCriterion{
		Recipient: p.account.Username,
		Subject:   subject,
		Folders:   folders,
	}
	if err := criterion.validate(); err != nil {
		return nil, err
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.account.Password) == "" {
		return nil, fmt.Errorf("%w: password is empty", ErrInvalidArgument)
	}

	criterion.Since = p.now()
	started := time.Now()

	// The whole poll, connection included, must end within one interval of
	// MaxWait. Expiry closes the connection, which unblocks a stalled server.
	budget := policy.MaxWait + policy.Interval
	parent := ctx
	ctx, cancel := context.WithTimeout(parent, budget)
	defer cancel()

	client, cleanup, err := p.connect(ctx)
	if err != nil {
		err = p.overBudget(parent, ctx, budget, err)
		p.recorder.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeError, Err: err})
		return nil, err
	}
	defer cleanup()

	if p.logger != nil {
		p.logger.Debug("polling mailbox", "subject", subject, "folders", folders, "since", criterion.Since, "maxWait", policy.MaxWait)
	}

	backoff := retry.WithMaxDuration(policy.MaxWait, retry.NewConstant(policy.Interval))
	var found *model.Message
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		msg, err := p.searchPass(client, criterion, policy)
		if err != nil {
			return err
		}
		p.recorder.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeSearchPass, Detail: subject})
		if msg == nil {
			return retry.RetryableError(errNoMatch)
		}
		found = msg
		return nil
	})

	switch {
	case err == nil:
		p.recorder.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeFound, Detail: subject})
		if p.logger != nil {
			p.logger.Info("message found", "subject", subject, "folder", found.Folder, "uid", found.UID, "waited", time.Since(started))
		}
		return found, nil
	case errors.Is(err, errNoMatch):
		notFound := &NotFoundError{Subject: subject, Waited: time.Since(started)}
		p.recorder.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeTimeout, Detail: subject, Err: notFound})
		return nil, notFound
	default:
		err = p.overBudget(parent, ctx, budget, err)
		p.recorder.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeError, Detail: subject, Err: err})
		return nil, err
	}
}

// overBudget rewrites a failure caused by the poll budget expiring. When the
// caller's own context ended, err is returned unchanged.
func (p *Poller) overBudget(parent, ctx context.Context, budget time.Duration, err error) error {
	if parent.Err() != nil || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	if p.logger != nil {
		p.logger.Warn("imap server did not answer within poll budget", "budget", budget, "err", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: no response within %s: %w", ErrConnection, budget, err)
	}
	return fmt.Errorf("%w: no response within %s: %w: %w", ErrConnection, budget, context.DeadlineExceeded, err)
}

// FetchContent polls for a message and returns its text.
func (p *Poller) FetchContent(ctx context.Context, subject string, folders []string, policy PollPolicy) (string, error) {
	msg, err := p.Poll(ctx, subject, folders, policy)
	if err != nil {
		return "", err
	}
	return TextContent(msg.Raw)
}

// OTP waits for a message in the default folders and returns its 6-digit code.
func (p *Poller) OTP(ctx context.Context, subject string) (string, error) {
	content, err := p.FetchContent(ctx, subject, DefaultFolders, DefaultPollPolicy())
	if err != nil {
		return "", err
	}
	return ExtractOTP(content)
}

// Token waits for a message in the default folders and returns its UUID token.
func (p *Poller) Token(ctx context.Context, subject string) (string, error) {
	content, err := p.FetchContent(ctx, subject, DefaultFolders, DefaultPollPolicy())
	if err != nil {
		return "", err
	}
	return ExtractUUID(content)
}

func (p *Poller) connect(ctx context.Context) (imapClient, func(), error) {
	client, err := p.newClient(p.account)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	if err := client.Login(p.account.Username, p.account.Password).Wait(); err != nil {
		stopClose()
		_ = client.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, fmt.Errorf("%w: imap login interrupted: %w", ErrConnection, ctxErr)
		}
		return nil, nil, fmt.Errorf("%w: imap login failed: %w", ErrConnection, err)
	}

	if p.logger != nil {
		p.logger.Debug("imap connection established", "address", p.account.address(), "user", p.account.Username)
	}

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil && p.logger != nil {
				p.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil && p.logger != nil {
			p.logger.Debug("imap connection closed", "err", err)
		}
	}
	return client, cleanup, nil
}

func (p *Poller) searchPass(client imapClient, criterion SearchCriterion, policy PollPolicy) (*model.Message, error) {
	for _, folder := range criterion.Folders {
		msg, err := p.searchFolder(client, folder, criterion, policy)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}
	return nil, nil
}

func (p *Poller) searchFolder(client imapClient, folder string, criterion SearchCriterion, policy PollPolicy) (*model.Message, error) {
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		if isNoResponse(err) {
			p.recorder.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeFolderSkip, Detail: folder})
			if p.logger != nil {
				p.logger.Debug("imap folder skipped", "folder", folder, "err", err)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("imap select %s: %w", folder, err)
	}
	defer func() {
		if err := client.Unselect().Wait(); err != nil && p.logger != nil {
			p.logger.Warn("imap unselect failed", "folder", folder, "err", err)
		}
	}()

	search := &imapv2.SearchCriteria{
		Since: criterion.Since.Add(-sinceSlack),
		Header: []imapv2.SearchCriteriaHeaderField{
			{Key: "Subject", Value: criterion.Subject},
			{Key: "To", Value: criterion.Recipient},
		},
	}
	data, err := client.UIDSearch(search, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search %s: %w", folder, err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	// Envelopes first: bodies are only pulled for the chosen message, so an
	// account with a long history of identical subjects stays cheap.
	metaOpts := &imapv2.FetchOptions{UID: true, InternalDate: true, Envelope: true}
	buffers, err := client.Fetch(imapv2.UIDSetNum(uids...), metaOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch %s: %w", folder, err)
	}
	slices.SortFunc(buffers, func(a, b *imapclient.FetchMessageBuffer) int {
		return int(a.UID) - int(b.UID)
	})

	earliest := criterion.Since.Add(-policy.SkewTolerance)
	for _, buf := range buffers {
		if !buf.InternalDate.IsZero() && buf.InternalDate.Before(earliest) {
			if p.logger != nil {
				p.logger.Debug("imap message predates poll", "folder", folder, "uid", buf.UID, "received", buf.InternalDate)
			}
			continue
		}
		raw, err := fetchBody(client, buf.UID)
		if err != nil {
			return nil, fmt.Errorf("imap fetch %s uid %d: %w", folder, buf.UID, err)
		}
		if raw == nil {
			continue
		}
		msg := toMessage(folder, buf, raw)
		if err := p.consume(client, msg.UID, policy); err != nil {
			return nil, fmt.Errorf("imap %s uid %d: %w", folder, msg.UID, err)
		}
		return msg, nil
	}
	return nil, nil
}

func fetchBody(client imapClient, uid imapv2.UID) ([]byte, error) {
	opts := &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{{Peek: true}},
	}
	buffers, err := client.Fetch(imapv2.UIDSetNum(uid), opts).Collect()
	if err != nil {
		return nil, err
	}
	for _, buf := range buffers {
		if buf.UID == uid {
			return bodyOf(buf), nil
		}
	}
	return nil, nil
}

// consume applies the read/delete policy. A deleted message is expunged
// before the folder is released so later polls cannot match it again.
func (p *Poller) consume(client imapClient, uid uint32, policy PollPolicy) error {
	set := imapv2.UIDSetNum(imapv2.UID(uid))
	if policy.MarkSeen {
		store := &imapv2.StoreFlags{Op: imapv2.StoreFlagsAdd, Silent: true, Flags: []imapv2.Flag{imapv2.FlagSeen}}
		if err := client.Store(set, store, nil).Close(); err != nil {
			return fmt.Errorf("store seen: %w", err)
		}
	}
	if policy.Delete {
		store := &imapv2.StoreFlags{Op: imapv2.StoreFlagsAdd, Silent: true, Flags: []imapv2.Flag{imapv2.FlagDeleted}}
		if err := client.Store(set, store, nil).Close(); err != nil {
			return fmt.Errorf("store deleted: %w", err)
		}
		if err := client.UIDExpunge(set).Close(); err != nil {
			return fmt.Errorf("expunge: %w", err)
		}
	}
	return nil
}

func bodyOf(buf *imapclient.FetchMessageBuffer) []byte {
	for _, section := range buf.BodySection {
		if len(section.Bytes) > 0 {
			return section.Bytes
		}
	}
	return nil
}

func toMessage(folder string, buf *imapclient.FetchMessageBuffer, raw []byte) *model.Message {
	msg := &model.Message{
		UID:        uint32(buf.UID),
		Folder:     folder,
		ReceivedAt: buf.InternalDate,
		Raw:        append([]byte(nil), raw...),
	}
	if env := buf.Envelope; env != nil {
		msg.ID = env.MessageID
		msg.Subject = env.Subject
		for _, addr := range env.To {
			msg.To = append(msg.To, addr.Addr())
		}
	}
	return msg
}

func isNoResponse(err error) bool {
	var respErr *imapv2.Error
	if !errors.As(err, &respErr) {
		return false
	}
	return respErr.Type == imapv2.StatusResponseTypeNo || respErr.Code == imapv2.ResponseCodeNonExistent
}
