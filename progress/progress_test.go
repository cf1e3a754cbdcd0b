package progress

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/mfa-probe/mfa-probe/stats"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerCountsWhenDisabled(t *testing.T) {
	s := Start("Your verification code", &lockedBuffer{}, "debug")
	s.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeSearchPass})
	s.Record(stats.Event{Stage: stats.StageBatch, Type: stats.EventTypeSearchPass})
	s.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeSearchPass})

	if got := s.Passes(); got != 2 {
		t.Fatalf("Passes() = %d, want 2", got)
	}
	if s.Done() {
		t.Fatal("spinner done before a final event")
	}
	s.Stop()
	if !s.Done() {
		t.Fatal("spinner not done after Stop")
	}
}

func TestSpinnerReportsFound(t *testing.T) {
	out := &lockedBuffer{}
	s := Start("Your verification code", out, "info")
	s.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeSearchPass})
	s.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeFolderSkip, Detail: "[Gmail]/Spam"})
	s.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeFound})

	if !s.Done() {
		t.Fatal("spinner not done after found")
	}

	s.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeSearchPass})
	if got := s.Passes(); got != 1 {
		t.Errorf("Passes() = %d after finish, want 1", got)
	}
	s.Stop()
}

func TestSpinnerReportsTimeout(t *testing.T) {
	out := &lockedBuffer{}
	s := Start("Reset your password", out, "info")
	s.Record(stats.Event{Stage: stats.StageMail, Type: stats.EventTypeTimeout, Err: errors.New("no message with subject \"Reset your password\" after 60s")})

	if !s.Done() {
		t.Fatal("spinner not done after timeout")
	}
	s.Stop()
	if out.String() == "" {
		t.Error("spinner wrote nothing")
	}
}
