package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/pterm/pterm"

	"github.com/mfa-probe/mfa-probe/stats"
)

// Spinner shows the state of a mailbox poll on a terminal. It implements
// stats.Recorder so it can be handed to the poller next to a Collector.
type Spinner struct {
	sp       *pterm.SpinnerPrinter
	subject  string
	passes   int
	skipped  int
	finished bool
	mu       sync.Mutex
	enabled  bool
}

// Start creates a spinner writing to w. It only renders when logLevel is
// "info"; at other levels the log lines carry the same information.
func Start(subject string, w io.Writer, logLevel string) *Spinner {
	s := &Spinner{subject: subject, enabled: logLevel == "info"}
	if !s.enabled {
		return s
	}

	sp, err := pterm.DefaultSpinner.
		WithWriter(w).
		WithRemoveWhenDone(false).
		WithText(s.text()).
		Start()
	if err != nil {
		s.enabled = false
		return s
	}
	s.sp = sp
	return s
}

func (s *Spinner) text() string {
	text := fmt.Sprintf("Waiting for %q (search passes: %d)", s.subject, s.passes)
	if s.skipped > 0 {
		text += fmt.Sprintf(", %d folder(s) missing", s.skipped)
	}
	return text
}

func (s *Spinner) Record(evt stats.Event) {
	if evt.Stage != stats.StageMail {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}

	switch evt.Type {
	case stats.EventTypeSearchPass:
		s.passes++
	case stats.EventTypeFolderSkip:
		s.skipped++
	case stats.EventTypeFound, stats.EventTypeTimeout, stats.EventTypeError:
		s.finished = true
	}

	if !s.enabled || s.sp == nil {
		return
	}
	switch evt.Type {
	case stats.EventTypeSearchPass, stats.EventTypeFolderSkip:
		s.sp.UpdateText(s.text())
	case stats.EventTypeFound:
		s.sp.Success(fmt.Sprintf("Found %q after %d search pass(es)", s.subject, s.passes))
	case stats.EventTypeTimeout, stats.EventTypeError:
		if evt.Err != nil {
			s.sp.Fail(evt.Err.Error())
		} else {
			s.sp.Fail(fmt.Sprintf("Gave up waiting for %q", s.subject))
		}
	}
}

// Stop halts the spinner if no terminal event stopped it already.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	if s.enabled && s.sp != nil {
		_ = s.sp.Stop()
	}
}

// Done reports whether the poll reached a final state or Stop was called.
func (s *Spinner) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Passes returns the number of search passes seen so far.
func (s *Spinner) Passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}
