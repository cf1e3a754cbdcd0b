package mailbox

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const (
	DefaultHost        = "imap.gmail.com"
	DefaultPort        = 993
	DefaultDialTimeout = 30 * time.Second
	// DefaultCommandTimeout bounds the wait for the server's reply to a
	// single IMAP command.
	DefaultCommandTimeout = 30 * time.Second
)

// ErrCommandTimeout reports a command the server did not answer in time. The
// connection is closed when it happens.
var ErrCommandTimeout = errors.New("imap command timed out")

// Account holds the connection settings and credentials for a mail store.
// Password is an application password, not the account's login password.
type Account struct {
	Host               string
	Port               int
	Username           string
	Password           string
	InsecureSkipVerify bool
	DialTimeout        time.Duration
	CommandTimeout     time.Duration
}

func (a Account) address() string {
	host := a.Host
	if host == "" {
		host = DefaultHost
	}
	port := a.Port
	if port <= 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// imapClient is the subset of imapclient.Client a poll needs.
type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imapv2.SelectOptions) selectWaiter
	Unselect() commandWaiter
	UIDSearch(criteria *imapv2.SearchCriteria, options *imapv2.SearchOptions) searchWaiter
	Fetch(numSet imapv2.NumSet, options *imapv2.FetchOptions) fetchWaiter
	Store(numSet imapv2.NumSet, store *imapv2.StoreFlags, options *imapv2.StoreOptions) fetchWaiter
	UIDExpunge(uids imapv2.UIDSet) expungeWaiter
}

type commandWaiter interface{ Wait() error }

type selectWaiter interface {
	Wait() (*imapv2.SelectData, error)
}

type searchWaiter interface {
	Wait() (*imapv2.SearchData, error)
}

type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

type expungeWaiter interface{ Close() error }

func dialTLS(account Account) (imapClient, error) {
	timeout := account.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	host := account.Host
	if host == "" {
		host = DefaultHost
	}

	options := &imapclient.Options{
		Dialer: &net.Dialer{Timeout: timeout},
		TLSConfig: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: account.InsecureSkipVerify,
		},
	}

	address := account.address()
	client, err := imapclient.DialTLS(address, options)
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}
	return newClientWrapper(client, account.CommandTimeout), nil
}

func newClientWrapper(client *imapclient.Client, timeout time.Duration) *clientWrapper {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &clientWrapper{Client: client, timeout: timeout}
}

// clientWrapper adapts imapclient.Client to imapClient. Every command is
// watched: a reply that does not arrive within timeout closes the
// connection, which fails the pending command.
type clientWrapper struct {
	*imapclient.Client
	timeout time.Duration
}

type watchdog struct {
	timer   *time.Timer
	timeout time.Duration
	expired atomic.Bool
}

func (w *clientWrapper) watch() *watchdog {
	d := &watchdog{timeout: w.timeout}
	d.timer = time.AfterFunc(w.timeout, func() {
		d.expired.Store(true)
		_ = w.Client.Close()
	})
	return d
}

func (d *watchdog) done(err error) error {
	d.timer.Stop()
	if err != nil && d.expired.Load() {
		return fmt.Errorf("%w after %s: %w", ErrCommandTimeout, d.timeout, err)
	}
	return err
}

type watchedCommand struct {
	cmd interface{ Wait() error }
	dog *watchdog
}

func (c *watchedCommand) Wait() error { return c.dog.done(c.cmd.Wait()) }

type watchedSelect struct {
	cmd *imapclient.SelectCommand
	dog *watchdog
}

func (c *watchedSelect) Wait() (*imapv2.SelectData, error) {
	data, err := c.cmd.Wait()
	return data, c.dog.done(err)
}

type watchedSearch struct {
	cmd *imapclient.SearchCommand
	dog *watchdog
}

func (c *watchedSearch) Wait() (*imapv2.SearchData, error) {
	data, err := c.cmd.Wait()
	return data, c.dog.done(err)
}

type watchedFetch struct {
	cmd *imapclient.FetchCommand
	dog *watchdog
}

func (c *watchedFetch) Collect() ([]*imapclient.FetchMessageBuffer, error) {
	bufs, err := c.cmd.Collect()
	return bufs, c.dog.done(err)
}

func (c *watchedFetch) Close() error { return c.dog.done(c.cmd.Close()) }

type watchedExpunge struct {
	cmd *imapclient.ExpungeCommand
	dog *watchdog
}

func (c *watchedExpunge) Close() error { return c.dog.done(c.cmd.Close()) }

func (w *clientWrapper) Login(username, password string) commandWaiter {
	dog := w.watch()
	return &watchedCommand{cmd: w.Client.Login(username, password), dog: dog}
}

func (w *clientWrapper) Logout() commandWaiter {
	dog := w.watch()
	return &watchedCommand{cmd: w.Client.Logout(), dog: dog}
}

func (w *clientWrapper) Select(mailbox string, options *imapv2.SelectOptions) selectWaiter {
	dog := w.watch()
	return &watchedSelect{cmd: w.Client.Select(mailbox, options), dog: dog}
}

func (w *clientWrapper) Unselect() commandWaiter {
	dog := w.watch()
	return &watchedCommand{cmd: w.Client.Unselect(), dog: dog}
}

func (w *clientWrapper) UIDSearch(criteria *imapv2.SearchCriteria, options *imapv2.SearchOptions) searchWaiter {
	dog := w.watch()
	return &watchedSearch{cmd: w.Client.UIDSearch(criteria, options), dog: dog}
}

func (w *clientWrapper) Fetch(numSet imapv2.NumSet, options *imapv2.FetchOptions) fetchWaiter {
	dog := w.watch()
	return &watchedFetch{cmd: w.Client.Fetch(numSet, options), dog: dog}
}

func (w *clientWrapper) Store(numSet imapv2.NumSet, store *imapv2.StoreFlags, options *imapv2.StoreOptions) fetchWaiter {
	dog := w.watch()
	return &watchedFetch{cmd: w.Client.Store(numSet, store, options), dog: dog}
}

func (w *clientWrapper) UIDExpunge(uids imapv2.UIDSet) expungeWaiter {
	dog := w.watch()
	return &watchedExpunge{cmd: w.Client.UIDExpunge(uids), dog: dog}
}
