// Package mailbox maintains the IMAP connection used to watch for bank
// notification mail. One client serves either an idle session (read-only,
// long-lived, emits events) or a scan pass (read-write, short-lived).
package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/mcelebi/qrtransfer/internal/mailbox/config"
)

const (
	// IMAP servers are only supposed to drop a connection after 30 minutes,
	// but some providers cut idle connections after about 10. Stay under that.
	idleWindow = 9 * time.Minute
	// keep-alive probe spacing when the server has no IDLE capability
	noopInterval = time.Minute

	mailboxInbox = "INBOX"
)

var ErrNoHTMLBody = errors.New("message has no text/html part")

type EventKind int

const (
	EventCountChanged EventKind = iota
	EventFlagsChanged
)

// Event is an observable mailbox change: a message appeared or vanished,
// or message flags changed (e.g. marked seen elsewhere).
type Event struct {
	Kind EventKind
}

// Message is one fetched mail, reduced to what the scrapers need.
type Message struct {
	UID     uint32
	From    string
	Subject string
	HTML    string
}

type Client struct {
	cfg      config.Config
	readOnly bool
	zaplog   *zap.Logger

	imap          *imapclient.Client
	authenticated bool
	events        chan Event
	updates       chan imapclient.Update
}

// NewClient prepares a client for one mailbox. readOnly selects the folder
// access mode used on authentication: idle sessions open the inbox
// read-only, scan passes need read-write to mark messages seen.
func NewClient(cfg config.Config, readOnly bool, zaplog *zap.Logger) *Client {
	return &Client{
		cfg:      cfg,
		readOnly: readOnly,
		zaplog:   zaplog,
		events:   make(chan Event, 16),
	}
}

// Events delivers mailbox change notifications observed while idling. The
// channel is closed when the idle session ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connect establishes the transport per the configured security policy.
// No-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.imap != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	var (
		conn *imapclient.Client
		err  error
	)
	switch c.cfg.Security {
	case config.SecurityTLS:
		conn, err = imapclient.DialTLS(addr, nil)
	case config.SecurityStartTLS:
		conn, err = imapclient.Dial(addr)
		if err == nil {
			err = conn.StartTLS(&tls.Config{ServerName: c.cfg.Host})
		}
	case config.SecurityNone, "":
		conn, err = imapclient.Dial(addr)
	default:
		return fmt.Errorf("mailbox: unknown security policy %q", c.cfg.Security)
	}
	if err != nil {
		return fmt.Errorf("mailbox: connect %s: %w", addr, err)
	}

	c.imap = conn
	// an idle session's updates channel outlives the transport; every
	// fresh connection must keep feeding it
	if c.updates != nil {
		conn.Updates = c.updates
	}
	return nil
}

// Authenticate logs in and opens the inbox. No-op when already authenticated.
func (c *Client) Authenticate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.authenticated {
		return nil
	}

	if err := c.imap.Login(c.cfg.Username, c.cfg.Password); err != nil {
		return fmt.Errorf("mailbox: login: %w", err)
	}
	if _, err := c.imap.Select(mailboxInbox, c.readOnly); err != nil {
		return fmt.Errorf("mailbox: select %s: %w", mailboxInbox, err)
	}

	c.authenticated = true
	return nil
}

// reconnect re-runs connect+authenticate; both halves are idempotent, so it
// is safe to call with a live connection as well as after drop().
func (c *Client) reconnect(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Authenticate(ctx)
}

// drop forgets a broken connection so the next reconnect dials fresh.
func (c *Client) drop() {
	if c.imap != nil {
		_ = c.imap.Terminate()
	}
	c.imap = nil
	c.authenticated = false
}

// Run holds one idle session: connect, authenticate, wait for changes
// (pushing events to Events) until the idle window closes, then disconnect.
// Cancellation propagates out after the transport is closed.
func (c *Client) Run(ctx context.Context) error {
	c.updates = make(chan imapclient.Update, 16)
	done := make(chan struct{})
	go c.pumpUpdates(c.updates, done)

	if err := c.reconnect(ctx); err != nil {
		c.Disconnect()
		close(done)
		return err
	}

	err := c.waitForChanges(ctx)

	// disconnect before stopping the pump so nothing feeds updates while
	// it shuts down; the pump closes Events on exit, releasing watchers
	c.Disconnect()
	close(done)
	return err
}

// waitForChanges issues one bounded IDLE when the server supports it, or a
// keep-alive probe otherwise. Transport and protocol failures reconnect and
// retry; cancellation propagates without retry.
func (c *Client) waitForChanges(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		supported, capErr := c.imap.Support("IDLE")
		switch {
		case capErr != nil:
			err = capErr
		case supported:
			err = c.idleOnce(ctx)
		default:
			err = c.noopOnce(ctx)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.zaplog.Warn("mailbox wait failed, reconnecting", zap.Error(err))
		c.drop()
		if rerr := c.reconnect(ctx); rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return rerr
		}
	}
}

// idleOnce runs IDLE for at most idleWindow. Returning nil means the window
// elapsed or the server ended the command normally.
func (c *Client) idleOnce(ctx context.Context) error {
	stop := make(chan struct{})
	idleDone := make(chan error, 1)
	go func() {
		idleDone <- c.imap.Idle(stop, &imapclient.IdleOptions{LogoutTimeout: idleWindow})
	}()

	timer := time.NewTimer(idleWindow)
	defer timer.Stop()

	select {
	case err := <-idleDone:
		return err
	case <-timer.C:
		close(stop)
		return <-idleDone
	case <-ctx.Done():
		close(stop)
		<-idleDone
		return ctx.Err()
	}
}

// noopOnce sleeps one probe interval, then pings the server so it keeps the
// connection and reports mailbox changes.
func (c *Client) noopOnce(ctx context.Context) error {
	timer := time.NewTimer(noopInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return c.imap.Noop()
}

func (c *Client) pumpUpdates(updates <-chan imapclient.Update, done <-chan struct{}) {
	defer close(c.events)
	for {
		select {
		case <-done:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			ev, relevant := translateUpdate(u)
			if !relevant {
				continue
			}
			// events are edge triggers for a level-triggered scan;
			// dropping under backpressure loses nothing
			select {
			case c.events <- ev:
			default:
			}
		}
	}
}

func translateUpdate(u imapclient.Update) (Event, bool) {
	switch u.(type) {
	case *imapclient.MailboxUpdate, *imapclient.ExpungeUpdate:
		return Event{Kind: EventCountChanged}, true
	case *imapclient.MessageUpdate:
		return Event{Kind: EventFlagsChanged}, true
	}
	return Event{}, false
}

// UnseenMessages fetches every message not yet flagged seen. Bodies are
// fetched with peek, so the fetch itself mutates no flags.
func (c *Client) UnseenMessages(ctx context.Context) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.imap.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("mailbox: search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids))
	fetchDone := make(chan error, 1)
	go func() {
		fetchDone <- c.imap.UidFetch(seqset, items, ch)
	}()

	var messages []Message
	for msg := range ch {
		m := Message{UID: msg.Uid}
		if env := msg.Envelope; env != nil {
			m.Subject = env.Subject
			if len(env.From) > 0 {
				m.From = env.From[0].Address()
			}
		}
		if body := msg.GetBody(section); body != nil {
			html, err := htmlPart(body)
			if err != nil {
				c.zaplog.Warn("message body unreadable",
					zap.Uint32("uid", msg.Uid), zap.Error(err))
			} else {
				m.HTML = html
			}
		}
		messages = append(messages, m)
	}
	if err := <-fetchDone; err != nil {
		return nil, fmt.Errorf("mailbox: fetch unseen: %w", err)
	}
	return messages, nil
}

// MarkSeen flags one message seen. Called only after the completion
// endpoint confirmed the notice.
func (c *Client) MarkSeen(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.imap.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("mailbox: mark seen %d: %w", uid, err)
	}
	return nil
}

// Disconnect logs out and forgets the connection. Safe to call repeatedly.
func (c *Client) Disconnect() {
	if c.imap == nil {
		return
	}
	if err := c.imap.Logout(); err != nil {
		_ = c.imap.Terminate()
	}
	c.imap = nil
	c.authenticated = false
}

// htmlPart walks the MIME tree and returns the first text/html part.
func htmlPart(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", err
	}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, err := h.ContentType()
		if err != nil {
			continue
		}
		if ct == "text/html" {
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
	}
	return "", ErrNoHTMLBody
}
