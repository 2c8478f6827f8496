// Package mailtask drives the mailbox watch cycle: on every tick the
// previous idle session is cancelled, one scan pass runs, and a fresh idle
// session is armed whose count-changed events trigger further scans.
package mailtask

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcelebi/qrtransfer/internal/mailbox"
	mailboxConfig "github.com/mcelebi/qrtransfer/internal/mailbox/config"
	"github.com/mcelebi/qrtransfer/internal/mailtask/config"
	"github.com/mcelebi/qrtransfer/internal/scraper"
	"github.com/mcelebi/qrtransfer/internal/service/completedclient"
)

// mailboxClient is the slice of mailbox.Client the orchestrator drives.
type mailboxClient interface {
	Connect(ctx context.Context) error
	Authenticate(ctx context.Context) error
	Run(ctx context.Context) error
	Events() <-chan mailbox.Event
	UnseenMessages(ctx context.Context) ([]mailbox.Message, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Disconnect()
}

type Task struct {
	cfg        config.Config
	extractors *scraper.Registry
	completed  completedclient.Client
	zaplog     *zap.Logger

	// newClient dials the watched mailbox; readOnly selects idle session
	// versus scan pass
	newClient func(readOnly bool) mailboxClient

	mu     sync.Mutex // guards cancel
	cancel context.CancelFunc

	scanMu sync.Mutex // serializes scan passes
}

func NewTask(cfg config.Config, mailcfg mailboxConfig.Config, extractors *scraper.Registry, completed completedclient.Client, zaplog *zap.Logger) *Task {
	return &Task{
		cfg:        cfg,
		extractors: extractors,
		completed:  completed,
		zaplog:     zaplog,
		newClient: func(readOnly bool) mailboxClient {
			return mailbox.NewClient(mailcfg, readOnly, zaplog)
		},
	}
}

// Run ticks Execute at the configured interval until ctx is done. Each tick
// runs detached; Execute itself supersedes the previous session.
func (t *Task) Run(ctx context.Context) {
	go t.Execute(ctx)

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.Exit()
			return
		case <-ticker.C:
			go t.Execute(ctx)
		}
	}
}

// Execute is one scheduler invocation: supersede the previous session, scan
// once, then hold an idle session until it ends or the next tick cancels
// it. Every failure is logged and swallowed so the next tick still runs.
func (t *Task) Execute(ctx context.Context) {
	sessCtx := t.rearm(ctx)

	if err := t.scan(sessCtx); err != nil && !errors.Is(err, context.Canceled) {
		t.zaplog.Error("mail scan failed", zap.Error(err))
	}
	if sessCtx.Err() != nil {
		return
	}

	session := t.newClient(true)
	go t.watch(sessCtx, session)

	err := session.Run(sessCtx)
	switch {
	case errors.Is(err, context.Canceled):
		t.zaplog.Warn("idle mail session cancelled")
	case err != nil:
		t.zaplog.Error("idle mail session failed", zap.Error(err))
	}
}

// rearm cancels the previous session and installs a fresh per-tick context.
func (t *Task) rearm(ctx context.Context) context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	sessCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	return sessCtx
}

// Exit cancels the active idle session and any in-flight reconnect.
func (t *Task) Exit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// watch reacts to mailbox events for the lifetime of one idle session. It
// returns when the session closes its event channel or ctx is cancelled.
func (t *Task) watch(ctx context.Context, session mailboxClient) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-session.Events():
			if !ok {
				return
			}
			if ev.Kind != mailbox.EventCountChanged {
				continue
			}
			if err := t.scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
				t.zaplog.Error("mail scan failed", zap.Error(err))
			}
		}
	}
}

// scan is one reconciliation pass: fetch all unseen messages, post every
// qualifying notice to the completion endpoint, and mark a mail seen only
// once the endpoint confirmed it. At most one pass runs at a time.
func (t *Task) scan(ctx context.Context) error {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()

	client := t.newClient(false)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()
	if err := client.Authenticate(ctx); err != nil {
		return err
	}

	messages, err := client.UnseenMessages(ctx)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		extractor, ok := t.extractors.Find(msg.From, msg.Subject)
		if !ok {
			continue
		}

		notice, err := extractor.Extract(msg.HTML)
		if err != nil {
			// one malformed mail never aborts the batch
			t.zaplog.Warn("notification unparseable, skipping",
				zap.Uint32("uid", msg.UID), zap.Error(err))
			continue
		}

		if err := t.completed.PostCompleted(ctx, notice); err != nil {
			t.zaplog.Warn("payment not completed, leaving unseen",
				zap.Uint32("uid", msg.UID), zap.Error(err))
			continue
		}

		if err := client.MarkSeen(ctx, msg.UID); err != nil {
			return err
		}
	}
	return nil
}
