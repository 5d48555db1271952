// Package notify delivers classification verdicts to operators.
package notify

import (
	"context"
	"errors"
	"log"
	"time"
)

// Message is one verdict notification.
type Message struct {
	Title   string
	Body    string // markdown
	TokenID string
	Pool    string
	Status  string
	SentAt  time.Time
}

// Notifier delivers a Message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Multi fans a message out to every notifier. All are attempted; the
// joined error of the failures is returned.
type Multi struct {
	notifiers []Notifier
	logger    *log.Logger
}

// NewMulti creates a Multi over notifiers. Nil entries are skipped.
func NewMulti(logger *log.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = log.Default()
	}
	m := &Multi{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len returns the number of configured notifiers.
func (m *Multi) Len() int { return len(m.notifiers) }

// Notify implements Notifier.
func (m *Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			m.logger.Printf("[notify] WARN: %T: %v", n, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards messages, logging the title.
type Noop struct {
	Logger *log.Logger
}

// Notify implements Notifier.
func (n Noop) Notify(_ context.Context, msg Message) error {
	if n.Logger != nil {
		n.Logger.Printf("[notify] no channel configured, dropping %q", msg.Title)
	}
	return nil
}

var (
	_ Notifier = (*Multi)(nil)
	_ Notifier = Noop{}
)
