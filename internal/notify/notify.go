// Package notify enqueues local notifications with the OS scheduler. The
// core never renders UI itself; it hands the OS a title, body, deep link
// and trigger, and the OS takes it from there. Because several processes
// reconcile the same state on their own wake points, the dispatcher keeps
// a short dedup window so the user is not pinged twice for one event.
package notify

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/breezelab/gust/internal/metrics"
)

// Trigger controls when the OS fires a notification.
type Trigger struct {
	// At schedules delivery for a wall-clock instant. Zero means
	// immediate delivery.
	At time.Time

	// Repeats re-arms a calendar trigger daily at the same time.
	Repeats bool
}

// Immediate is the zero trigger, delivered right away.
var Immediate = Trigger{}

// Notification is one enqueue request. ID is stable per logical event so
// that re-enqueueing replaces rather than stacks, and so the dedup window
// has something to key on.
type Notification struct {
	ID       string
	Title    string
	Body     string
	DeepLink string
	Trigger  Trigger
}

// Sender is the OS-facing half: it hands notifications to the platform
// scheduler. Implementations must tolerate duplicate enqueues for the
// same ID by replacing the pending request.
type Sender interface {
	Enqueue(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, id string) error
}

// Dispatcher wraps a Sender with an expiring dedup window keyed on
// notification ID.
type Dispatcher struct {
	sender Sender
	recent *expirable.LRU[string, time.Time]
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher. Enqueues for an ID already sent
// within ttl are dropped.
func NewDispatcher(sender Sender, ttl time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		recent: expirable.NewLRU[string, time.Time](256, nil, ttl),
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Enqueue hands a notification to the sender unless the same ID was
// enqueued within the dedup window.
func (d *Dispatcher) Enqueue(ctx context.Context, n Notification) error {
	if _, seen := d.recent.Get(n.ID); seen {
		metrics.NotificationsDeduped.Inc()
		d.logger.Debug().Str("id", n.ID).Msg("Notification suppressed by dedup window")
		return nil
	}

	if err := d.sender.Enqueue(ctx, n); err != nil {
		return err
	}

	d.recent.Add(n.ID, time.Now())
	metrics.NotificationsEnqueued.Inc()
	d.logger.Debug().Str("id", n.ID).Str("title", n.Title).Msg("Notification enqueued")
	return nil
}

// Cancel withdraws a pending notification and forgets its dedup entry so
// a later re-enqueue goes through.
func (d *Dispatcher) Cancel(ctx context.Context, id string) error {
	d.recent.Remove(id)
	return d.sender.Cancel(ctx, id)
}

// LogSender is a Sender that only logs. The monitor daemon uses it on
// platforms without a notification bridge, and tests use it as a spy via
// the callbacks.
type LogSender struct {
	logger zerolog.Logger

	// OnEnqueue and OnCancel, when set, observe calls.
	OnEnqueue func(Notification)
	OnCancel  func(string)
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notify").Logger()}
}

func (s *LogSender) Enqueue(ctx context.Context, n Notification) error {
	s.logger.Info().
		Str("id", n.ID).
		Str("title", n.Title).
		Str("deep_link", n.DeepLink).
		Bool("repeats", n.Trigger.Repeats).
		Msg("Notification")
	if s.OnEnqueue != nil {
		s.OnEnqueue(n)
	}
	return nil
}

func (s *LogSender) Cancel(ctx context.Context, id string) error {
	s.logger.Info().Str("id", id).Msg("Notification cancelled")
	if s.OnCancel != nil {
		s.OnCancel(id)
	}
	return nil
}
