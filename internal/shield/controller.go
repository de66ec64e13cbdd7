package shield

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/breezelab/gust/internal/deeplink"
	"github.com/breezelab/gust/internal/metrics"
	"github.com/breezelab/gust/internal/notify"
	"github.com/breezelab/gust/internal/platform"
	"github.com/breezelab/gust/internal/storage"
)

// Action tells the enforcement UI what to do with the block screen after
// a button handler runs.
type Action int

const (
	// KeepOpen leaves the block screen up.
	KeepOpen Action = iota
	// Close dismisses the block screen.
	Close
)

// Response is the result of a block-screen button press.
type Response struct {
	Action Action
}

// Controller runs in the enforcement-UI process. It reconciles the OS
// block set against the stored limit and handles the two block-screen
// buttons. It never mutates shield state; engagement and release belong
// to the usage-driven state machine.
type Controller struct {
	state      storage.StateStore
	surface    platform.Surface
	dispatcher *notify.Dispatcher
	logger     zerolog.Logger
}

// NewController creates a block-screen controller.
func NewController(state storage.StateStore, surface platform.Surface, dispatcher *notify.Dispatcher, logger zerolog.Logger) *Controller {
	return &Controller{
		state:      state,
		surface:    surface,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "shield").Logger(),
	}
}

// Reconcile makes the OS block set cover every limited target while the
// shield is active, and clears it once the shield is down. It only ever
// adds while active, so a per-target unlock granted elsewhere survives
// until the next full reconcile re-includes it. Safe to run on every
// wake point.
func (c *Controller) Reconcile(ctx context.Context) error {
	st, err := c.state.GetShield(ctx)
	if err != nil {
		return fmt.Errorf("loading shield state: %w", err)
	}

	if !st.Active {
		blocked, err := c.surface.Blocked(ctx)
		if err != nil {
			return fmt.Errorf("reading block set: %w", err)
		}
		for _, id := range blocked {
			if err := c.surface.Unblock(ctx, id); err != nil {
				return fmt.Errorf("unblocking %s: %w", id, err)
			}
		}
		return nil
	}

	limit, err := c.state.GetLimit(ctx)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil
		}
		return fmt.Errorf("loading limit: %w", err)
	}

	targets := limit.Targets()
	blocked, err := c.surface.Blocked(ctx)
	if err != nil {
		return fmt.Errorf("reading block set: %w", err)
	}

	have := make(map[storage.Token]bool, len(blocked))
	for _, id := range blocked {
		have[id] = true
	}

	var missing []storage.Token
	for _, id := range targets {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	c.logger.Debug().Int("count", len(missing)).Msg("Adding missing targets to block set")
	return c.surface.Block(ctx, missing)
}

// HandleClose handles the close button: the user acknowledges the shield
// and leaves. State is untouched; a gentle invite back is scheduled so
// the pet is not forgotten.
func (c *Controller) HandleClose(ctx context.Context) (Response, error) {
	err := c.dispatcher.Enqueue(ctx, notify.Notification{
		ID:       "shield.invite-back",
		Title:    "Your pet misses you",
		Body:     "The wind is still blowing. Check in to see it settle.",
		DeepLink: deeplink.URI(deeplink.Pet),
		Trigger:  notify.Immediate,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to enqueue invite-back notification")
	}
	return Response{Action: Close}, nil
}

// HandleUnlock handles the unlock button for one target: the identifier
// is carved out of the block set while everything else stays blocked and
// the shield stays active. Direct app and domain targets are removed
// outright; anything else was swept in by a category rule and gets an
// exception instead.
func (c *Controller) HandleUnlock(ctx context.Context, target storage.Token) (Response, error) {
	limit, err := c.state.GetLimit(ctx)
	if err != nil && err != storage.ErrNotFound {
		return Response{Action: KeepOpen}, fmt.Errorf("loading limit: %w", err)
	}

	direct := false
	if limit != nil {
		for _, id := range limit.Apps {
			if id == target {
				direct = true
			}
		}
		for _, id := range limit.Domains {
			if id == target {
				direct = true
			}
		}
	}

	if direct {
		err = c.surface.Unblock(ctx, target)
	} else {
		err = c.surface.UnblockCategory(ctx, target)
	}
	if err != nil {
		return Response{Action: KeepOpen}, fmt.Errorf("unlocking %s: %w", target, err)
	}

	metrics.ShieldUnlocks.Inc()
	c.logger.Info().Str("target", string(target)).Bool("direct", direct).Msg("Target unlocked")

	if err := c.dispatcher.Enqueue(ctx, notify.Notification{
		ID:       "shield.unlocked." + string(target),
		Title:    "Unlocked",
		Body:     fmt.Sprintf("%s is available again. The shield stays up for the rest.", target),
		DeepLink: deeplink.URI(deeplink.ShieldReview),
		Trigger:  notify.Immediate,
	}); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to enqueue unlock notification")
	}

	return Response{Action: KeepOpen}, nil
}
