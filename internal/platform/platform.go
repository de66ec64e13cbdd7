// Package platform declares the OS surfaces the core consumes: the
// usage-measurement service that fires threshold-crossing callbacks and
// the enforcement surface that blocks identifiers. The real services are
// platform-owned and out of scope; the daemon commands and tests run
// against the in-memory simulator.
package platform

import (
	"context"
	"time"

	"github.com/breezelab/gust/internal/storage"
)

// Crossing is delivered when the OS usage monitor observes cumulative
// usage passing a registered threshold. CumulativeSeconds is the monitor's
// authoritative reading at the moment of crossing.
type Crossing struct {
	ThresholdSeconds  int64
	CumulativeSeconds int64
	At                time.Time
}

// Monitor is the OS usage-measurement service. Register replaces the full
// registration set; the OS caps how many thresholds may be registered at
// once, so callers hand it an already-bounded set.
type Monitor interface {
	Register(ctx context.Context, thresholds []int64) error
	Registered(ctx context.Context) ([]int64, error)
}

// Surface is the OS enforcement surface: a block set of opaque
// identifiers. UnblockCategory carves a single identifier out of the
// category rule that covers it (an exception list, not a rule change).
type Surface interface {
	Block(ctx context.Context, ids []storage.Token) error
	Unblock(ctx context.Context, id storage.Token) error
	UnblockCategory(ctx context.Context, id storage.Token) error
	Blocked(ctx context.Context) ([]storage.Token, error)
}
