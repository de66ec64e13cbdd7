package storage

import (
	"time"
)

// Token is an opaque identifier for a restricted app, category, or web
// domain. The core never interprets tokens; it only hands them to the OS
// enforcement surface.
type Token string

// UsageCounters is the raw, authoritative usage record for the current day.
// CumulativeSeconds is monotonic non-decreasing within a day and is only
// written by the usage ingest handler; the day-boundary reset zeroes it.
type UsageCounters struct {
	CumulativeSeconds int64     `json:"cumulative_seconds"`
	LastThresholdAt   time.Time `json:"last_threshold_at"`
}

// LimitConfig is the user-configured restriction set. Read-only to the
// core; the configuration flow owns it.
type LimitConfig struct {
	LimitSeconds int64   `json:"limit_seconds"`
	Apps         []Token `json:"apps"`
	Categories   []Token `json:"categories"`
	Domains      []Token `json:"domains"`
}

// Targets returns every identifier the shield applies to.
func (l *LimitConfig) Targets() []Token {
	out := make([]Token, 0, len(l.Apps)+len(l.Categories)+len(l.Domains))
	out = append(out, l.Apps...)
	out = append(out, l.Categories...)
	out = append(out, l.Domains...)
	return out
}

// ShieldState records whether the enforcement shield is logically engaged.
// ActivatedAt is set exactly when Active transitions false to true and
// cleared on true to false; Active == (ActivatedAt != nil) always holds.
type ShieldState struct {
	Active            bool       `json:"active"`
	ActivatedAt       *time.Time `json:"activated_at,omitempty"`
	FallRatePerSecond float64    `json:"fall_rate_per_second,omitempty"`
}

// BreakKind discriminates break sessions.
type BreakKind string

const (
	// BreakCasual is revocable at any time and earns no coins.
	BreakCasual BreakKind = "casual"
	// BreakCommitted is time-boxed and cannot be cancelled before its term.
	BreakCommitted BreakKind = "committed"
)

// BreakSession is the single active break, if any. Minutes is the
// committed term and is zero for casual sessions.
type BreakSession struct {
	Kind      BreakKind `json:"kind"`
	StartedAt time.Time `json:"started_at"`
	Minutes   int64     `json:"minutes,omitempty"`
}

// CommittedUntil returns the earliest instant a committed session may be
// cancelled or completed. For casual sessions it is the start time.
func (s *BreakSession) CommittedUntil() time.Time {
	if s.Kind != BreakCommitted {
		return s.StartedAt
	}
	return s.StartedAt.Add(time.Duration(s.Minutes) * time.Minute)
}

// CompletedBreak is an append-only history record of a finished break.
// MinutesCounted is what was actually forgiven (committed sessions clamp
// to their term); ReductionSeconds duplicates it in seconds so the commit
// script does not re-derive it.
type CompletedBreak struct {
	ID               string    `json:"id"`
	Day              string    `json:"day"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	MinutesCommitted int64     `json:"minutes_committed"`
	MinutesCounted   int64     `json:"minutes_counted"`
	ReductionSeconds int64     `json:"reduction_seconds"`
	CoinsAwarded     int64     `json:"coins_awarded"`
}
