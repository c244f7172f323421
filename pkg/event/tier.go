// Package event defines the memory event model and the durable event store
// used by the roll-up pipeline and the retrieval layer.
package event

import (
	"fmt"
	"time"
)

// Tier is a fixed time granularity in the memory hierarchy.
type Tier int

const (
	// TierSnapshot holds raw perceptual snapshots written by the
	// perception collaborators. It is the source of minute roll-ups.
	TierSnapshot Tier = iota
	TierMinute
	TierTenMinutes
	TierHour
	TierThreeHours
	TierDay
	// TierConversationTurn holds raw conversation turns written by the
	// dialog collaborators. It is the source of conversation roll-ups.
	TierConversationTurn
	TierConversation
	TierPersona
	TierAssociative
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierSnapshot:
		return "snapshot"
	case TierMinute:
		return "minute"
	case TierTenMinutes:
		return "ten_minutes"
	case TierHour:
		return "hour"
	case TierThreeHours:
		return "three_hours"
	case TierDay:
		return "day"
	case TierConversationTurn:
		return "conversation_turn"
	case TierConversation:
		return "conversation"
	case TierPersona:
		return "persona"
	case TierAssociative:
		return "associative"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier parses a tier name as produced by String.
func ParseTier(s string) (Tier, error) {
	for t := TierSnapshot; t <= TierAssociative; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// Duration returns the roll-up window length in milliseconds for a windowed
// tier. The day window is 23 hours, not 24: days run 4am to 3am so that
// late-night activity lands on the day it belongs to.
// Calling Duration on a non-windowed tier is a programmer error and fails
// fast with ErrUnknownTier.
func (t Tier) Duration() (int64, error) {
	switch t {
	case TierMinute:
		return time.Minute.Milliseconds(), nil
	case TierTenMinutes:
		return (10 * time.Minute).Milliseconds(), nil
	case TierHour:
		return time.Hour.Milliseconds(), nil
	case TierThreeHours:
		return (3 * time.Hour).Milliseconds(), nil
	case TierDay:
		return (23 * time.Hour).Milliseconds(), nil
	default:
		return 0, fmt.Errorf("%w: no window duration for %s", ErrUnknownTier, t)
	}
}

// Source returns the immediately finer tier a windowed tier is rolled up
// from. A roll-up never skips a tier.
func (t Tier) Source() (Tier, error) {
	switch t {
	case TierMinute:
		return TierSnapshot, nil
	case TierTenMinutes:
		return TierMinute, nil
	case TierHour:
		return TierTenMinutes, nil
	case TierThreeHours:
		return TierHour, nil
	case TierDay:
		return TierThreeHours, nil
	default:
		return 0, fmt.Errorf("%w: no source tier for %s", ErrUnknownTier, t)
	}
}

// Collection returns the vector collection a tier's records are indexed
// under. Collections are partitioned by purpose and never mixed.
func (t Tier) Collection() string {
	switch t {
	case TierPersona:
		return "persona"
	case TierAssociative:
		return "associative_memory"
	default:
		return "memory"
	}
}

// IndexCollection is the vector collection holding index-phrase records.
// Each record embeds a single extracted phrase and points back to its
// source event through the memory ID.
const IndexCollection = "memory_index"

// RollupTiers lists the windowed tiers finest first. Tier jobs may run
// concurrently, so a coarser tier can fire before its finer source has
// committed within a tick; its cursor then stops at the last committed
// source event and the remainder is picked up on the next tick.
var RollupTiers = []Tier{TierMinute, TierTenMinutes, TierHour, TierThreeHours, TierDay}

// Evaluated reports whether roll-up events at this tier are scored for
// emotional salience and tagged with index terms. Intermediate tiers are
// summary-only; the ends of the hierarchy feed retrieval.
func (t Tier) Evaluated() bool {
	return t == TierMinute || t == TierDay || t == TierConversation
}

// Promoted reports whether salient events at this tier are copied into the
// associative-memory collection.
func (t Tier) Promoted() bool {
	return t == TierDay || t == TierConversation
}
