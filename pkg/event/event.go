package event

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the event store.
var (
	ErrUnknownTier = errors.New("event: unknown tier")
	ErrNotFound    = errors.New("event: not found")
	ErrInvalidSpan = errors.New("event: start_time after end_time")
)

// Importance is the emotional-salience evaluation of an event. Arousal runs
// 1 to 10; the promotion threshold sits at 5.
type Importance struct {
	Emotion     string `json:"emotion"`
	Arousal     int    `json:"emotional_arousal"`
	IsMemorable bool   `json:"is_memorable"`
}

// ArousalThreshold is the minimum emotional arousal for an event to be
// promoted to associative memory and to retain its detail text.
const ArousalThreshold = 5

// Salient reports whether the event crosses the promotion threshold.
func (i Importance) Salient() bool {
	return i.Arousal >= ArousalThreshold
}

// IndexTerms maps an index category (activity, location, object, topic) to
// the phrases extracted for it.
type IndexTerms map[string][]string

// Phrases flattens all terms, walking categories in sorted order so the
// result is deterministic. Retrieval fan-out merges results in phrase
// order, so the order here is part of the ranking.
func (it IndexTerms) Phrases() []string {
	categories := make([]string, 0, len(it))
	for c := range it {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	var out []string
	for _, c := range categories {
		out = append(out, it[c]...)
	}
	return out
}

// PersonaFact carries the confidence metadata of a persona-tier event.
type PersonaFact struct {
	Kind  string  `json:"kind"`
	Score float64 `json:"score"`
}

// Metadata is the typed metadata attached to an event. Which fields are set
// depends on the tier: evaluated roll-ups carry Importance and Index,
// persona facts carry Persona.
type Metadata struct {
	Importance *Importance  `json:"importance,omitempty"`
	Index      IndexTerms   `json:"index,omitempty"`
	Persona    *PersonaFact `json:"persona,omitempty"`
}

// Event is the fundamental unit of memory. Events are append-only: once
// committed they are never mutated.
type Event struct {
	MemoryID string `json:"memory_id"`
	UserID   string `json:"user_id"`
	Tier     Tier   `json:"tier"`

	// StartTime and EndTime bound the half-open interval the event covers,
	// in milliseconds since epoch. For roll-ups this is the actual content
	// span of the cluster, not the nominal window.
	StartTime int64 `json:"start_time"`
	EndTime   int64 `json:"end_time"`

	// Content is the short summary used for retrieval. Detail is the
	// extended description; it is cleared for events below the arousal
	// threshold before persistence.
	Content string `json:"content"`
	Detail  string `json:"detail,omitempty"`

	// Importance is the normalized salience in [0,1] (arousal / 10).
	Importance float64  `json:"importance"`
	Meta       Metadata `json:"metadata"`

	// CreatedAt is when the record was written, distinct from the span.
	CreatedAt int64 `json:"created_at"`
}

// Now returns the current time in milliseconds since epoch.
func Now() int64 {
	return time.Now().UnixMilli()
}

// NewID derives a stable memory ID from user, creation time and a UUID.
func NewID(userID string, createdAt int64) string {
	return fmt.Sprintf("%s_%d_%s", userID, createdAt, uuid.New())
}

// Validate checks event invariants before persistence.
func (e *Event) Validate() error {
	if e.UserID == "" {
		return errors.New("event: empty user_id")
	}
	if e.StartTime > e.EndTime {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidSpan, e.StartTime, e.EndTime)
	}
	return nil
}

// Salient reports whether the event carries an importance evaluation at or
// above the promotion threshold.
func (e *Event) Salient() bool {
	return e.Meta.Importance != nil && e.Meta.Importance.Salient()
}

// FormatSpan renders the event with its absolute time span, the form fed to
// roll-up summarization prompts.
func (e *Event) FormatSpan() string {
	return fmt.Sprintf("%s - %s: %s", formatMillis(e.StartTime), formatMillis(e.EndTime), e.Content)
}

// FormatDescribed renders the event with summary and detail when both are
// present. Events stripped of detail render as summary only.
func (e *Event) FormatDescribed(includeTime bool) string {
	var b strings.Builder
	if includeTime {
		fmt.Fprintf(&b, "%s - %s: ", formatMillis(e.StartTime), formatMillis(e.EndTime))
	}
	switch {
	case e.Content != "" && e.Detail != "":
		fmt.Fprintf(&b, "Summary: %s Detail: %s", e.Content, e.Detail)
	case e.Detail != "":
		b.WriteString(e.Detail)
	default:
		fmt.Fprintf(&b, "Summary: %s", e.Content)
	}
	return b.String()
}

// FormatList renders events one per line in span form.
func FormatList(events []*Event) string {
	lines := make([]string, len(events))
	for i, e := range events {
		lines[i] = e.FormatSpan()
	}
	return strings.Join(lines, "\n")
}

// FormatDescribedList renders events one per line in described form.
func FormatDescribedList(events []*Event, includeTime bool) string {
	lines := make([]string, len(events))
	for i, e := range events {
		lines[i] = e.FormatDescribed(includeTime)
	}
	return strings.Join(lines, "\n")
}

// FormatWindow renders a [start, end) window for log and error messages.
func FormatWindow(start, end int64) string {
	return fmt.Sprintf("%s - %s", formatMillis(start), formatMillis(end))
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

// DayStartHour is the hour a "day" begins. Roll-up lookback and active-user
// scoping use 4am rather than midnight so late nights attach to the
// preceding day.
const DayStartHour = 4

// DayStart returns the start of the current day (4am convention) for the
// given reference time in milliseconds, going back daysAgo additional days.
func DayStart(ref int64, daysAgo int) int64 {
	t := time.UnixMilli(ref)
	if t.Hour() < DayStartHour {
		daysAgo++
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), DayStartHour, 0, 0, 0, t.Location())
	return d.AddDate(0, 0, -daysAgo).UnixMilli()
}
