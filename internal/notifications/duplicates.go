package notifications

import (
	"strings"
	"sync"

	"notification-sync/internal/protocol"
)

// Older peers give updated or grouped notifications no stable shared id, so
// correlation runs on a match string derived from title and body text. The
// tracker holds at most one record per match string, in one of two pending
// states; absence of a record is the third, implicit state.

type dupState int

const (
	dupPendingClose dupState = iota + 1
	dupPendingSilence
)

type dupRecord struct {
	state dupState
	id    string // display id tracked for a future close, silence only
}

type displayDecision int

const (
	displayShow displayDecision = iota
	displaySuppress
	displayWithdraw
)

// duplicateTracker owns the match-string table. Transfer completions run on
// their own goroutines, so the table takes a mutex.
type duplicateTracker struct {
	mu      sync.Mutex
	records map[string]*dupRecord
}

func newDuplicateTracker() *duplicateTracker {
	return &duplicateTracker{records: make(map[string]*dupRecord)}
}

// RequestClose marks the match string for closing. When a displayed id is
// already tracked it is returned for immediate withdrawal and the record is
// consumed; otherwise a pending-close record covers the case where the
// cancel arrives before the display-producing packet.
func (t *duplicateTracker) RequestClose(match string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[match]
	if ok && rec.id != "" {
		delete(t.records, match)
		return rec.id, true
	}
	if ok {
		rec.state = dupPendingClose
		return "", false
	}
	t.records[match] = &dupRecord{state: dupPendingClose}
	return "", false
}

// RequestSilence marks the match string for suppression, preserving any
// tracked id. A pending close is stronger and is left in place.
func (t *duplicateTracker) RequestSilence(match string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[match]
	if !ok {
		t.records[match] = &dupRecord{state: dupPendingSilence}
		return
	}
	if rec.state != dupPendingClose {
		rec.state = dupPendingSilence
	}
}

// ResolveDisplay decides the fate of a notification that is ready to show.
// A pending close consumes the record and withdraws the id instead of
// showing; a pending silence tracks the id for a future close and
// suppresses; no record means display normally.
func (t *duplicateTracker) ResolveDisplay(match, id string) displayDecision {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[match]
	if !ok {
		return displayShow
	}
	switch rec.state {
	case dupPendingClose:
		delete(t.records, match)
		return displayWithdraw
	case dupPendingSilence:
		rec.id = id
		return displaySuppress
	}
	return displayShow
}

// tickerSeparator is the U+2010 hyphen older peers place between the
// summary and body inside ticker.
const tickerSeparator = " ‐ "

// matchKey normalizes a notification body into its match string. The same
// normalization must run on every display, close and silence path or
// correlation silently fails.
func matchKey(body protocol.NotificationBody) string {
	if body.Title != "" {
		return body.Title + ": " + body.Text
	}
	if i := strings.Index(body.Ticker, tickerSeparator); i >= 0 {
		return body.Ticker[:i] + ": " + body.Ticker[i+len(tickerSeparator):]
	}
	return body.Ticker
}
