// Package conflict decides what happens when a replayed mutation hits a
// record that changed server-side while the client was offline. All
// decision functions are pure; the replay layer performs I/O based on
// the returned resolution.
package conflict

import (
	"errors"
	"fmt"
	"time"

	"github.com/herdsync/herdsync/internal/reason"
)

// Resolution names the winning side of a detected conflict.
type Resolution string

const (
	ServerWins Resolution = "server-wins"
	ClientWins Resolution = "client-wins"
)

// Record is one version of an entity as seen by either side: the full
// field set plus the write timestamp the server stamped on it.
type Record struct {
	ID        string         `json:"id"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Fields    map[string]any `json:"fields"`
}

// isZero reports whether the record carries no version information at
// all, which makes a conflict unresolvable.
func (r Record) isZero() bool {
	return r.ID == "" && r.UpdatedAt.IsZero() && len(r.Fields) == 0
}

// Envelope carries both versions of a conflicted record plus the
// resolution computed once at detection time.
type Envelope struct {
	ServerVersion Record     `json:"serverVersion"`
	ClientVersion Record     `json:"clientVersion"`
	Resolution    Resolution `json:"resolution"`
}

// Resolve compares write instants and picks a winner. Only a strictly
// newer client edit beats the server; on a tie the server wins, so an
// unverified local edit is never silently preferred.
func Resolve(serverUpdatedAt, clientUpdatedAt time.Time) Resolution {
	if clientUpdatedAt.After(serverUpdatedAt) {
		return ClientWins
	}

	return ServerWins
}

// HasConflict reports whether someone else wrote the record between the
// client's original fetch and its replay attempt: true iff the server's
// current timestamp is strictly newer than what the client last saw.
func HasConflict(serverUpdatedAt, clientExpectedUpdatedAt time.Time) bool {
	return serverUpdatedAt.After(clientExpectedUpdatedAt)
}

// Error is the conflict-class failure returned by a replay that hit a
// version mismatch. It unwraps to the CONFLICT taxonomy reason, so
// reason.IsConflict recognizes it without structural probing.
type Error struct {
	Envelope Envelope
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: entity %s server=%s client=%s resolution=%s",
		reason.Conflict.Reason,
		e.Envelope.ServerVersion.ID,
		e.Envelope.ServerVersion.UpdatedAt.Format(time.RFC3339),
		e.Envelope.ClientVersion.UpdatedAt.Format(time.RFC3339),
		e.Envelope.Resolution)
}

func (e *Error) Unwrap() error {
	return reason.Conflict
}

// NewError builds the conflict error for a detected version mismatch,
// computing the resolution from the two records' timestamps.
func NewError(serverVersion, clientVersion Record) *Error {
	return &Error{Envelope: Envelope{
		ServerVersion: serverVersion,
		ClientVersion: clientVersion,
		Resolution:    Resolve(serverVersion.UpdatedAt, clientVersion.UpdatedAt),
	}}
}

// ExtractData pulls the conflict envelope back out of an error chain.
// The second return is false when err is not conflict-class or when
// either version is missing; callers must then escalate instead of
// auto-resolving.
func ExtractData(err error) (*Envelope, bool) {
	var ce *Error
	if !errors.As(err, &ce) {
		return nil, false
	}

	env := ce.Envelope
	if env.ServerVersion.isZero() || env.ClientVersion.isZero() {
		return nil, false
	}

	return &env, true
}

// MergeForRetry lays the client's intended field changes over the fresh
// server record so a client-wins retry resubmits against current state
// without clobbering fields the client never touched. The server's
// UpdatedAt is deliberately absent from the result; the server assigns
// a new one on the next successful write.
func MergeForRetry(serverVersion Record, clientUpdates map[string]any) Record {
	merged := make(map[string]any, len(serverVersion.Fields)+len(clientUpdates))

	for k, v := range serverVersion.Fields {
		merged[k] = v
	}

	for k, v := range clientUpdates {
		merged[k] = v
	}

	delete(merged, "updatedAt")

	return Record{
		ID:     serverVersion.ID,
		Fields: merged,
	}
}
