// Package event records evaluation telemetry and uploads it in batches.
package event

import (
	"time"

	"github.com/FeatureProbe/client-sdk-mobile/repository"
	"github.com/FeatureProbe/client-sdk-mobile/user"
)

// Kind is the "kind" discriminator of an uploaded event.
type Kind string

const (
	KindAccess Kind = "access"
	KindDebug  Kind = "debug"
	KindCustom Kind = "custom"
)

// Event is any uploadable telemetry record.
type Event interface {
	EventKind() Kind
}

// AccessEvent is emitted once per lookup of a toggle present in the repository.
type AccessEvent struct {
	Kind              Kind             `json:"kind"`
	Time              int64            `json:"time"` // unix millis
	Key               string           `json:"key"`
	User              string           `json:"user"`
	Value             repository.Value `json:"value"`
	VariationIndex    *int             `json:"variationIndex,omitempty"`
	RuleIndex         *int             `json:"ruleIndex,omitempty"`
	Version           *uint64          `json:"version,omitempty"`
	TrackAccessEvents *bool            `json:"trackAccessEvents,omitempty"`
}

// EventKind implements Event.
func (e AccessEvent) EventKind() Kind { return KindAccess }

// DebugEvent carries the full user and reason while the toggle is in debug mode.
type DebugEvent struct {
	AccessEvent
	UserDetail *user.User `json:"userDetail"`
	Reason     string     `json:"reason"`
}

// EventKind implements Event.
func (e DebugEvent) EventKind() Kind { return KindDebug }

// CustomEvent is an explicit application-triggered event.
type CustomEvent struct {
	Kind  Kind     `json:"kind"`
	Time  int64    `json:"time"`
	User  string   `json:"user"`
	Name  string   `json:"name"`
	Value *float64 `json:"value,omitempty"`
}

// EventKind implements Event.
func (e CustomEvent) EventKind() Kind { return KindCustom }

// UnixMillis returns t as unix epoch milliseconds.
func UnixMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// ForEvaluation returns the events for one lookup of a found toggle: always an
// AccessEvent, plus a DebugEvent with the same timestamp while the detail's
// debugUntilTime is not yet reached.
func ForEvaluation(now int64, key string, u *user.User, d repository.Detail[repository.Value]) []Event {
	access := AccessEvent{
		Kind:              KindAccess,
		Time:              now,
		Key:               key,
		User:              u.Key(),
		Value:             d.Value,
		VariationIndex:    d.VariationIndex,
		RuleIndex:         d.RuleIndex,
		Version:           d.Version,
		TrackAccessEvents: d.TrackAccessEvents,
	}

	if d.DebugUntilTime == nil || *d.DebugUntilTime < now {
		return []Event{access}
	}

	debug := DebugEvent{
		AccessEvent: access,
		UserDetail:  u,
		Reason:      d.Reason,
	}
	debug.Kind = KindDebug
	return []Event{access, debug}
}

// NewCustom builds a CustomEvent.
func NewCustom(now int64, u *user.User, name string, value *float64) CustomEvent {
	return CustomEvent{
		Kind:  KindCustom,
		Time:  now,
		User:  u.Key(),
		Name:  name,
		Value: value,
	}
}
