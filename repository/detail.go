// Package repository holds the toggle snapshot: the detail and value types
// delivered by the remote evaluator and the concurrent cache serving lookups.
package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Detail is one evaluated toggle. Optional fields are nil when the evaluator did not send them.
type Detail[T any] struct {
	Value             T       `json:"value"`
	RuleIndex         *int    `json:"ruleIndex,omitempty"`
	VariationIndex    *int    `json:"variationIndex,omitempty"`
	Version           *uint64 `json:"version,omitempty"`
	Reason            string  `json:"reason"`
	TrackAccessEvents *bool   `json:"trackAccessEvents,omitempty"`
	DebugUntilTime    *int64  `json:"debugUntilTime,omitempty"` // unix millis
}

// Repository maps toggle key to detail. A Repository handed to the Cache is never mutated again.
type Repository map[string]Detail[Value]

// Parse decodes a sync response body.
func Parse(body []byte) (Repository, error) {
	var repo Repository
	if err := json.Unmarshal(body, &repo); err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, fmt.Errorf("repository must be a JSON object")
	}
	return repo, nil
}

// Checksum returns the SHA256 of a raw sync body, used to log unchanged snapshots.
func Checksum(body []byte) string {
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

// Convert copies every field of d except the value, which becomes v.
func Convert[T, U any](d Detail[T], v U) Detail[U] {
	return Detail[U]{
		Value:             v,
		RuleIndex:         d.RuleIndex,
		VariationIndex:    d.VariationIndex,
		Version:           d.Version,
		Reason:            d.Reason,
		TrackAccessEvents: d.TrackAccessEvents,
		DebugUntilTime:    d.DebugUntilTime,
	}
}

// Ptr returns a pointer to v. Handy for building details in tests and fixtures.
func Ptr[T any](v T) *T {
	return &v
}
