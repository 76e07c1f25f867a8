// Package user describes the caller identity sent to the remote evaluator.
package user

import (
	"encoding/base64"
	"encoding/json"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// User is the evaluation subject. Attributes may be added until the user is
// handed to a client, which keeps its own copy.
type User struct {
	mu    sync.RWMutex
	key   string
	attrs map[string]string
}

// wireUser is the canonical JSON form (encoding/json sorts map keys).
type wireUser struct {
	Key   string            `json:"key"`
	Attrs map[string]string `json:"attrs"`
}

// New creates a user. An empty key is replaced by a random UUID so anonymous
// sessions still get a stable identity for their lifetime.
func New(key string) *User {
	if key == "" {
		key = uuid.NewString()
	}
	return &User{
		key:   key,
		attrs: make(map[string]string),
	}
}

// Key returns the user key.
func (u *User) Key() string {
	return u.key
}

// With sets one attribute and returns u for chaining.
func (u *User) With(k, v string) *User {
	u.mu.Lock()
	u.attrs[k] = v
	u.mu.Unlock()
	return u
}

// WithAttrs merges attrs into the user and returns u for chaining.
func (u *User) WithAttrs(attrs map[string]string) *User {
	u.mu.Lock()
	maps.Copy(u.attrs, attrs)
	u.mu.Unlock()
	return u
}

// Get returns one attribute.
func (u *User) Get(k string) (string, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	v, ok := u.attrs[k]
	return v, ok
}

// Attrs returns a copy of all attributes.
func (u *User) Attrs() map[string]string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return maps.Clone(u.attrs)
}

// Clone returns an independent copy.
func (u *User) Clone() *User {
	return &User{
		key:   u.key,
		attrs: u.Attrs(),
	}
}

// MarshalJSON encodes the canonical form.
func (u *User) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireUser{Key: u.key, Attrs: u.Attrs()})
}

// UnmarshalJSON decodes the canonical form.
func (u *User) UnmarshalJSON(data []byte) error {
	var w wireUser
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Attrs == nil {
		w.Attrs = make(map[string]string)
	}
	u.mu.Lock()
	u.key = w.Key
	u.attrs = w.Attrs
	u.mu.Unlock()
	return nil
}

// Base64 returns the base64 (standard alphabet) of the canonical JSON, as sent
// in the "user" query parameter.
func (u *User) Base64() string {
	data, err := u.MarshalJSON()
	if err != nil {
		// map[string]string always encodes
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(data)
}
