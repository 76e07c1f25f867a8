package featureprobe

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/FeatureProbe/client-sdk-mobile/event"
	"github.com/FeatureProbe/client-sdk-mobile/transport"
)

// Defaults.
const (
	DefaultRefreshInterval = 10 * time.Second
	DefaultEventCapacity   = event.DefaultCapacity
)

// Config holds client configuration.
//
// Only ClientSDKKey and either RemoteURL or all three explicit URLs are
// required. Explicit URLs win over the ones derived from RemoteURL.
type Config struct {
	RemoteURL        string              `yaml:"remote_url"`   // e.g. "https://featureprobe.io/server"
	TogglesURL       string              `yaml:"toggles_url"`  // default {remote}/api/client-sdk/toggles
	EventsURL        string              `yaml:"events_url"`   // default {remote}/api/events
	RealtimeURL      string              `yaml:"realtime_url"` // default {remote}/realtime
	ClientSDKKey     string              `yaml:"client_sdk_key"`
	RefreshInterval  time.Duration       `yaml:"refresh_interval"` // poll and flush period
	StartWait        time.Duration       `yaml:"start_wait"`       // 0 = do not block New
	RealtimeDisabled bool                `yaml:"realtime_disabled"`
	EventCapacity    int                 `yaml:"event_capacity"`
	EventQueueLimit  int                 `yaml:"event_queue_limit"`
	TLS              transport.TLSConfig `yaml:"tls"`

	HTTPClient *http.Client          `yaml:"-"` // overrides TLS
	Logger     *slog.Logger          `yaml:"-"`
	Registerer prometheus.Registerer `yaml:"-"`
}

// LoadConfig reads a YAML config file. Durations use Go syntax ("5s", "500ms").
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks if all required config fields are present.
func (c Config) Validate() error {
	if c.ClientSDKKey == "" {
		return fmt.Errorf("ClientSDKKey required")
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("RefreshInterval must not be negative")
	}
	if c.StartWait < 0 {
		return fmt.Errorf("StartWait must not be negative")
	}
	if c.EventCapacity < 0 || c.EventQueueLimit < 0 {
		return fmt.Errorf("EventCapacity and EventQueueLimit must not be negative")
	}
	urls := c.URLs()
	endpoints := []struct{ name, url string }{
		{"toggles url", urls.Toggles},
		{"events url", urls.Events},
	}
	if !c.RealtimeDisabled {
		endpoints = append(endpoints, struct{ name, url string }{"realtime url", urls.Realtime})
	}
	for _, e := range endpoints {
		if _, err := transport.ParseURL(e.name, e.url); err != nil {
			return err
		}
	}
	return nil
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.EventCapacity == 0 {
		c.EventCapacity = DefaultEventCapacity
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// URLs are the resolved endpoints.
type URLs struct {
	Toggles  string
	Events   string
	Realtime string
}

// URLs derives the endpoints from RemoteURL, keeping any explicit ones.
func (c Config) URLs() URLs {
	remote := c.RemoteURL
	if remote != "" && !strings.HasSuffix(remote, "/") {
		remote += "/"
	}

	urls := URLs{
		Toggles:  c.TogglesURL,
		Events:   c.EventsURL,
		Realtime: c.RealtimeURL,
	}
	if remote == "" {
		return urls
	}
	if urls.Toggles == "" {
		urls.Toggles = remote + "api/client-sdk/toggles"
	}
	if urls.Events == "" {
		urls.Events = remote + "api/events"
	}
	if urls.Realtime == "" {
		urls.Realtime = remote + "realtime"
	}
	return urls
}
