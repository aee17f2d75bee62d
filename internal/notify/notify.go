// Package notify announces finished scraping runs to downstream consumers.
package notify

import (
	"context"
	"time"
)

// Publisher sends one JSON-encoded payload to a topic and returns its message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Config names the Pub/Sub destination. An empty Topic disables notifications.
type Config struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether a topic is configured.
func (c Config) Enabled() bool {
	return c.Topic != ""
}

// DatasetSaved is published after a dataset is stored.
type DatasetSaved struct {
	RunID   string    `json:"run_id"`
	Units   int       `json:"units"`
	Backend string    `json:"backend"`
	SHA256  string    `json:"sha256"`
	SavedAt time.Time `json:"saved_at"`
}
