package messenger

import (
	"fmt"
	"time"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
)

// ContactDestinationName scopes the contact facing destination of every messenger
var ContactDestinationName = identity.NewDestinationName("zentalk", "messenger.contact")

// Config holds protocol timings and sizes
type Config struct {
	AnnounceInterval  time.Duration `yaml:"announce_interval"`
	AckTimeout        time.Duration `yaml:"ack_timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	KnownIDsCapacity  int           `yaml:"known_ids_capacity"`
	CommandQueueDepth int           `yaml:"command_queue_depth"`
}

// DefaultConfig returns default protocol configuration
func DefaultConfig() Config {
	return Config{
		AnnounceInterval:  5 * time.Second,
		AckTimeout:        888 * time.Millisecond,
		MaxAttempts:       8,
		KnownIDsCapacity:  512,
		CommandQueueDepth: 1,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.AnnounceInterval <= 0 {
		return fmt.Errorf("announce_interval must be positive")
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack_timeout must be positive")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.KnownIDsCapacity < 1 {
		return fmt.Errorf("known_ids_capacity must be at least 1")
	}
	if c.CommandQueueDepth < 0 {
		return fmt.Errorf("command_queue_depth must not be negative")
	}
	return nil
}
