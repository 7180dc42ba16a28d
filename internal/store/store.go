package store

import (
	"context"
	"time"
)

// ChannelKind identifies the class of a message stream.
type ChannelKind string

const (
	ChannelGlobal  ChannelKind = "global"
	ChannelRoom    ChannelKind = "room"
	ChannelPrivate ChannelKind = "private"
)

// Channel is an addressable message stream with its own bounded history.
type Channel struct {
	Kind ChannelKind
	Name string // room name or conversation key; empty for global
}

// GlobalChannel returns the channel every registered connection receives.
func GlobalChannel() Channel {
	return Channel{Kind: ChannelGlobal}
}

// RoomChannel returns the channel of a named room.
func RoomChannel(name string) Channel {
	return Channel{Kind: ChannelRoom, Name: name}
}

// PrivateChannel returns the channel identified by a conversation key.
func PrivateChannel(key string) Channel {
	return Channel{Kind: ChannelPrivate, Name: key}
}

// Key is the storage key of the channel.
func (c Channel) Key() string {
	if c.Kind == ChannelGlobal {
		return string(ChannelGlobal)
	}
	return string(c.Kind) + ":" + c.Name
}

// FileRef points at an uploaded file shared in a message.
type FileRef struct {
	URL          string `validate:"required,notblank"`
	OriginalName string `validate:"required,notblank"`
	Size         int64  `validate:"gte=0"`
}

// Message is an immutable history entry.
type Message struct {
	Channel   Channel
	Author    string
	Recipient string // set for private and file messages
	Text      string
	File      *FileRef
	CreatedAt time.Time
}

const (
	// DefaultHistoryLimit applies when a reader does not ask for a size.
	DefaultHistoryLimit = 20
	// MaxHistoryLimit caps every history read.
	MaxHistoryLimit = 100
)

// ClampLimit applies the default and the hard maximum to a requested read size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// Policy bounds history per channel class.
//
// Global and room channels keep a short scrollback that is enforced on every
// append. Private channels keep up to MaxMessages. Retention is applied by
// Prune, never on the append path.
type Policy struct {
	ScrollbackCap int           `mapstructure:"scrollback_cap" yaml:"scrollback_cap"`
	MaxMessages   int           `mapstructure:"max_messages" yaml:"max_messages"`
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
}

// DefaultPolicy returns the stock bounds: 100 scrollback, 1000 archived, 24h retention.
func DefaultPolicy() Policy {
	return Policy{
		ScrollbackCap: 100,
		MaxMessages:   1000,
		Retention:     24 * time.Hour,
	}
}

// CapFor returns the eager append cap for a channel class.
func (p Policy) CapFor(kind ChannelKind) int {
	if kind == ChannelPrivate {
		return p.MaxMessages
	}
	if p.ScrollbackCap > 0 && p.ScrollbackCap < p.MaxMessages {
		return p.ScrollbackCap
	}
	return p.MaxMessages
}

// HistoryStore keeps per-channel message logs.
type HistoryStore interface {
	// Append adds a message to the channel, creating the channel on first use.
	Append(ctx context.Context, ch Channel, msg Message) error
	// Recent returns up to ClampLimit(limit) messages, newest last.
	Recent(ctx context.Context, ch Channel, limit int) ([]Message, error)
	// Prune runs retention maintenance and reports how many messages were dropped.
	Prune(ctx context.Context, now time.Time) (int, error)
	Close() error
}
