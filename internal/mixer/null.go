package mixer

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/stemdeck/internal/models"
)

// NullChannel keeps a virtual clock and produces no sound.
// It backs the "null" player and lets the mixer run where mpv is not installed.
type NullChannel struct {
	mu      sync.Mutex
	offset  float64
	started time.Time
	playing bool
	volume  float64
	loaded  bool
	now     func() time.Time
}

// NewNullFactory returns a [ChannelFactory] of [NullChannel]s.
func NewNullFactory() ChannelFactory {
	return func(models.StemID, func(ChannelEvent)) (Channel, error) {
		return &NullChannel{now: time.Now}, nil
	}
}

func (c *NullChannel) Load(ctx context.Context, url string, loop bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	return ctx.Err()
}

func (c *NullChannel) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		c.started = c.now()
		c.playing = true
	}
	return nil
}

func (c *NullChannel) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = c.position()
	c.playing = false
	return nil
}

func (c *NullChannel) Position() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position(), nil
}

func (c *NullChannel) position() float64 {
	if !c.playing {
		return c.offset
	}
	return c.offset + c.now().Sub(c.started).Seconds()
}

func (c *NullChannel) Seek(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = seconds
	c.started = c.now()
	return nil
}

func (c *NullChannel) SetVolume(level float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = level
	return nil
}

func (c *NullChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	c.loaded = false
	return nil
}
