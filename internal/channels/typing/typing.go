// Package typing provides a self-keepaliving "typing" indicator controller
// shared by every platform adapter whose transport expires the indicator
// after a few seconds (spec §4.7: "Typing indicators are raised as soon as
// any payload is produced, not at run start").
package typing

import (
	"log/slog"
	"sync"
	"time"
)

// Options configures a Controller.
type Options struct {
	// MaxDuration is the hard TTL after which the controller stops itself,
	// guarding against a stuck indicator if the run never reaches a
	// terminal state.
	MaxDuration time.Duration

	// KeepaliveInterval is how often StartFn is re-invoked to refresh the
	// platform's typing indicator before it expires.
	KeepaliveInterval time.Duration

	// StartFn raises (or refreshes) the indicator on the underlying
	// transport. Errors are logged, not fatal — a dropped refresh isn't
	// worth failing the run over.
	StartFn func() error
}

// Controller drives a single typing indicator's keepalive loop. Safe for
// concurrent Stop calls; Start must be called at most once.
type Controller struct {
	opts    Options
	stop    chan struct{}
	stopped sync.Once
}

// New creates a Controller. Call Start to begin raising the indicator.
func New(opts Options) *Controller {
	return &Controller{opts: opts, stop: make(chan struct{})}
}

// Start raises the indicator immediately and begins the keepalive loop in
// a background goroutine until Stop is called or MaxDuration elapses.
func (c *Controller) Start() {
	if err := c.opts.StartFn(); err != nil {
		slog.Debug("typing indicator failed", "error", err)
	}
	go c.loop()
}

func (c *Controller) loop() {
	interval := c.opts.KeepaliveInterval
	if interval <= 0 {
		interval = 4 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.NewTimer(c.opts.MaxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			if err := c.opts.StartFn(); err != nil {
				slog.Debug("typing indicator keepalive failed", "error", err)
			}
		}
	}
}

// Stop ends the keepalive loop. Safe to call multiple times or never.
func (c *Controller) Stop() {
	c.stopped.Do(func() { close(c.stop) })
}
