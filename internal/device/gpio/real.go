//go:build linux

package gpio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"telekinesis/internal/actuation"
	"telekinesis/internal/device"
)

// Client implements device.Client over GPIO output lines.
type Client struct {
	cfg  Config
	chip *gpiocdev.Chip

	mu     sync.Mutex
	lines  map[string]*gpiocdev.Line
	byName map[string]Line
	events chan device.ClientEvent
	closed bool
}

// Open requests every configured line as an output driven inactive.
func Open(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Chip) == "" {
		cfg.Chip = "gpiochip0"
	}
	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		chip:   chip,
		lines:  map[string]*gpiocdev.Line{},
		byName: map[string]Line{},
		events: make(chan device.ClientEvent),
	}
	for _, l := range cfg.Lines {
		ln, err := chip.RequestLine(l.Offset, gpiocdev.AsOutput(level(false, l.ActiveLow)))
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("request line %d (%s): %w", l.Offset, l.Name, err)
		}
		k := strings.ToLower(strings.TrimSpace(l.Name))
		c.lines[k] = ln
		c.byName[k] = l
	}
	return c, nil
}

func (c *Client) Devices(ctx context.Context) ([]device.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.cfg.devices(), nil
}

func (c *Client) WriteScalar(ctx context.Context, a device.Actuator, s actuation.Speed) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := strings.ToLower(strings.TrimSpace(a.Device))
	c.mu.Lock()
	defer c.mu.Unlock()
	ln := c.lines[k]
	if c.closed || ln == nil {
		return fmt.Errorf("%s: %w", a.Device, device.ErrDisconnected)
	}
	if err := ln.SetValue(level(!s.IsZero(), c.byName[k].ActiveLow)); err != nil {
		return fmt.Errorf("set line %s: %w", a.Device, err)
	}
	return nil
}

// Events never fires: GPIO lines don't come and go at runtime.
func (c *Client) Events() <-chan device.ClientEvent { return c.events }

// Close drives every line inactive, then releases lines and chip.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)

	var errs []error
	for k, ln := range c.lines {
		if err := ln.SetValue(level(false, c.byName[k].ActiveLow)); err != nil {
			errs = append(errs, fmt.Errorf("reset line %s: %w", k, err))
		}
		if err := ln.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %s: %w", k, err))
		}
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
