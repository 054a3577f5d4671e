//go:build !linux

package gpio

import (
	"context"
	"errors"

	"telekinesis/internal/actuation"
	"telekinesis/internal/device"
)

// Client is not available on non-Linux platforms.
type Client struct{}

// Open returns an error on non-Linux platforms.
func Open(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (c *Client) Devices(context.Context) ([]device.Info, error) {
	return nil, errors.New("gpio: not supported")
}

func (c *Client) WriteScalar(context.Context, device.Actuator, actuation.Speed) error {
	return device.ErrDisconnected
}

func (c *Client) Events() <-chan device.ClientEvent { return nil }

func (c *Client) Close() error { return nil }
