package scheduler

import "errors"

var (
	ErrStopped   = errors.New("scheduler stopped")
	ErrQueueFull = errors.New("scheduler queue full")
	ErrNoTargets = errors.New("no matching actuators")

	ErrUnsupportedCapability = errors.New("capability does not accept scalar writes")
	ErrInvalidAction         = errors.New("invalid action")
)
