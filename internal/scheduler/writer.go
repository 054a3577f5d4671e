package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"telekinesis/internal/actuation"
	"telekinesis/internal/device"
)

type batch struct {
	ctx     context.Context
	targets []device.Actuator
	speed   actuation.Speed
	done    chan []WriteFailure
}

// submitBatch hands a batch to the writer and waits for its outcome. If ctx
// ends first the batch is abandoned; the writer skips it when still queued.
func (s *Service) submitBatch(ctx context.Context, targets []device.Actuator, speed actuation.Speed) []WriteFailure {
	if len(targets) == 0 {
		return nil
	}
	s.mu.Lock()
	writes, up := s.writes, s.writerUp
	s.mu.Unlock()

	b := &batch{ctx: ctx, targets: targets, speed: speed, done: make(chan []WriteFailure, 1)}
	select {
	case writes <- b:
	case <-ctx.Done():
		return nil
	case <-up.Done():
		return failAll(targets, speed, ErrStopped)
	}
	select {
	case fails := <-b.done:
		return fails
	case <-ctx.Done():
		return nil
	}
}

// writer is the only goroutine issuing hardware writes. Batches run in
// arrival order; inside a batch, distinct actuators are written in parallel.
func (s *Service) writer(ctx context.Context, in <-chan *batch) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-in:
			if b.ctx.Err() != nil {
				b.done <- nil
				continue
			}
			b.done <- s.flush(b)
		}
	}
}

func (s *Service) flush(b *batch) []WriteFailure {
	var (
		mu    sync.Mutex
		fails []WriteFailure
		g     errgroup.Group
		seen  = make(map[string]struct{}, len(b.targets))
	)
	for _, a := range b.targets {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		g.Go(func() error {
			wctx, cancel := context.WithTimeout(b.ctx, s.cfg.WriteTimeout)
			defer cancel()
			if err := s.deps.Writer.WriteScalar(wctx, a, b.speed); err != nil {
				mu.Lock()
				fails = append(fails, WriteFailure{Actuator: a.ID, Speed: b.speed.Value(), Error: err.Error()})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return fails
}

func failAll(targets []device.Actuator, speed actuation.Speed, err error) []WriteFailure {
	out := make([]WriteFailure, 0, len(targets))
	for _, a := range targets {
		out = append(out, WriteFailure{Actuator: a.ID, Speed: speed.Value(), Error: err.Error()})
	}
	return out
}
