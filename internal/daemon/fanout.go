// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"time"

	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/stream"
	"github.com/rs/zerolog"
)

const sinkTimeout = 3 * time.Second

// Sink receives every session transition.
type Sink interface {
	Name() string
	Handle(ctx context.Context, t stream.Transition) error
}

type sinkFunc struct {
	name string
	fn   func(ctx context.Context, t stream.Transition) error
}

func (s sinkFunc) Name() string { return s.name }

func (s sinkFunc) Handle(ctx context.Context, t stream.Transition) error { return s.fn(ctx, t) }

// NewSink wraps fn as a named Sink.
func NewSink(name string, fn func(ctx context.Context, t stream.Transition) error) Sink {
	return sinkFunc{name: name, fn: fn}
}

// Fanout delivers transitions to its sinks in order. A failing sink is logged and skipped.
type Fanout struct {
	sinks  []Sink
	logger zerolog.Logger
}

// NewFanout creates a fan-out over sinks. Nil sinks are ignored.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{logger: xglog.WithComponent("fanout")}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Run consumes updates until ctx is done or the channel closes.
func (f *Fanout) Run(ctx context.Context, updates <-chan stream.Transition) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-updates:
			if !ok {
				return nil
			}
			f.dispatch(ctx, t)
		}
	}
}

func (f *Fanout) dispatch(ctx context.Context, t stream.Transition) {
	for _, s := range f.sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		err := s.Handle(sctx, t)
		cancel()
		if err != nil {
			f.logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "fanout.sink_failed").
				Str("sink", s.Name()).
				Str(xglog.FieldSessionID, t.Snapshot.SessionID).
				Str(xglog.FieldNewState, string(t.To)).
				Msg("transition sink failed")
		}
	}
}
