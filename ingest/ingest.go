// Copyright (C) 2026 Fractal Labs.
// This file is part of fractal
//
// fractal is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// fractal is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with fractal.  If not, see <https://www.gnu.org/licenses/>.

// Package ingest drives the upstream event stream into the sharded store.
// One Ingestor is a single sequential consumer; running several in parallel
// is only safe if the upstream partitions events so that no two streams
// ever carry updates for the same account.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fractalhq/fractal/data/basics"
	"github.com/fractalhq/fractal/logging"
	"github.com/fractalhq/fractal/metrics"
	"github.com/fractalhq/fractal/pubsub"
	"github.com/fractalhq/fractal/store"
)

// ErrUpstreamDisconnect is returned by Run when the stream ends for any
// reason other than context cancellation. The session is over; supervision
// and reconnection are the caller's job.
var ErrUpstreamDisconnect = errors.New("ingest: upstream disconnected")

// Status is the ingestor's position in its session state machine.
type Status uint32

// Status values. Gap and ForkDetected are transient: the ingestor passes
// through them and returns to Streaming on the next event.
const (
	StatusConnected Status = iota
	StatusStreaming
	StatusGap
	StatusForkDetected
	StatusDisconnected
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusStreaming:
		return "streaming"
	case StatusGap:
		return "gap"
	case StatusForkDetected:
		return "fork-detected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Options tunes ingestor behavior.
type Options struct {
	// InferForkFromSlotRegression treats a rooted slot lower than one
	// already rooted as an implicit fork switch. Deployments whose
	// upstream sends explicit ForkSwitch events can turn this off.
	InferForkFromSlotRegression bool
}

// Stats are the ingestor's per-session counters.
type Stats struct {
	Applied   uint64
	Stale     uint64
	Malformed uint64
	Rollbacks uint64
}

// Ingestor consumes a Source and applies accepted updates to the store,
// forwarding every accepted change to the subscription bus.
type Ingestor struct {
	store *store.ShardedStore
	bus   *pubsub.Bus
	log   logging.Logger
	opts  Options

	status        atomic.Uint32
	highestRooted atomic.Uint64

	applied   atomic.Uint64
	stale     atomic.Uint64
	malformed atomic.Uint64
	rollbacks atomic.Uint64
}

// New creates an ingestor writing into st. bus may be nil when no
// subscription fan-out is wanted.
func New(st *store.ShardedStore, bus *pubsub.Bus, log logging.Logger, opts Options) *Ingestor {
	if log == nil {
		log = logging.Base()
	}
	return &Ingestor{store: st, bus: bus, log: log, opts: opts}
}

// Status returns the current session status.
func (ing *Ingestor) Status() Status {
	return Status(ing.status.Load())
}

// HighestRooted returns the highest finalized slot observed this session.
func (ing *Ingestor) HighestRooted() uint64 {
	return ing.highestRooted.Load()
}

// Stats returns the session counters.
func (ing *Ingestor) Stats() Stats {
	return Stats{
		Applied:   ing.applied.Load(),
		Stale:     ing.stale.Load(),
		Malformed: ing.malformed.Load(),
		Rollbacks: ing.rollbacks.Load(),
	}
}

func (ing *Ingestor) setStatus(s Status) {
	ing.status.Store(uint32(s))
}

// Run consumes src until the context is cancelled or the upstream
// disconnects. Per-event problems (stale, malformed) are counted and never
// stop the loop; only total stream loss ends the session, reported as
// ErrUpstreamDisconnect.
func (ing *Ingestor) Run(ctx context.Context, src Source) error {
	ing.setStatus(StatusConnected)
	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrMalformedEvent) {
				ing.malformed.Add(1)
				metrics.IngestEvents.WithLabelValues(metrics.ResultMalformed).Inc()
				ing.log.WithFields(logging.Fields{"err": err}).Debug("dropping malformed event")
				continue
			}
			if ctx.Err() != nil {
				ing.setStatus(StatusDisconnected)
				return ctx.Err()
			}
			ing.setStatus(StatusDisconnected)
			ing.log.WithFields(logging.Fields{"err": err}).Warn("upstream stream ended")
			return fmt.Errorf("%w: %v", ErrUpstreamDisconnect, err)
		}
		switch ev := ev.(type) {
		case AccountUpdate:
			ing.handleUpdate(ev.UpdateEvent)
		case RootAdvance:
			ing.observeRoot(ev.Slot)
		case ForkSwitch:
			ing.handleFork(ev.Slot)
		case Gap:
			ing.handleGap(ev)
		default:
			ing.malformed.Add(1)
			metrics.IngestEvents.WithLabelValues(metrics.ResultMalformed).Inc()
		}
		ing.setStatus(StatusStreaming)
	}
}

func (ing *Ingestor) handleUpdate(ev basics.UpdateEvent) {
	if ev.Pubkey.IsZero() {
		ing.malformed.Add(1)
		metrics.IngestEvents.WithLabelValues(metrics.ResultMalformed).Inc()
		ing.log.Debug("dropping update with zero pubkey")
		return
	}
	if ev.Rooted {
		ing.observeRoot(ev.Slot)
	}

	rec := ev.Record()
	prev, outcome := ing.store.Upsert(ev.Pubkey, rec)
	if outcome == store.UpsertStale {
		ing.stale.Add(1)
		metrics.IngestEvents.WithLabelValues(metrics.ResultStale).Inc()
		return
	}
	ing.applied.Add(1)
	metrics.IngestEvents.WithLabelValues(metrics.ResultApplied).Inc()
	if ing.bus != nil {
		ing.bus.Publish(pubsub.Notification{Pubkey: ev.Pubkey, Old: prev, New: &rec})
	}
}

// observeRoot folds a finality observation into the session. A regression
// of the rooted slot is an internal contradiction; depending on Options it
// is either treated as a fork switch or logged and ignored.
func (ing *Ingestor) observeRoot(slot uint64) {
	cur := ing.highestRooted.Load()
	if slot < cur {
		if ing.opts.InferForkFromSlotRegression {
			ing.log.WithFields(logging.Fields{"slot": slot, "rooted": cur}).Warn("rooted slot regressed, inferring fork switch")
			ing.handleFork(slot)
		} else {
			ing.log.WithFields(logging.Fields{"slot": slot, "rooted": cur}).Warn("ignoring rooted slot regression")
		}
		return
	}
	if slot == cur {
		return
	}
	ing.highestRooted.Store(slot)
	if promoted := ing.store.MarkRooted(slot); promoted > 0 {
		ing.log.WithFields(logging.Fields{"slot": slot, "promoted": promoted}).Debug("promoted speculative accounts")
	}
}

func (ing *Ingestor) handleFork(slot uint64) {
	ing.setStatus(StatusForkDetected)
	reverted := ing.store.Rollback(slot)
	ing.rollbacks.Add(1)
	metrics.Rollbacks.Inc()
	if cur := ing.highestRooted.Load(); slot < cur {
		ing.highestRooted.Store(slot)
	}
	ing.log.WithFields(logging.Fields{"slot": slot, "reverted": reverted}).Warn("applied fork rollback")
}

func (ing *Ingestor) handleGap(gap Gap) {
	ing.setStatus(StatusGap)
	ing.store.NoteGap(gap.ToSlot)
	ing.log.WithFields(logging.Fields{"from": gap.FromSlot, "to": gap.ToSlot}).Warn("upstream slot gap, state may be stale")
}
