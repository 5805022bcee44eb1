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

// Package pubsub fans store mutations out to subscribers. Delivery is
// best-effort and ordered per identifier but not across identifiers; a
// subscriber that stops draining its bounded queue is disconnected so that
// ingestion never waits on a slow consumer.
package pubsub

import (
	"github.com/algorand/go-deadlock"
	"github.com/google/uuid"

	"github.com/fractalhq/fractal/data/basics"
	"github.com/fractalhq/fractal/logging"
	"github.com/fractalhq/fractal/metrics"
)

// Filter selects which account changes a subscription receives. A nil field
// matches everything; set fields must all match.
type Filter struct {
	// Account restricts delivery to changes of one account.
	Account *basics.Pubkey
	// Owner restricts delivery to accounts owned by one program.
	Owner *basics.Pubkey
}

func (f Filter) matches(n Notification) bool {
	if f.Account != nil && *f.Account != n.Pubkey {
		return false
	}
	if f.Owner != nil {
		rec := n.New
		if rec == nil {
			rec = n.Old
		}
		if rec == nil || rec.Owner != *f.Owner {
			return false
		}
	}
	return true
}

// Notification is a single observed change: Old is nil when the account was
// created, New nil when it was removed (e.g. by a fork rollback).
type Notification struct {
	Pubkey basics.Pubkey
	Old    *basics.AccountRecord
	New    *basics.AccountRecord
}

// Subscription is one registered consumer. Read Updates() until it is
// closed; a closed channel means the subscription was cancelled or the
// subscriber was disconnected for overflowing its queue.
type Subscription struct {
	id     uuid.UUID
	filter Filter
	queue  chan Notification
	bus    *Bus
}

// ID returns the subscription handle.
func (sub *Subscription) ID() uuid.UUID {
	return sub.id
}

// Updates returns the subscriber's notification stream.
func (sub *Subscription) Updates() <-chan Notification {
	return sub.queue
}

// Cancel unsubscribes and releases the subscription's resources. Safe to
// call more than once and concurrently with delivery.
func (sub *Subscription) Cancel() {
	sub.bus.unsubscribe(sub.id)
}

// Bus distributes change notifications to matching subscriptions.
type Bus struct {
	mu         deadlock.RWMutex
	subs       map[uuid.UUID]*Subscription
	queueDepth int
	log        logging.Logger
}

// NewBus creates a bus whose subscribers each get a queue of queueDepth
// notifications.
func NewBus(queueDepth int, log logging.Logger) *Bus {
	if log == nil {
		log = logging.Base()
	}
	return &Bus{
		subs:       make(map[uuid.UUID]*Subscription),
		queueDepth: queueDepth,
		log:        log,
	}
}

// Subscribe registers a new subscription for changes matching filter.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		id:     uuid.New(),
		filter: filter,
		queue:  make(chan Notification, b.queueDepth),
		bus:    b,
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe cancels the subscription with the given handle.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.unsubscribe(id)
}

func (b *Bus) unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		// Publish sends only under the read lock, so closing here cannot
		// race a send.
		close(sub.queue)
	}
	b.mu.Unlock()
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers a change to every matching subscription. It never
// blocks: a subscription whose queue is full is disconnected and the
// remaining subscribers are unaffected. Callers publishing from a single
// goroutine get per-identifier ordering for free.
func (b *Bus) Publish(n Notification) {
	var overflowed []uuid.UUID
	b.mu.RLock()
	for id, sub := range b.subs {
		if !sub.filter.matches(n) {
			continue
		}
		select {
		case sub.queue <- n:
		default:
			overflowed = append(overflowed, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range overflowed {
		metrics.SubscriberOverflows.Inc()
		b.log.WithFields(logging.Fields{"subscription": id.String()}).Warn("disconnecting subscriber with full queue")
		b.unsubscribe(id)
	}
}
