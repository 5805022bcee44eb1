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

package store

import (
	"github.com/algorand/go-deadlock"

	"github.com/fractalhq/fractal/data/basics"
)

// tokenIndex maps a token holder (the owner subfield of a token account
// payload) to the set of token accounts it holds. Writers update it inside
// the owning shard's critical section so the index never disagrees with the
// primary view for longer than a shard write lock is held. Readers only take
// the index lock to snapshot candidate keys, never a shard lock underneath
// it, which keeps the lock order acyclic.
type tokenIndex struct {
	mu      deadlock.RWMutex
	holders map[basics.Pubkey]map[basics.Pubkey]struct{}
}

func newTokenIndex() *tokenIndex {
	return &tokenIndex{holders: make(map[basics.Pubkey]map[basics.Pubkey]struct{})}
}

func (ti *tokenIndex) put(holder, pk basics.Pubkey) {
	ti.mu.Lock()
	set, ok := ti.holders[holder]
	if !ok {
		set = make(map[basics.Pubkey]struct{})
		ti.holders[holder] = set
	}
	set[pk] = struct{}{}
	ti.mu.Unlock()
}

func (ti *tokenIndex) remove(holder, pk basics.Pubkey) {
	ti.mu.Lock()
	if set, ok := ti.holders[holder]; ok {
		delete(set, pk)
		if len(set) == 0 {
			delete(ti.holders, holder)
		}
	}
	ti.mu.Unlock()
}

// accounts snapshots the candidate account keys for a holder.
func (ti *tokenIndex) accounts(holder basics.Pubkey) []basics.Pubkey {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	set, ok := ti.holders[holder]
	if !ok {
		return nil
	}
	out := make([]basics.Pubkey, 0, len(set))
	for pk := range set {
		out = append(out, pk)
	}
	return out
}

// transition reconciles the index with a change of pk's latest value from
// prev to next (either may be nil). Callers hold pk's shard lock.
func (ti *tokenIndex) transition(pk basics.Pubkey, prev, next *storedAccount) {
	prevToken := prev != nil && prev.isToken
	nextToken := next != nil && next.isToken
	if prevToken && (!nextToken || prev.tokenHolder != next.tokenHolder) {
		ti.remove(prev.tokenHolder, pk)
	}
	if nextToken && (!prevToken || prev.tokenHolder != next.tokenHolder) {
		ti.put(next.tokenHolder, pk)
	}
}
