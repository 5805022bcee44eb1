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

// storedAccount is the shard-resident form of an account value. The payload
// is codec-encoded. Once inserted a storedAccount is never mutated; updates
// swap pointers, so readers may use one after releasing the shard lock.
type storedAccount struct {
	owner        basics.Pubkey
	lamports     uint64
	data         []byte
	executable   bool
	rentEpoch    uint64
	slot         uint64
	writeVersion uint64

	// Token fast-path fields, precomputed at upsert time so that index
	// maintenance and rollback never have to decode the payload.
	isToken     bool
	tokenHolder basics.Pubkey
}

func (sa *storedAccount) version() basics.Version {
	return basics.Version{Slot: sa.slot, WriteVersion: sa.writeVersion}
}

// entry is the two-slot structure holding, per account, the last rooted
// value and the current speculative value. When both are present the
// speculative version is strictly newer than the rooted one.
type entry struct {
	rooted      *storedAccount
	speculative *storedAccount
}

// latest returns the processed-commitment view of the entry.
func (e *entry) latest() *storedAccount {
	if e.speculative != nil {
		return e.speculative
	}
	return e.rooted
}

// shard owns a fixed partition of the identifier space. specBySlot tracks,
// per slot, the accounts holding a speculative value written at that slot;
// it is what makes rollback and rooted promotion proportional to the number
// of touched accounts rather than to the store size.
type shard struct {
	mu         deadlock.RWMutex
	accounts   map[basics.Pubkey]*entry
	specBySlot map[uint64]map[basics.Pubkey]struct{}
}

func (sh *shard) init() {
	sh.accounts = make(map[basics.Pubkey]*entry)
	sh.specBySlot = make(map[uint64]map[basics.Pubkey]struct{})
}

// trackSpeculative records pk as holding a speculative value at slot.
// Callers hold the shard lock.
func (sh *shard) trackSpeculative(slot uint64, pk basics.Pubkey) {
	set, ok := sh.specBySlot[slot]
	if !ok {
		set = make(map[basics.Pubkey]struct{})
		sh.specBySlot[slot] = set
	}
	set[pk] = struct{}{}
}

// untrackSpeculative drops pk's membership for slot. Callers hold the shard
// lock.
func (sh *shard) untrackSpeculative(slot uint64, pk basics.Pubkey) {
	set, ok := sh.specBySlot[slot]
	if !ok {
		return
	}
	delete(set, pk)
	if len(set) == 0 {
		delete(sh.specBySlot, slot)
	}
}
