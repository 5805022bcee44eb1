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

package distcache

import (
	"context"

	"github.com/algorand/go-deadlock"

	"github.com/fractalhq/fractal/data/basics"
)

// MemoryAdapter is an in-process Adapter used in tests and single-host
// setups. It stores the same wire encoding the redis adapter would.
type MemoryAdapter struct {
	mu      deadlock.RWMutex
	entries map[basics.Pubkey][]byte
}

// NewMemoryAdapter returns an empty in-process adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{entries: make(map[basics.Pubkey][]byte)}
}

// Publish implements Adapter.
func (a *MemoryAdapter) Publish(_ context.Context, pk basics.Pubkey, record *basics.AccountRecord) error {
	raw, err := encodeRecord(record)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.entries[pk] = raw
	a.mu.Unlock()
	return nil
}

// Fetch implements Adapter.
func (a *MemoryAdapter) Fetch(_ context.Context, pk basics.Pubkey) (*basics.AccountRecord, error) {
	a.mu.RLock()
	raw, ok := a.entries[pk]
	a.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeRecord(raw)
}

// Close implements Adapter.
func (a *MemoryAdapter) Close() error {
	return nil
}

// Len returns the number of cached accounts.
func (a *MemoryAdapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}
