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

// Package distcache lets several fractal replicas share account state
// through an external cache. The cache's own replication and consistency
// protocol is opaque to the store; only rooted values are ever published.
package distcache

import (
	"context"
	"errors"

	"github.com/fractalhq/fractal/data/basics"
)

// ErrNotFound is returned by Fetch when the cache holds no value for the key.
var ErrNotFound = errors.New("distcache: not found")

// An Adapter mirrors shard contents into a shared external cache. The store
// publishes rooted values write-behind and consults Fetch on local misses.
type Adapter interface {
	// Publish stores the latest rooted value of an account.
	Publish(ctx context.Context, pk basics.Pubkey, record *basics.AccountRecord) error

	// Fetch returns the shared value of an account, or ErrNotFound.
	Fetch(ctx context.Context, pk basics.Pubkey) (*basics.AccountRecord, error)

	// Close releases the adapter's resources.
	Close() error
}
