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
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fractalhq/fractal/data/basics"
)

const redisKeyPrefix = "fractal:acct:"

// RedisAdapter shares account state through a redis instance reachable by
// every cooperating replica.
type RedisAdapter struct {
	client *redis.Client
}

// NewRedisAdapter connects to the redis instance named by url
// (redis://host:port/db form).
func NewRedisAdapter(url string) (*RedisAdapter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("distcache: parse redis url: %w", err)
	}
	return &RedisAdapter{client: redis.NewClient(opts)}, nil
}

// Publish implements Adapter. Values never expire; a newer publish for the
// same key simply replaces the older one.
func (a *RedisAdapter) Publish(ctx context.Context, pk basics.Pubkey, record *basics.AccountRecord) error {
	raw, err := encodeRecord(record)
	if err != nil {
		return err
	}
	return a.client.Set(ctx, redisKeyPrefix+pk.String(), raw, 0).Err()
}

// Fetch implements Adapter.
func (a *RedisAdapter) Fetch(ctx context.Context, pk basics.Pubkey) (*basics.AccountRecord, error) {
	raw, err := a.client.Get(ctx, redisKeyPrefix+pk.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeRecord(raw)
}

// Close implements Adapter.
func (a *RedisAdapter) Close() error {
	return a.client.Close()
}
