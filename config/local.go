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

// Package config defines the per-instance configuration of a fractal replica.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fractalhq/fractal/data/basics"
)

// Local holds the per-instance configuration settings. Defaults are merged
// with a JSON config file on load; a zero file yields GetDefaultLocal().
type Local struct {
	// Version tracks the config file format.
	Version uint32

	// ShardCount is the number of store shards. Must be a power of two and
	// is fixed for the lifetime of the store.
	ShardCount int

	// CompressionScheme selects the payload codec: "rle", "snappy" or "none".
	CompressionScheme string

	// TokenProgram is the base58 identifier of the token program whose
	// accounts feed the token fast-path index. Empty disables the index.
	TokenProgram string

	// BaseLoggerDebugLevel sets the logging level (see logging.Level).
	BaseLoggerDebugLevel uint32

	// SubscriberQueueDepth bounds each subscriber's notification queue.
	// A subscriber that lets its queue fill up is disconnected.
	SubscriberQueueDepth int

	// DecodedCacheSize is the number of decoded payloads kept in the
	// store's LRU cache. Zero disables the cache.
	DecodedCacheSize int

	// InferForkFromSlotRegression makes the ingestor treat a rooted slot
	// lower than one already rooted as an implicit fork switch. When false
	// only explicit fork events trigger rollbacks.
	InferForkFromSlotRegression bool

	// DistributedCacheURL enables the shared-cache adapter when set
	// (e.g. redis://127.0.0.1:6379/0).
	DistributedCacheURL string

	// RemotePublishQueueDepth bounds the write-behind queue feeding the
	// distributed cache. Publishes are dropped (and counted) once full.
	RemotePublishQueueDepth int

	// RemoteFetchTimeoutMs bounds a distributed-cache point lookup.
	RemoteFetchTimeoutMs int
}

var defaultLocal = Local{
	Version:                     1,
	ShardCount:                  256,
	CompressionScheme:           "rle",
	TokenProgram:                "",
	BaseLoggerDebugLevel:        4, // logging.Info
	SubscriberQueueDepth:        1024,
	DecodedCacheSize:            8192,
	InferForkFromSlotRegression: true,
	DistributedCacheURL:         "",
	RemotePublishQueueDepth:     4096,
	RemoteFetchTimeoutMs:        50,
}

// GetDefaultLocal returns a copy of the default settings.
func GetDefaultLocal() Local {
	return defaultLocal
}

// LoadConfigFromFile reads a JSON config file, merging it over the defaults.
// A missing file returns the defaults without error.
func LoadConfigFromFile(configFile string) (c Local, err error) {
	c = defaultLocal
	f, err := os.Open(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}
	defer f.Close()

	if err = loadConfig(f, &c); err != nil {
		return c, fmt.Errorf("loading %s: %w", configFile, err)
	}
	return c, c.Validate()
}

func loadConfig(reader io.Reader, config *Local) error {
	dec := json.NewDecoder(reader)
	return dec.Decode(config)
}

// SaveToFile saves the config to a specific filename.
func (cfg Local) SaveToFile(filename string) error {
	encoded, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, encoded, 0600)
}

// Validate rejects settings the store cannot honor.
func (cfg Local) Validate() error {
	if cfg.ShardCount <= 0 || cfg.ShardCount&(cfg.ShardCount-1) != 0 {
		return fmt.Errorf("ShardCount %d is not a positive power of two", cfg.ShardCount)
	}
	switch cfg.CompressionScheme {
	case "rle", "snappy", "none", "":
	default:
		return fmt.Errorf("unknown CompressionScheme %q", cfg.CompressionScheme)
	}
	if cfg.TokenProgram != "" {
		if _, err := basics.UnmarshalPubkey(cfg.TokenProgram); err != nil {
			return fmt.Errorf("TokenProgram: %w", err)
		}
	}
	if cfg.SubscriberQueueDepth <= 0 {
		return fmt.Errorf("SubscriberQueueDepth %d must be positive", cfg.SubscriberQueueDepth)
	}
	if cfg.DistributedCacheURL != "" && cfg.RemotePublishQueueDepth <= 0 {
		return fmt.Errorf("RemotePublishQueueDepth %d must be positive", cfg.RemotePublishQueueDepth)
	}
	return nil
}

// TokenProgramKey parses the configured token program identifier. The zero
// key is returned when the fast path is disabled.
func (cfg Local) TokenProgramKey() (basics.Pubkey, error) {
	if cfg.TokenProgram == "" {
		return basics.Pubkey{}, nil
	}
	return basics.UnmarshalPubkey(cfg.TokenProgram)
}

// RemoteFetchTimeout returns the configured distributed-cache lookup bound.
func (cfg Local) RemoteFetchTimeout() time.Duration {
	return time.Duration(cfg.RemoteFetchTimeoutMs) * time.Millisecond
}
