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

// fractald assembles the ingestion-to-query pipeline and feeds it from a
// captured event stream. The RPC surface that serves queries over the wire
// lives in a separate process layer; this daemon owns the store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fractalhq/fractal/codec"
	"github.com/fractalhq/fractal/config"
	"github.com/fractalhq/fractal/distcache"
	"github.com/fractalhq/fractal/ingest"
	"github.com/fractalhq/fractal/logging"
	"github.com/fractalhq/fractal/pubsub"
	"github.com/fractalhq/fractal/store"
)

var (
	configFile string
	replayFile string
)

var rootCmd = &cobra.Command{
	Use:   "fractald",
	Short: "account-state read replica",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "fractal.json", "Path to the config file")
	rootCmd.Flags().StringVarP(&replayFile, "replay", "r", "-", "Event stream to replay (JSON lines, - for stdin)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfigFromFile(configFile)
	if err != nil {
		return err
	}

	log := logging.Base()
	log.SetLevel(logging.Level(cfg.BaseLoggerDebugLevel))

	payloadCodec, err := codec.ForScheme(cfg.CompressionScheme)
	if err != nil {
		return err
	}
	tokenProgram, err := cfg.TokenProgramKey()
	if err != nil {
		return err
	}

	var remote distcache.Adapter
	if cfg.DistributedCacheURL != "" {
		redisAdapter, err := distcache.NewRedisAdapter(cfg.DistributedCacheURL)
		if err != nil {
			return err
		}
		remote = redisAdapter
		defer redisAdapter.Close()
		log.Infof("distributed cache enabled: %s", cfg.DistributedCacheURL)
	}

	st, err := store.New(store.Params{
		ShardCount:              cfg.ShardCount,
		Codec:                   payloadCodec,
		TokenProgram:            tokenProgram,
		DecodedCacheSize:        cfg.DecodedCacheSize,
		Remote:                  remote,
		RemoteFetchTimeout:      cfg.RemoteFetchTimeout(),
		RemotePublishQueueDepth: cfg.RemotePublishQueueDepth,
		Log:                     log,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	bus := pubsub.NewBus(cfg.SubscriberQueueDepth, log)

	var in io.Reader = os.Stdin
	if replayFile != "-" {
		f, err := os.Open(replayFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	src := ingest.NewLineSource(in)
	ing := ingest.New(st, bus, log, ingest.Options{
		InferForkFromSlotRegression: cfg.InferForkFromSlotRegression,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("fractald ingesting with %d shards, %s codec", cfg.ShardCount, payloadCodec.Scheme())
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ing.Run(ctx, src)
	})
	err = group.Wait()

	stats := ing.Stats()
	log.WithFields(logging.Fields{
		"applied":   stats.Applied,
		"stale":     stats.Stale,
		"malformed": stats.Malformed,
		"rollbacks": stats.Rollbacks,
		"accounts":  st.Len(),
		"rooted":    ing.HighestRooted(),
	}).Info("ingestion session ended")

	// A finished stream is a terminal-but-expected condition; the session
	// summary above is the operator's signal to reconnect.
	if err != nil && ctx.Err() == nil && !errors.Is(err, ingest.ErrUpstreamDisconnect) {
		return err
	}
	return nil
}
