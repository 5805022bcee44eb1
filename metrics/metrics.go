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

// Package metrics declares the process-wide counters and gauges maintained
// by the ingestion pipeline. Export/scraping is left to the embedding
// process; counters register against the default prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for IngestEvents.
const (
	ResultApplied   = "applied"
	ResultStale     = "stale"
	ResultMalformed = "malformed"
)

var (
	// IngestEvents counts inbound account updates by outcome.
	IngestEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fractal_ingest_events_total",
		Help: "Inbound account update events by outcome",
	}, []string{"result"})

	// Rollbacks counts fork switches that triggered a store rollback.
	Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractal_rollbacks_total",
		Help: "Fork switches applied to the store",
	})

	// RolledBackAccounts counts speculative account values discarded by
	// rollbacks.
	RolledBackAccounts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractal_rolled_back_accounts_total",
		Help: "Speculative account values discarded by rollbacks",
	})

	// PromotedAccounts counts speculative account values promoted to rooted.
	PromotedAccounts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractal_promoted_accounts_total",
		Help: "Speculative account values promoted to rooted",
	})

	// DecodeFailures counts payloads that failed codec decoding.
	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractal_decode_failures_total",
		Help: "Account payloads dropped due to codec decode failure",
	})

	// GapEvents counts upstream stream discontinuities.
	GapEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractal_gap_events_total",
		Help: "Upstream slot gaps observed by the ingestor",
	})

	// SubscriberOverflows counts subscribers disconnected for not draining
	// their queue.
	SubscriberOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractal_subscriber_overflows_total",
		Help: "Subscribers disconnected after overflowing their queue",
	})

	// RemotePublishDrops counts distributed-cache publishes dropped because
	// the publish queue was full.
	RemotePublishDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractal_remote_publish_drops_total",
		Help: "Distributed cache publishes dropped on a full queue",
	})

	// StoreAccounts tracks the number of accounts currently held.
	StoreAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fractal_store_accounts",
		Help: "Accounts currently held by the sharded store",
	})
)
