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
	"context"

	"github.com/fractalhq/fractal/data/basics"
	"github.com/fractalhq/fractal/logging"
	"github.com/fractalhq/fractal/metrics"
)

// publishJob carries a rooted value to the write-behind publisher.
type publishJob struct {
	pk basics.Pubkey
	sa *storedAccount
}

// enqueuePublish hands a rooted value to the publisher without ever blocking
// the ingestion path. Jobs are dropped (and counted) when the queue is full;
// the shared cache is best-effort.
func (s *ShardedStore) enqueuePublish(pk basics.Pubkey, sa *storedAccount) {
	if s.remote == nil {
		return
	}
	s.publishMu.RLock()
	defer s.publishMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.publishQueue <- publishJob{pk: pk, sa: sa}:
	default:
		metrics.RemotePublishDrops.Inc()
	}
}

func (s *ShardedStore) publishLoop() {
	defer s.publishWG.Done()
	for job := range s.publishQueue {
		rec, err := s.decodeStored(job.pk, job.sa, true)
		if err != nil {
			s.log.WithFields(logging.Fields{"pubkey": job.pk.String(), "err": err}).Warn("not publishing undecodable account")
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), remotePublishTimeout)
		err = s.remote.Publish(ctx, job.pk, rec)
		cancel()
		if err != nil {
			s.log.WithFields(logging.Fields{"pubkey": job.pk.String(), "err": err}).Debug("remote publish failed")
		}
	}
}
