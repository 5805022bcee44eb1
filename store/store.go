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

// Package store implements the sharded in-memory account store at the heart
// of the fractal pipeline. Identifiers hash onto a fixed set of shards, each
// independently lockable, so ingestion writes and query reads on different
// shards never contend. Per account the store keeps a two-slot structure:
// the last rooted value and, while a slot is still speculative, the value a
// fork switch would discard.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/algorand/go-deadlock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spaolacci/murmur3"

	"github.com/fractalhq/fractal/codec"
	"github.com/fractalhq/fractal/data/basics"
	"github.com/fractalhq/fractal/distcache"
	"github.com/fractalhq/fractal/logging"
	"github.com/fractalhq/fractal/metrics"
)

// UpsertOutcome reports whether an upsert took effect.
type UpsertOutcome int

const (
	// UpsertApplied means the record replaced the stored value.
	UpsertApplied UpsertOutcome = iota
	// UpsertStale means the record's (slot, write-version) did not exceed
	// the stored one and was dropped.
	UpsertStale
)

// Params configures a ShardedStore.
type Params struct {
	// ShardCount fixes the number of shards; must be a power of two.
	ShardCount int

	// Codec compresses account payloads. Defaults to codec.RLE.
	Codec codec.Codec

	// TokenProgram enables the token fast-path index for accounts owned by
	// this program. The zero key disables the index.
	TokenProgram basics.Pubkey

	// DecodedCacheSize bounds the decoded-payload LRU. Zero disables it.
	DecodedCacheSize int

	// Remote, when set, mirrors rooted values into a shared cache and is
	// consulted on local misses.
	Remote distcache.Adapter

	// RemoteFetchTimeout bounds a Remote.Fetch on the read path.
	RemoteFetchTimeout time.Duration

	// RemotePublishQueueDepth bounds the write-behind publish queue.
	RemotePublishQueueDepth int

	Log logging.Logger
}

const (
	defaultRemoteFetchTimeout      = 50 * time.Millisecond
	defaultRemotePublishQueueDepth = 4096
	remotePublishTimeout           = time.Second
)

// ShardedStore is the concurrent map from account identifier to latest
// account record. All exported methods are safe for concurrent use; writes
// take one shard's write lock, reads one shard's read lock, and no method
// holds more than one shard lock at a time.
type ShardedStore struct {
	shards    []shard
	shardMask uint32

	codec        codec.Codec
	tokenProgram basics.Pubkey
	tokens       *tokenIndex

	decoded *lru.Cache[decodedKey, []byte]

	remote        distcache.Adapter
	remoteTimeout time.Duration
	publishMu     deadlock.RWMutex
	publishQueue  chan publishJob
	publishWG     sync.WaitGroup
	closed        bool

	staleWatermark atomic.Uint64
	count          atomic.Int64

	log logging.Logger
}

type decodedKey struct {
	pk           basics.Pubkey
	slot         uint64
	writeVersion uint64
}

// New creates an empty store. The shard count is fixed for the lifetime of
// the store; identifiers never move between shards.
func New(params Params) (*ShardedStore, error) {
	if params.ShardCount <= 0 || params.ShardCount&(params.ShardCount-1) != 0 {
		return nil, fmt.Errorf("store: shard count %d is not a positive power of two", params.ShardCount)
	}
	s := &ShardedStore{
		shards:        make([]shard, params.ShardCount),
		shardMask:     uint32(params.ShardCount - 1),
		codec:         params.Codec,
		tokenProgram:  params.TokenProgram,
		remote:        params.Remote,
		remoteTimeout: params.RemoteFetchTimeout,
		log:           params.Log,
	}
	for i := range s.shards {
		s.shards[i].init()
	}
	if s.codec == nil {
		s.codec = codec.RLE{}
	}
	if s.log == nil {
		s.log = logging.Base()
	}
	if !s.tokenProgram.IsZero() {
		s.tokens = newTokenIndex()
	}
	if params.DecodedCacheSize > 0 {
		cache, err := lru.New[decodedKey, []byte](params.DecodedCacheSize)
		if err != nil {
			return nil, err
		}
		s.decoded = cache
	}
	if s.remote != nil {
		if s.remoteTimeout <= 0 {
			s.remoteTimeout = defaultRemoteFetchTimeout
		}
		depth := params.RemotePublishQueueDepth
		if depth <= 0 {
			depth = defaultRemotePublishQueueDepth
		}
		s.publishQueue = make(chan publishJob, depth)
		s.publishWG.Add(1)
		go s.publishLoop()
	}
	return s, nil
}

// Close drains the write-behind publisher. The store remains readable; it
// does not close the remote adapter, which the caller owns.
func (s *ShardedStore) Close() {
	if s.remote == nil {
		return
	}
	s.publishMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.publishQueue)
	}
	s.publishMu.Unlock()
	s.publishWG.Wait()
}

func (s *ShardedStore) shardFor(pk basics.Pubkey) *shard {
	return &s.shards[murmur3.Sum32(pk[:])&s.shardMask]
}

// TokenProgram returns the program whose accounts feed the token index, or
// the zero key if the fast path is disabled.
func (s *ShardedStore) TokenProgram() basics.Pubkey {
	return s.tokenProgram
}

// Len returns the number of accounts currently held.
func (s *ShardedStore) Len() int {
	return int(s.count.Load())
}

// Upsert applies rec under the strict (slot, write-version) ordering rule:
// the record is accepted only if its version exceeds the stored one, with
// absence ranking lowest. On accept it returns the previously visible value
// (nil if the account is new) for subscription fan-out.
func (s *ShardedStore) Upsert(pk basics.Pubkey, rec basics.AccountRecord) (prev *basics.AccountRecord, outcome UpsertOutcome) {
	sa := &storedAccount{
		owner:        rec.Owner,
		lamports:     rec.Lamports,
		data:         s.codec.Encode(rec.Data),
		executable:   rec.Executable,
		rentEpoch:    rec.RentEpoch,
		slot:         rec.Slot,
		writeVersion: rec.WriteVersion,
	}
	if s.tokens != nil && rec.Owner == s.tokenProgram {
		sa.tokenHolder, sa.isToken = basics.TokenHolder(rec.Data)
	}

	sh := s.shardFor(pk)
	sh.mu.Lock()
	e, exists := sh.accounts[pk]
	var cur *storedAccount
	curRooted := false
	if exists {
		cur = e.latest()
		curRooted = cur == e.rooted
	}
	if cur != nil && !rec.Version().After(cur.version()) {
		sh.mu.Unlock()
		return nil, UpsertStale
	}
	if !exists {
		e = &entry{}
		sh.accounts[pk] = e
		metrics.StoreAccounts.Set(float64(s.count.Add(1)))
	}
	if s.tokens != nil {
		s.tokens.transition(pk, cur, sa)
	}
	if rec.Rooted {
		// The new version strictly exceeds whatever is stored, so any
		// speculative value is superseded.
		if e.speculative != nil {
			sh.untrackSpeculative(e.speculative.slot, pk)
			e.speculative = nil
		}
		e.rooted = sa
	} else {
		if e.speculative != nil && e.speculative.slot != rec.Slot {
			sh.untrackSpeculative(e.speculative.slot, pk)
		}
		sh.trackSpeculative(rec.Slot, pk)
		e.speculative = sa
	}
	sh.mu.Unlock()

	if s.decoded != nil {
		s.decoded.Add(decodedKey{pk: pk, slot: rec.Slot, writeVersion: rec.WriteVersion}, rec.Data)
	}
	if rec.Rooted {
		s.enqueuePublish(pk, sa)
	}
	if cur != nil {
		prevRec, err := s.decodeStored(pk, cur, curRooted)
		if err != nil {
			s.log.WithFields(logging.Fields{"pubkey": pk.String(), "err": err}).Warn("dropping undecodable previous value")
		} else {
			prev = prevRec
		}
	}
	return prev, UpsertApplied
}

// Get returns the current value of pk at the requested commitment level.
// It blocks only for the duration of the shard's critical section, plus a
// bounded remote fetch when a distributed cache is configured and the
// account is absent locally.
func (s *ShardedStore) Get(pk basics.Pubkey, commitment basics.Commitment) (*basics.AccountRecord, bool) {
	sh := s.shardFor(pk)
	sh.mu.RLock()
	var sa *storedAccount
	rooted := false
	if e, ok := sh.accounts[pk]; ok {
		if commitment == basics.CommitmentRooted {
			sa, rooted = e.rooted, true
		} else {
			sa = e.latest()
			rooted = sa == e.rooted
		}
	}
	sh.mu.RUnlock()

	if sa == nil {
		return s.fetchRemote(pk)
	}
	rec, err := s.decodeStored(pk, sa, rooted)
	if err != nil {
		s.log.WithFields(logging.Fields{"pubkey": pk.String(), "err": err}).Warn("dropping undecodable account")
		return nil, false
	}
	return rec, true
}

// Scan visits every account at the given commitment level until visit
// returns false. Each account is visited at most once per call; a mutation
// racing the scan may surface either the pre- or post-update value, but the
// scan never skips or duplicates identifiers. Shard locks are released
// before payloads are decoded and visit is invoked.
func (s *ShardedStore) Scan(commitment basics.Commitment, visit func(pk basics.Pubkey, rec *basics.AccountRecord) bool) {
	s.scan(commitment, nil, visit)
}

// ScanOwner is Scan restricted to accounts with the given owning program.
// The owner filter is applied under the shard read lock, before any payload
// is decoded.
func (s *ShardedStore) ScanOwner(owner basics.Pubkey, commitment basics.Commitment, visit func(pk basics.Pubkey, rec *basics.AccountRecord) bool) {
	s.scan(commitment, &owner, visit)
}

type scanItem struct {
	pk     basics.Pubkey
	sa     *storedAccount
	rooted bool
}

func (s *ShardedStore) scan(commitment basics.Commitment, owner *basics.Pubkey, visit func(pk basics.Pubkey, rec *basics.AccountRecord) bool) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		items := make([]scanItem, 0, len(sh.accounts))
		for pk, e := range sh.accounts {
			var sa *storedAccount
			rooted := false
			if commitment == basics.CommitmentRooted {
				sa, rooted = e.rooted, true
			} else {
				sa = e.latest()
				rooted = sa == e.rooted
			}
			if sa == nil || (owner != nil && sa.owner != *owner) {
				continue
			}
			items = append(items, scanItem{pk: pk, sa: sa, rooted: rooted})
		}
		sh.mu.RUnlock()

		for _, item := range items {
			rec, err := s.decodeStored(item.pk, item.sa, item.rooted)
			if err != nil {
				s.log.WithFields(logging.Fields{"pubkey": item.pk.String(), "err": err}).Warn("skipping undecodable account in scan")
				continue
			}
			if !visit(item.pk, rec) {
				return
			}
		}
	}
}

// TokenAccountsByHolder returns the candidate token accounts currently
// indexed for a holder. Callers must re-verify holder and owner on the
// fetched records; the index tracks the processed view.
func (s *ShardedStore) TokenAccountsByHolder(holder basics.Pubkey) []basics.Pubkey {
	if s.tokens == nil {
		return nil
	}
	return s.tokens.accounts(holder)
}

// Rollback discards every speculative value written at a slot above
// slotThreshold, restoring the last rooted value where one exists and
// removing accounts created only by discarded updates. Rooted values are
// never touched. It returns the number of accounts reverted.
func (s *ShardedStore) Rollback(slotThreshold uint64) (reverted int) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for slot, set := range sh.specBySlot {
			if slot <= slotThreshold {
				continue
			}
			for pk := range set {
				e, ok := sh.accounts[pk]
				if !ok || e.speculative == nil {
					continue
				}
				if s.tokens != nil {
					s.tokens.transition(pk, e.speculative, e.rooted)
				}
				e.speculative = nil
				if e.rooted == nil {
					delete(sh.accounts, pk)
					metrics.StoreAccounts.Set(float64(s.count.Add(-1)))
				}
				reverted++
			}
			delete(sh.specBySlot, slot)
		}
		sh.mu.Unlock()
	}
	metrics.RolledBackAccounts.Add(float64(reverted))
	return reverted
}

// MarkRooted promotes every speculative value written at or below slot to
// rooted, resolving the two-slot structure at finality. Promoted values are
// published to the distributed cache when one is configured. It returns the
// number of accounts promoted.
func (s *ShardedStore) MarkRooted(slot uint64) (promoted int) {
	var publish []publishJob
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for sl, set := range sh.specBySlot {
			if sl > slot {
				continue
			}
			for pk := range set {
				e, ok := sh.accounts[pk]
				if !ok || e.speculative == nil {
					continue
				}
				e.rooted = e.speculative
				e.speculative = nil
				promoted++
				if s.remote != nil {
					publish = append(publish, publishJob{pk: pk, sa: e.rooted})
				}
			}
			delete(sh.specBySlot, sl)
		}
		sh.mu.Unlock()
	}
	for _, job := range publish {
		s.enqueuePublish(job.pk, job.sa)
	}
	metrics.PromotedAccounts.Add(float64(promoted))
	return promoted
}

// NoteGap records an upstream stream discontinuity covering slots up to
// toSlot. Values written at or below the watermark may be stale; nothing is
// evicted.
func (s *ShardedStore) NoteGap(toSlot uint64) {
	for {
		cur := s.staleWatermark.Load()
		if toSlot <= cur || s.staleWatermark.CompareAndSwap(cur, toSlot) {
			break
		}
	}
	metrics.GapEvents.Inc()
}

// StaleWatermark returns the highest slot affected by an upstream gap, or
// zero when no gap has been observed.
func (s *ShardedStore) StaleWatermark() uint64 {
	return s.staleWatermark.Load()
}

// decodeStored materializes an AccountRecord from the shard-resident form,
// consulting the decoded-payload cache first. The returned Data is owned by
// the caller.
func (s *ShardedStore) decodeStored(pk basics.Pubkey, sa *storedAccount, rooted bool) (*basics.AccountRecord, error) {
	key := decodedKey{pk: pk, slot: sa.slot, writeVersion: sa.writeVersion}
	var data []byte
	if s.decoded != nil {
		if cached, ok := s.decoded.Get(key); ok {
			data = make([]byte, len(cached))
			copy(data, cached)
		}
	}
	if data == nil {
		decoded, err := s.codec.Decode(sa.data)
		if err != nil {
			metrics.DecodeFailures.Inc()
			return nil, err
		}
		data = decoded
		if s.decoded != nil {
			s.decoded.Add(key, decoded)
			data = make([]byte, len(decoded))
			copy(data, decoded)
		}
	}
	return &basics.AccountRecord{
		Owner:        sa.owner,
		Lamports:     sa.lamports,
		Data:         data,
		Executable:   sa.executable,
		RentEpoch:    sa.rentEpoch,
		Slot:         sa.slot,
		WriteVersion: sa.writeVersion,
		Rooted:       rooted,
	}, nil
}

// fetchRemote consults the distributed cache on a local miss.
func (s *ShardedStore) fetchRemote(pk basics.Pubkey) (*basics.AccountRecord, bool) {
	if s.remote == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.remoteTimeout)
	defer cancel()
	rec, err := s.remote.Fetch(ctx, pk)
	if err != nil {
		if !errors.Is(err, distcache.ErrNotFound) {
			s.log.WithFields(logging.Fields{"pubkey": pk.String(), "err": err}).Debug("remote fetch failed")
		}
		return nil, false
	}
	return rec, true
}
