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

// Package query serves the accounts-domain read API on top of the sharded
// store. The engine is stateless and never mutates the store; any number of
// callers may query concurrently with ingestion. Results are per-record
// consistent, not a global snapshot, and are sorted by account identifier
// so that pagination is deterministic.
package query

import (
	"bytes"
	"sort"

	"github.com/fractalhq/fractal/data/basics"
	"github.com/fractalhq/fractal/logging"
	"github.com/fractalhq/fractal/store"
)

// KeyedAccount pairs an account record with its identifier.
type KeyedAccount struct {
	Pubkey  basics.Pubkey
	Account *basics.AccountRecord
}

// Engine answers point, batch and scan queries against one store.
type Engine struct {
	store *store.ShardedStore
	log   logging.Logger
}

// NewEngine creates a query engine over st.
func NewEngine(st *store.ShardedStore, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Base()
	}
	return &Engine{store: st, log: log}
}

// GetAccount returns the account's current value at the requested
// commitment level, or false if unknown.
func (e *Engine) GetAccount(pk basics.Pubkey, commitment basics.Commitment) (*basics.AccountRecord, bool) {
	return e.store.Get(pk, commitment)
}

// GetMultipleAccounts looks up a batch of identifiers. The result has one
// slot per requested identifier, nil where the account is unknown.
func (e *Engine) GetMultipleAccounts(pks []basics.Pubkey, commitment basics.Commitment) []*basics.AccountRecord {
	out := make([]*basics.AccountRecord, len(pks))
	for i, pk := range pks {
		if rec, ok := e.store.Get(pk, commitment); ok {
			out[i] = rec
		}
	}
	return out
}

// ProgramAccountsQuery tunes a program-scoped scan.
type ProgramAccountsQuery struct {
	// Filters must all match a record's payload.
	Filters []RecordFilter
	// Slice, when set, projects returned payloads onto a byte range.
	Slice      *DataSlice
	Commitment basics.Commitment
	// Offset/Limit paginate the identifier-sorted result. Zero Limit means
	// no limit.
	Offset int
	Limit  int
}

// GetProgramAccounts returns every account owned by the given program that
// passes the query's filters. A malformed filter is rejected up front; an
// empty result is not an error.
func (e *Engine) GetProgramAccounts(owner basics.Pubkey, q ProgramAccountsQuery) ([]KeyedAccount, error) {
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	if q.Slice != nil {
		if err := q.Slice.Validate(); err != nil {
			return nil, err
		}
	}

	var accounts []KeyedAccount
	e.store.ScanOwner(owner, q.Commitment, func(pk basics.Pubkey, rec *basics.AccountRecord) bool {
		for _, f := range q.Filters {
			if !f.Matches(rec.Data) {
				return true
			}
		}
		accounts = append(accounts, KeyedAccount{Pubkey: pk, Account: rec})
		return true
	})

	sortByPubkey(accounts)
	accounts = paginate(accounts, q.Offset, q.Limit)
	if q.Slice != nil {
		for _, ka := range accounts {
			ka.Account.Data = q.Slice.apply(ka.Account.Data)
		}
	}
	return accounts, nil
}

// TokenAccountsQuery tunes a token fast-path lookup.
type TokenAccountsQuery struct {
	// Mint, when set, restricts results to token accounts of one mint.
	Mint       *basics.Pubkey
	Commitment basics.Commitment
	Offset     int
	Limit      int
}

// GetTokenAccountsByOwner returns the token accounts held by a wallet,
// served from the incrementally-maintained holder index rather than a full
// payload scan. Candidates are re-verified against the fetched records, so
// the result equals what a general program scan restricted to this holder
// would produce. Returns nil when the token fast path is not configured.
func (e *Engine) GetTokenAccountsByOwner(holder basics.Pubkey, q TokenAccountsQuery) []KeyedAccount {
	tokenProgram := e.store.TokenProgram()
	if tokenProgram.IsZero() {
		return nil
	}

	var accounts []KeyedAccount
	for _, pk := range e.store.TokenAccountsByHolder(holder) {
		rec, ok := e.store.Get(pk, q.Commitment)
		if !ok || rec.Owner != tokenProgram {
			continue
		}
		h, ok := basics.TokenHolder(rec.Data)
		if !ok || h != holder {
			continue
		}
		if q.Mint != nil {
			mint, ok := basics.TokenMint(rec.Data)
			if !ok || mint != *q.Mint {
				continue
			}
		}
		accounts = append(accounts, KeyedAccount{Pubkey: pk, Account: rec})
	}

	sortByPubkey(accounts)
	return paginate(accounts, q.Offset, q.Limit)
}

// defaultLargestLimit caps GetLargestTokenAccounts when no limit is given.
const defaultLargestLimit = 10

// GetLargestTokenAccounts returns the top token accounts of a mint by
// amount, largest first.
func (e *Engine) GetLargestTokenAccounts(mint basics.Pubkey, limit int, commitment basics.Commitment) []KeyedAccount {
	tokenProgram := e.store.TokenProgram()
	if tokenProgram.IsZero() {
		return nil
	}
	if limit <= 0 {
		limit = defaultLargestLimit
	}

	var accounts []KeyedAccount
	e.store.ScanOwner(tokenProgram, commitment, func(pk basics.Pubkey, rec *basics.AccountRecord) bool {
		m, ok := basics.TokenMint(rec.Data)
		if ok && m == mint {
			accounts = append(accounts, KeyedAccount{Pubkey: pk, Account: rec})
		}
		return true
	})

	sort.Slice(accounts, func(i, j int) bool {
		ai, _ := basics.TokenAmount(accounts[i].Account.Data)
		aj, _ := basics.TokenAmount(accounts[j].Account.Data)
		if ai != aj {
			return ai > aj
		}
		return bytes.Compare(accounts[i].Pubkey[:], accounts[j].Pubkey[:]) < 0
	})
	if len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts
}

func sortByPubkey(accounts []KeyedAccount) {
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Pubkey[:], accounts[j].Pubkey[:]) < 0
	})
}

func paginate(accounts []KeyedAccount, offset, limit int) []KeyedAccount {
	if offset > 0 {
		if offset >= len(accounts) {
			return nil
		}
		accounts = accounts[offset:]
	}
	if limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts
}
