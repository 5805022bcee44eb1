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

package query

import (
	"bytes"
	"encoding/binary"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fractalhq/fractal/data/basics"
	"github.com/fractalhq/fractal/logging"
	"github.com/fractalhq/fractal/store"
)

func pk(b byte) basics.Pubkey {
	var out basics.Pubkey
	out[0] = b
	return out
}

var tokenProgram = pk(0xF7)

func testEngine(t *testing.T) (*Engine, *store.ShardedStore) {
	log := logging.TestingLog(t)
	st, err := store.New(store.Params{
		ShardCount:   8,
		TokenProgram: tokenProgram,
		Log:          log,
	})
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return NewEngine(st, log), st
}

func put(st *store.ShardedStore, acct, owner basics.Pubkey, slot uint64, data []byte) {
	st.Upsert(acct, basics.AccountRecord{
		Owner:        owner,
		Lamports:     1,
		Data:         data,
		Slot:         slot,
		WriteVersion: 1,
	})
}

func putToken(st *store.ShardedStore, acct, mint, holder basics.Pubkey, amount uint64, slot uint64) {
	data := make([]byte, basics.TokenAccountMinSize)
	copy(data[basics.TokenMintOffset:], mint[:])
	copy(data[basics.TokenHolderOffset:], holder[:])
	binary.LittleEndian.PutUint64(data[basics.TokenAmountOffset:], amount)
	put(st, acct, tokenProgram, slot, data)
}

func TestGetMultipleAccounts(t *testing.T) {
	a := require.New(t)
	e, st := testEngine(t)
	owner := pk(9)

	put(st, pk(1), owner, 100, []byte{1})
	put(st, pk(3), owner, 100, []byte{3})

	got := e.GetMultipleAccounts([]basics.Pubkey{pk(1), pk(2), pk(3)}, basics.CommitmentProcessed)
	a.Len(got, 3)
	a.Equal([]byte{1}, got[0].Data)
	a.Nil(got[1])
	a.Equal([]byte{3}, got[2].Data)
}

func TestGetProgramAccountsFilters(t *testing.T) {
	a := require.New(t)
	e, st := testEngine(t)
	owner := pk(9)

	put(st, pk(1), owner, 100, []byte{0xAA, 0xBB, 0xCC})
	put(st, pk(2), owner, 100, []byte{0xAA, 0xBB})
	put(st, pk(3), owner, 100, []byte{0xDD, 0xBB, 0xCC})
	put(st, pk(4), pk(8), 100, []byte{0xAA, 0xBB, 0xCC})

	got, err := e.GetProgramAccounts(owner, ProgramAccountsQuery{})
	a.NoError(err)
	a.Len(got, 3)
	// Sorted by identifier.
	a.True(sort.SliceIsSorted(got, func(i, j int) bool {
		return bytes.Compare(got[i].Pubkey[:], got[j].Pubkey[:]) < 0
	}))

	got, err = e.GetProgramAccounts(owner, ProgramAccountsQuery{
		Filters: []RecordFilter{Memcmp{Offset: 0, Bytes: []byte{0xAA}}},
	})
	a.NoError(err)
	a.Len(got, 2)

	got, err = e.GetProgramAccounts(owner, ProgramAccountsQuery{
		Filters: []RecordFilter{
			Memcmp{Offset: 1, Bytes: []byte{0xBB}},
			DataSize{Size: 3},
		},
	})
	a.NoError(err)
	a.Len(got, 2)
	a.Equal(pk(1), got[0].Pubkey)
	a.Equal(pk(3), got[1].Pubkey)

	// No matches is an empty result, not an error.
	got, err = e.GetProgramAccounts(owner, ProgramAccountsQuery{
		Filters: []RecordFilter{DataSize{Size: 99}},
	})
	a.NoError(err)
	a.Empty(got)

	// Malformed filters are rejected before scanning.
	_, err = e.GetProgramAccounts(owner, ProgramAccountsQuery{
		Filters: []RecordFilter{Memcmp{Offset: -1, Bytes: []byte{1}}},
	})
	a.Error(err)
	_, err = e.GetProgramAccounts(owner, ProgramAccountsQuery{
		Filters: []RecordFilter{Memcmp{Offset: 0}},
	})
	a.Error(err)
	_, err = e.GetProgramAccounts(owner, ProgramAccountsQuery{
		Filters: []RecordFilter{DataSize{Size: -1}},
	})
	a.Error(err)
}

func TestGetProgramAccountsSliceAndPagination(t *testing.T) {
	a := require.New(t)
	e, st := testEngine(t)
	owner := pk(9)

	for i := byte(1); i <= 5; i++ {
		put(st, pk(i), owner, 100, []byte{i, i, i, i})
	}

	got, err := e.GetProgramAccounts(owner, ProgramAccountsQuery{
		Slice: &DataSlice{Offset: 1, Length: 2},
	})
	a.NoError(err)
	a.Len(got, 5)
	for _, ka := range got {
		a.Len(ka.Account.Data, 2)
	}

	// A slice past the payload end clamps to nothing.
	got, err = e.GetProgramAccounts(owner, ProgramAccountsQuery{
		Slice: &DataSlice{Offset: 10, Length: 2},
	})
	a.NoError(err)
	for _, ka := range got {
		a.Empty(ka.Account.Data)
	}

	_, err = e.GetProgramAccounts(owner, ProgramAccountsQuery{
		Slice: &DataSlice{Offset: -1, Length: 2},
	})
	a.Error(err)

	// Pagination walks the sorted result without overlap.
	page1, err := e.GetProgramAccounts(owner, ProgramAccountsQuery{Limit: 2})
	a.NoError(err)
	page2, err := e.GetProgramAccounts(owner, ProgramAccountsQuery{Offset: 2, Limit: 2})
	a.NoError(err)
	page3, err := e.GetProgramAccounts(owner, ProgramAccountsQuery{Offset: 4, Limit: 2})
	a.NoError(err)
	a.Len(page1, 2)
	a.Len(page2, 2)
	a.Len(page3, 1)
	a.Equal([]basics.Pubkey{pk(1), pk(2)}, []basics.Pubkey{page1[0].Pubkey, page1[1].Pubkey})
	a.Equal([]basics.Pubkey{pk(3), pk(4)}, []basics.Pubkey{page2[0].Pubkey, page2[1].Pubkey})
	a.Equal(pk(5), page3[0].Pubkey)

	// Paging past the end yields nothing.
	empty, err := e.GetProgramAccounts(owner, ProgramAccountsQuery{Offset: 99})
	a.NoError(err)
	a.Empty(empty)
}

func TestTokenFastPathMatchesGeneralScan(t *testing.T) {
	a := require.New(t)
	e, st := testEngine(t)
	mintA, mintB := pk(0xC1), pk(0xC2)
	holder := pk(0xD1)
	other := pk(0xD2)

	putToken(st, pk(1), mintA, holder, 10, 100)
	putToken(st, pk(2), mintB, holder, 20, 100)
	putToken(st, pk(3), mintA, other, 30, 100)
	// Same owner byte-prefix but not a token layout.
	put(st, pk(4), tokenProgram, 100, []byte{1, 2, 3})

	fast := e.GetTokenAccountsByOwner(holder, TokenAccountsQuery{})
	a.Len(fast, 2)

	// The fast path must equal a general program scan filtered on the
	// holder field.
	slow, err := e.GetProgramAccounts(tokenProgram, ProgramAccountsQuery{
		Filters: []RecordFilter{Memcmp{Offset: basics.TokenHolderOffset, Bytes: holder[:]}},
	})
	a.NoError(err)
	a.Equal(slow, fast)

	// Mint restriction.
	byMint := e.GetTokenAccountsByOwner(holder, TokenAccountsQuery{Mint: &mintA})
	a.Len(byMint, 1)
	a.Equal(pk(1), byMint[0].Pubkey)

	// Index candidates invalidated by a later non-token update disappear
	// from results.
	put(st, pk(1), pk(8), 101, []byte{9})
	fast = e.GetTokenAccountsByOwner(holder, TokenAccountsQuery{})
	a.Len(fast, 1)
	a.Equal(pk(2), fast[0].Pubkey)
}

func TestGetLargestTokenAccounts(t *testing.T) {
	a := require.New(t)
	e, st := testEngine(t)
	mint := pk(0xC1)
	otherMint := pk(0xC2)

	putToken(st, pk(1), mint, pk(0xD1), 10, 100)
	putToken(st, pk(2), mint, pk(0xD2), 30, 100)
	putToken(st, pk(3), mint, pk(0xD3), 20, 100)
	putToken(st, pk(4), otherMint, pk(0xD4), 99, 100)

	got := e.GetLargestTokenAccounts(mint, 0, basics.CommitmentProcessed)
	a.Len(got, 3)
	a.Equal(pk(2), got[0].Pubkey)
	a.Equal(pk(3), got[1].Pubkey)
	a.Equal(pk(1), got[2].Pubkey)

	got = e.GetLargestTokenAccounts(mint, 2, basics.CommitmentProcessed)
	a.Len(got, 2)
	a.Equal(pk(2), got[0].Pubkey)
}

func TestTokenQueriesNeedConfiguredProgram(t *testing.T) {
	a := require.New(t)
	log := logging.TestingLog(t)
	st, err := store.New(store.Params{ShardCount: 8, Log: log})
	a.NoError(err)
	t.Cleanup(st.Close)
	e := NewEngine(st, log)

	a.Nil(e.GetTokenAccountsByOwner(pk(1), TokenAccountsQuery{}))
	a.Nil(e.GetLargestTokenAccounts(pk(1), 5, basics.CommitmentProcessed))
}
