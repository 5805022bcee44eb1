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

package basics

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPubkeyStringRoundtrip(t *testing.T) {
	a := require.New(t)

	var pk Pubkey
	for i := range pk {
		pk[i] = byte(i + 1)
	}
	decoded, err := UnmarshalPubkey(pk.String())
	a.NoError(err)
	a.Equal(pk, decoded)

	a.False(pk.IsZero())
	a.True(Pubkey{}.IsZero())

	_, err = UnmarshalPubkey("not!base58!!")
	a.Error(err)
	_, err = UnmarshalPubkey("abc") // valid base58, wrong length
	a.Error(err)
}

func TestVersionOrdering(t *testing.T) {
	a := require.New(t)

	a.True(Version{Slot: 10, WriteVersion: 1}.After(Version{Slot: 9, WriteVersion: 99}))
	a.True(Version{Slot: 10, WriteVersion: 2}.After(Version{Slot: 10, WriteVersion: 1}))
	a.False(Version{Slot: 10, WriteVersion: 1}.After(Version{Slot: 10, WriteVersion: 1}))
	a.False(Version{Slot: 9, WriteVersion: 99}.After(Version{Slot: 10, WriteVersion: 0}))
	// Absence ranks lowest: any version exceeds the zero version.
	a.True(Version{Slot: 0, WriteVersion: 1}.After(Version{}))
}

func TestParseCommitment(t *testing.T) {
	a := require.New(t)

	c, err := ParseCommitment("processed")
	a.NoError(err)
	a.Equal(CommitmentProcessed, c)

	c, err = ParseCommitment("")
	a.NoError(err)
	a.Equal(CommitmentProcessed, c)

	for _, s := range []string{"rooted", "finalized"} {
		c, err = ParseCommitment(s)
		a.NoError(err)
		a.Equal(CommitmentRooted, c)
	}

	_, err = ParseCommitment("confirmed-ish")
	a.Error(err)

	a.Equal("processed", CommitmentProcessed.String())
	a.Equal("rooted", CommitmentRooted.String())
}

func TestTokenLayout(t *testing.T) {
	a := require.New(t)

	var mint, holder Pubkey
	mint[0], holder[0] = 0xAA, 0xBB
	data := make([]byte, TokenAccountMinSize)
	copy(data[TokenMintOffset:], mint[:])
	copy(data[TokenHolderOffset:], holder[:])
	binary.LittleEndian.PutUint64(data[TokenAmountOffset:], 12345)

	m, ok := TokenMint(data)
	a.True(ok)
	a.Equal(mint, m)

	h, ok := TokenHolder(data)
	a.True(ok)
	a.Equal(holder, h)

	amt, ok := TokenAmount(data)
	a.True(ok)
	a.Equal(uint64(12345), amt)

	// Payloads below the token layout size expose no fields.
	short := make([]byte, TokenAccountMinSize-1)
	_, ok = TokenMint(short)
	a.False(ok)
	_, ok = TokenHolder(short)
	a.False(ok)
	_, ok = TokenAmount(short)
	a.False(ok)
}

func TestUpdateEventRecord(t *testing.T) {
	a := require.New(t)

	ev := UpdateEvent{
		Lamports:     7,
		Data:         []byte{1, 2, 3},
		Executable:   true,
		RentEpoch:    4,
		Slot:         100,
		WriteVersion: 2,
		Rooted:       true,
	}
	ev.Pubkey[0] = 1
	ev.Owner[0] = 2

	rec := ev.Record()
	a.Equal(ev.Owner, rec.Owner)
	a.Equal(ev.Lamports, rec.Lamports)
	a.Equal(ev.Data, rec.Data)
	a.Equal(ev.Executable, rec.Executable)
	a.Equal(ev.RentEpoch, rec.RentEpoch)
	a.Equal(Version{Slot: 100, WriteVersion: 2}, rec.Version())
	a.True(rec.Rooted)
}
