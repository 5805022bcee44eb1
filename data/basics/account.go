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

// Package basics holds the domain types shared across the fractal pipeline:
// account identifiers, account records, update events and commitment levels.
package basics

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeySize is the length of an account identifier in bytes.
const PubkeySize = 32

// Pubkey is a fixed-length account identifier.
type Pubkey [PubkeySize]byte

// IsZero returns true for the all-zero identifier.
func (pk Pubkey) IsZero() bool {
	return pk == Pubkey{}
}

// String returns the base58 form of the identifier.
func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

// MarshalText implements encoding.TextMarshaler.
func (pk Pubkey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *Pubkey) UnmarshalText(text []byte) error {
	decoded, err := UnmarshalPubkey(string(text))
	if err != nil {
		return err
	}
	*pk = decoded
	return nil
}

// UnmarshalPubkey parses the base58 form of an identifier.
func UnmarshalPubkey(s string) (Pubkey, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("failed to decode pubkey %s as base58: %w", s, err)
	}
	if len(decoded) != PubkeySize {
		return Pubkey{}, fmt.Errorf("decoded pubkey %s has %d bytes, want %d", s, len(decoded), PubkeySize)
	}
	var pk Pubkey
	copy(pk[:], decoded)
	return pk, nil
}

// Version orders writes to a single account. Slot is the ledger height the
// value was produced at; WriteVersion disambiguates multiple writes to the
// same account within one slot.
type Version struct {
	Slot         uint64
	WriteVersion uint64
}

// After reports whether v is strictly newer than other.
func (v Version) After(other Version) bool {
	if v.Slot != other.Slot {
		return v.Slot > other.Slot
	}
	return v.WriteVersion > other.WriteVersion
}

// AccountRecord is the latest known value of a single account. Data holds
// the raw (uncompressed) payload; the store keeps it compressed internally.
type AccountRecord struct {
	Owner        Pubkey
	Lamports     uint64
	Data         []byte
	Executable   bool
	RentEpoch    uint64
	Slot         uint64
	WriteVersion uint64

	// Rooted is true once the value belongs to a finalized slot and can no
	// longer be discarded by a fork switch.
	Rooted bool
}

// Version returns the (slot, write-version) pair of the record.
func (r *AccountRecord) Version() Version {
	return Version{Slot: r.Slot, WriteVersion: r.WriteVersion}
}

// UpdateEvent is a single inbound account mutation from the upstream stream.
type UpdateEvent struct {
	Pubkey       Pubkey
	Owner        Pubkey
	Lamports     uint64
	Data         []byte
	Executable   bool
	RentEpoch    uint64
	Slot         uint64
	WriteVersion uint64
	Rooted       bool
}

// Record converts the event payload into the account record it produces.
func (ev *UpdateEvent) Record() AccountRecord {
	return AccountRecord{
		Owner:        ev.Owner,
		Lamports:     ev.Lamports,
		Data:         ev.Data,
		Executable:   ev.Executable,
		RentEpoch:    ev.RentEpoch,
		Slot:         ev.Slot,
		WriteVersion: ev.WriteVersion,
		Rooted:       ev.Rooted,
	}
}

// Commitment selects how finalized a queried value must be.
type Commitment uint8

const (
	// CommitmentProcessed returns the most recent value, which may still be
	// discarded by a fork switch.
	CommitmentProcessed Commitment = iota
	// CommitmentRooted returns only values written at finalized slots.
	CommitmentRooted
)

// String returns the canonical text form of the commitment level.
func (c Commitment) String() string {
	switch c {
	case CommitmentProcessed:
		return "processed"
	case CommitmentRooted:
		return "rooted"
	default:
		return fmt.Sprintf("commitment(%d)", uint8(c))
	}
}

// ParseCommitment maps the text form back to a commitment level.
func ParseCommitment(s string) (Commitment, error) {
	switch s {
	case "processed", "":
		return CommitmentProcessed, nil
	case "rooted", "finalized":
		return CommitmentRooted, nil
	default:
		return CommitmentProcessed, fmt.Errorf("unknown commitment level %q", s)
	}
}
