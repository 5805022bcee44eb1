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
	"fmt"

	"github.com/algorand/go-codec/codec"

	"github.com/fractalhq/fractal/data/basics"
)

// wireRecord is the msgpack form of an account record in the shared cache.
type wireRecord struct {
	Owner        []byte `codec:"o"`
	Lamports     uint64 `codec:"l"`
	Data         []byte `codec:"d"`
	Executable   bool   `codec:"x"`
	RentEpoch    uint64 `codec:"e"`
	Slot         uint64 `codec:"s"`
	WriteVersion uint64 `codec:"w"`
}

var msgpackHandle = func() *codec.MsgpackHandle {
	h := new(codec.MsgpackHandle)
	h.Canonical = true
	return h
}()

func encodeRecord(record *basics.AccountRecord) ([]byte, error) {
	wire := wireRecord{
		Owner:        record.Owner[:],
		Lamports:     record.Lamports,
		Data:         record.Data,
		Executable:   record.Executable,
		RentEpoch:    record.RentEpoch,
		Slot:         record.Slot,
		WriteVersion: record.WriteVersion,
	}
	var out []byte
	if err := codec.NewEncoderBytes(&out, msgpackHandle).Encode(wire); err != nil {
		return nil, fmt.Errorf("distcache: encode record: %w", err)
	}
	return out, nil
}

func decodeRecord(raw []byte) (*basics.AccountRecord, error) {
	var wire wireRecord
	if err := codec.NewDecoderBytes(raw, msgpackHandle).Decode(&wire); err != nil {
		return nil, fmt.Errorf("distcache: decode record: %w", err)
	}
	if len(wire.Owner) != basics.PubkeySize {
		return nil, fmt.Errorf("distcache: decode record: owner has %d bytes", len(wire.Owner))
	}
	record := basics.AccountRecord{
		Lamports:     wire.Lamports,
		Data:         wire.Data,
		Executable:   wire.Executable,
		RentEpoch:    wire.RentEpoch,
		Slot:         wire.Slot,
		WriteVersion: wire.WriteVersion,
		Rooted:       true,
	}
	copy(record.Owner[:], wire.Owner)
	return &record, nil
}
