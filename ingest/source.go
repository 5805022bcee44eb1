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

package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fractalhq/fractal/data/basics"
)

// ErrMalformedEvent marks an event the source could not decode. The
// ingestor drops such events with a counted diagnostic and keeps streaming.
var ErrMalformedEvent = errors.New("ingest: malformed event")

// A Source yields the upstream event stream, already deserialized from
// whatever transport carries it. Next blocks until an event is available,
// the context is cancelled, or the stream ends. A (nil, error) return
// wrapping ErrMalformedEvent is recoverable; any other error is a
// disconnect.
type Source interface {
	Next(ctx context.Context) (Event, error)
}

// SliceSource replays a fixed sequence of events and then reports EOF.
// Used by tests and benchmarks.
type SliceSource struct {
	events []Event
	next   int
}

// NewSliceSource returns a Source over the given events.
func NewSliceSource(events []Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.next]
	s.next++
	return ev, nil
}

// maxLineBytes bounds a single replay line; account payloads can reach
// multiple megabytes once base64-encoded.
const maxLineBytes = 64 << 20

// LineSource reads one JSON event per line, the format produced by stream
// capture tooling. Malformed lines surface as ErrMalformedEvent so the
// ingestor can skip them.
type LineSource struct {
	scanner *bufio.Scanner
}

// NewLineSource returns a Source reading JSON lines from r.
func NewLineSource(r io.Reader) *LineSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &LineSource{scanner: scanner}
}

// wireEvent is the JSON line format. Pubkeys are base58, data is base64
// (encoding/json's []byte default).
type wireEvent struct {
	Type         string `json:"type"`
	Pubkey       string `json:"pubkey,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Lamports     uint64 `json:"lamports,omitempty"`
	Data         []byte `json:"data,omitempty"`
	Executable   bool   `json:"executable,omitempty"`
	RentEpoch    uint64 `json:"rent_epoch,omitempty"`
	Slot         uint64 `json:"slot"`
	WriteVersion uint64 `json:"write_version,omitempty"`
	Rooted       bool   `json:"rooted,omitempty"`
	FromSlot     uint64 `json:"from_slot,omitempty"`
	ToSlot       uint64 `json:"to_slot,omitempty"`
}

// Next implements Source.
func (s *LineSource) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := parseWireEvent(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return ev, nil
	}
}

func parseWireEvent(line []byte) (Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(line, &wire); err != nil {
		return nil, err
	}
	switch wire.Type {
	case "update":
		pk, err := basics.UnmarshalPubkey(wire.Pubkey)
		if err != nil {
			return nil, err
		}
		owner, err := basics.UnmarshalPubkey(wire.Owner)
		if err != nil {
			return nil, err
		}
		return AccountUpdate{basics.UpdateEvent{
			Pubkey:       pk,
			Owner:        owner,
			Lamports:     wire.Lamports,
			Data:         wire.Data,
			Executable:   wire.Executable,
			RentEpoch:    wire.RentEpoch,
			Slot:         wire.Slot,
			WriteVersion: wire.WriteVersion,
			Rooted:       wire.Rooted,
		}}, nil
	case "root":
		return RootAdvance{Slot: wire.Slot}, nil
	case "fork":
		return ForkSwitch{Slot: wire.Slot}, nil
	case "gap":
		return Gap{FromSlot: wire.FromSlot, ToSlot: wire.ToSlot}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", wire.Type)
	}
}
