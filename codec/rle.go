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

package codec

import "errors"

// ErrCorrupt is returned when a compressed stream cannot be decoded.
var ErrCorrupt = errors.New("codec: corrupt stream")

// RLE is a run-length codec tuned for the zero-padded, highly repetitive
// payloads typical of on-chain account data.
//
// The first byte of a non-empty encoding is a tag. Under tagRuns the body is
// a stream of literal bytes in which runMarker introduces a (byte, count)
// pair: count >= minRunLength replays the byte count times, count == 0
// escapes a single literal occurrence of the byte (used when the marker
// itself appears in the input). Runs shorter than minRunLength are emitted
// as literals. If the run encoding would not beat the input size the whole
// payload is stored verbatim under tagRaw, bounding expansion to one byte.
type RLE struct{}

const (
	tagRaw  = 0x00
	tagRuns = 0x01

	runMarker    = 0xA5
	minRunLength = 4
	maxRunLength = 255
)

// Encode implements Codec. Empty input encodes to empty output.
func (RLE) Encode(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}

	body := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		b := data[i]
		runLen := 1
		for i+runLen < len(data) && data[i+runLen] == b && runLen < maxRunLength {
			runLen++
		}
		switch {
		case runLen >= minRunLength:
			body = append(body, runMarker, b, byte(runLen))
		case b == runMarker:
			for j := 0; j < runLen; j++ {
				body = append(body, runMarker, runMarker, 0)
			}
		default:
			for j := 0; j < runLen; j++ {
				body = append(body, b)
			}
		}
		i += runLen
	}

	if len(body) >= len(data) {
		out := make([]byte, 1+len(data))
		out[0] = tagRaw
		copy(out[1:], data)
		return out
	}
	out := make([]byte, 1+len(body))
	out[0] = tagRuns
	copy(out[1:], body)
	return out
}

// Decode implements Codec.
func (RLE) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	switch data[0] {
	case tagRaw:
		out := make([]byte, len(data)-1)
		copy(out, data[1:])
		return out, nil
	case tagRuns:
		body := data[1:]
		out := make([]byte, 0, len(body))
		for i := 0; i < len(body); i++ {
			b := body[i]
			if b != runMarker {
				out = append(out, b)
				continue
			}
			if i+2 >= len(body) {
				return nil, ErrCorrupt
			}
			value, count := body[i+1], body[i+2]
			i += 2
			switch {
			case count == 0:
				out = append(out, value)
			case count >= minRunLength:
				for j := 0; j < int(count); j++ {
					out = append(out, value)
				}
			default:
				// Counts below the minimum run length are never emitted.
				return nil, ErrCorrupt
			}
		}
		return out, nil
	default:
		return nil, ErrCorrupt
	}
}

// Scheme implements Codec.
func (RLE) Scheme() string { return "rle" }
