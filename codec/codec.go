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

// Package codec compresses account payloads on their way into the store.
// All schemes are lossless and pure: Decode(Encode(b)) == b for any b.
package codec

import (
	"fmt"

	"github.com/golang/snappy"
)

// A Codec shrinks account payloads. Encode never fails; inputs that do not
// compress are stored behind an uncompressed tag. Decode fails only on a
// corrupt stream.
type Codec interface {
	Encode(data []byte) []byte
	Decode(data []byte) ([]byte, error)

	// Scheme returns the canonical name of the codec.
	Scheme() string
}

// ForScheme returns the codec registered under the given name.
// Known schemes are "rle", "snappy" and "none".
func ForScheme(name string) (Codec, error) {
	switch name {
	case "rle", "":
		return RLE{}, nil
	case "snappy":
		return Snappy{}, nil
	case "none":
		return Null{}, nil
	default:
		return nil, fmt.Errorf("unknown compression scheme %q", name)
	}
}

// Null is the identity codec.
type Null struct{}

// Encode returns a copy of data.
func (Null) Encode(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// Decode returns a copy of data.
func (Null) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Scheme implements Codec.
func (Null) Scheme() string { return "none" }

// Snappy wraps the snappy block format.
type Snappy struct{}

// Encode implements Codec.
func (Snappy) Encode(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return snappy.Encode(nil, data)
}

// Decode implements Codec.
func (Snappy) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return out, nil
}

// Scheme implements Codec.
func (Snappy) Scheme() string { return "snappy" }
