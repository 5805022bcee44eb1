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
	"fmt"
)

// A RecordFilter narrows a program-scoped scan by inspecting the raw
// payload of each candidate account.
type RecordFilter interface {
	// Matches reports whether the payload passes the filter.
	Matches(data []byte) bool

	// Validate rejects malformed filter parameters before any scan runs.
	Validate() error
}

// Memcmp matches payloads whose bytes at Offset equal Bytes.
type Memcmp struct {
	Offset int
	Bytes  []byte
}

// Matches implements RecordFilter. Payloads shorter than the compared
// range never match.
func (f Memcmp) Matches(data []byte) bool {
	if f.Offset < 0 || f.Offset+len(f.Bytes) > len(data) {
		return false
	}
	return bytes.Equal(data[f.Offset:f.Offset+len(f.Bytes)], f.Bytes)
}

// Validate implements RecordFilter.
func (f Memcmp) Validate() error {
	if f.Offset < 0 {
		return fmt.Errorf("memcmp filter: negative offset %d", f.Offset)
	}
	if len(f.Bytes) == 0 {
		return fmt.Errorf("memcmp filter: empty comparison bytes")
	}
	return nil
}

// DataSize matches payloads of exactly Size bytes.
type DataSize struct {
	Size int
}

// Matches implements RecordFilter.
func (f DataSize) Matches(data []byte) bool {
	return len(data) == f.Size
}

// Validate implements RecordFilter.
func (f DataSize) Validate() error {
	if f.Size < 0 {
		return fmt.Errorf("datasize filter: negative size %d", f.Size)
	}
	return nil
}

// DataSlice projects results onto a byte range of the payload, trading
// response size for completeness. Ranges extending past the payload are
// clamped.
type DataSlice struct {
	Offset int
	Length int
}

// Validate rejects malformed projection parameters.
func (s DataSlice) Validate() error {
	if s.Offset < 0 || s.Length < 0 {
		return fmt.Errorf("data slice: negative offset or length")
	}
	return nil
}

func (s DataSlice) apply(data []byte) []byte {
	if s.Offset >= len(data) {
		return nil
	}
	end := s.Offset + s.Length
	if end > len(data) {
		end = len(data)
	}
	out := make([]byte, end-s.Offset)
	copy(out, data[s.Offset:end])
	return out
}
