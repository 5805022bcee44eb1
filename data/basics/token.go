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

import "encoding/binary"

// Well-known layout of a token account payload. The mint occupies the first
// 32 bytes, the holder the next 32, followed by the little-endian amount.
const (
	TokenMintOffset     = 0
	TokenHolderOffset   = 32
	TokenAmountOffset   = 64
	TokenAccountMinSize = 72
)

// TokenMint extracts the mint field from a token account payload.
func TokenMint(data []byte) (Pubkey, bool) {
	if len(data) < TokenAccountMinSize {
		return Pubkey{}, false
	}
	var pk Pubkey
	copy(pk[:], data[TokenMintOffset:TokenMintOffset+PubkeySize])
	return pk, true
}

// TokenHolder extracts the holder (wallet owner) field from a token account
// payload.
func TokenHolder(data []byte) (Pubkey, bool) {
	if len(data) < TokenAccountMinSize {
		return Pubkey{}, false
	}
	var pk Pubkey
	copy(pk[:], data[TokenHolderOffset:TokenHolderOffset+PubkeySize])
	return pk, true
}

// TokenAmount extracts the amount field from a token account payload.
func TokenAmount(data []byte) (uint64, bool) {
	if len(data) < TokenAccountMinSize {
		return 0, false
	}
	return binary.LittleEndian.Uint64(data[TokenAmountOffset : TokenAmountOffset+8]), true
}
