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

import "github.com/fractalhq/fractal/data/basics"

// An Event is one record of the upstream stream. The concrete types are
// AccountUpdate, RootAdvance, ForkSwitch and Gap.
type Event interface {
	ingestEvent()
}

// AccountUpdate carries a single account mutation.
type AccountUpdate struct {
	basics.UpdateEvent
}

// RootAdvance announces that every slot at or below Slot is finalized.
type RootAdvance struct {
	Slot uint64
}

// ForkSwitch announces that the chain abandoned all speculative slots above
// Slot. How the upstream signals this (explicit message or slot regression)
// is deployment-specific; see Options.InferForkFromSlotRegression.
type ForkSwitch struct {
	Slot uint64
}

// Gap announces a sequence discontinuity: slots in (FromSlot, ToSlot] were
// never delivered.
type Gap struct {
	FromSlot uint64
	ToSlot   uint64
}

func (AccountUpdate) ingestEvent() {}
func (RootAdvance) ingestEvent()   {}
func (ForkSwitch) ingestEvent()    {}
func (Gap) ingestEvent()           {}
