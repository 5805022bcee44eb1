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

package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fractalhq/fractal/data/basics"
	"github.com/fractalhq/fractal/logging"
)

func pk(b byte) basics.Pubkey {
	var out basics.Pubkey
	out[0] = b
	return out
}

func notif(acct, owner basics.Pubkey) Notification {
	return Notification{
		Pubkey: acct,
		New:    &basics.AccountRecord{Owner: owner, Slot: 1},
	}
}

func TestFilterMatching(t *testing.T) {
	a := require.New(t)
	acct, other := pk(1), pk(2)
	owner, otherOwner := pk(9), pk(8)

	a.True(Filter{}.matches(notif(acct, owner)))

	a.True(Filter{Account: &acct}.matches(notif(acct, owner)))
	a.False(Filter{Account: &acct}.matches(notif(other, owner)))

	a.True(Filter{Owner: &owner}.matches(notif(acct, owner)))
	a.False(Filter{Owner: &otherOwner}.matches(notif(acct, owner)))

	a.True(Filter{Account: &acct, Owner: &owner}.matches(notif(acct, owner)))
	a.False(Filter{Account: &acct, Owner: &otherOwner}.matches(notif(acct, owner)))

	// A removal notification matches against the removed value's owner.
	removal := Notification{Pubkey: acct, Old: &basics.AccountRecord{Owner: owner}}
	a.True(Filter{Owner: &owner}.matches(removal))
	a.False(Filter{Owner: &otherOwner}.matches(removal))

	// Nothing to match an owner against.
	a.False(Filter{Owner: &owner}.matches(Notification{Pubkey: acct}))
}

func TestSubscribeBeforeAccountExists(t *testing.T) {
	a := require.New(t)
	bus := NewBus(4, logging.TestingLog(t))
	owner := pk(9)

	// The subscription predates any account with this owner; the creation
	// itself must be delivered.
	sub := bus.Subscribe(Filter{Owner: &owner})
	defer sub.Cancel()

	bus.Publish(notif(pk(1), owner))
	n := <-sub.Updates()
	a.Equal(pk(1), n.Pubkey)
	a.Nil(n.Old)
	a.Equal(owner, n.New.Owner)
}

func TestPublishFanout(t *testing.T) {
	a := require.New(t)
	bus := NewBus(4, logging.TestingLog(t))
	acct := pk(1)
	owner := pk(9)

	all := bus.Subscribe(Filter{})
	byAccount := bus.Subscribe(Filter{Account: &acct})
	byOther := bus.Subscribe(Filter{Account: func() *basics.Pubkey { p := pk(2); return &p }()})
	a.Equal(3, bus.Len())

	bus.Publish(notif(acct, owner))

	a.Len(all.Updates(), 1)
	a.Len(byAccount.Updates(), 1)
	a.Len(byOther.Updates(), 0)

	all.Cancel()
	byAccount.Cancel()
	byOther.Cancel()
	a.Zero(bus.Len())
}

func TestOverflowDisconnectsOnlyTheSlowSubscriber(t *testing.T) {
	a := require.New(t)
	const depth = 4
	bus := NewBus(depth, logging.TestingLog(t))
	owner := pk(9)

	slow := bus.Subscribe(Filter{})
	fast := bus.Subscribe(Filter{})

	for i := 0; i < depth+1; i++ {
		bus.Publish(notif(pk(byte(i+1)), owner))
		// The fast subscriber drains continuously.
		<-fast.Updates()
	}

	// The slow subscriber's queue overflowed on the last publish; it was
	// disconnected and its channel closed after the buffered backlog.
	a.Equal(1, bus.Len())
	for i := 0; i < depth; i++ {
		_, open := <-slow.Updates()
		a.True(open)
	}
	_, open := <-slow.Updates()
	a.False(open)

	// The surviving subscriber still receives.
	bus.Publish(notif(pk(0x77), owner))
	n := <-fast.Updates()
	a.Equal(pk(0x77), n.Pubkey)
	fast.Cancel()
}

func TestCancelIsIdempotent(t *testing.T) {
	a := require.New(t)
	bus := NewBus(1, logging.TestingLog(t))

	sub := bus.Subscribe(Filter{})
	sub.Cancel()
	sub.Cancel()
	bus.Unsubscribe(sub.ID())
	a.Zero(bus.Len())

	// Publishing to a bus with no subscribers is a no-op.
	bus.Publish(notif(pk(1), pk(9)))
	_, open := <-sub.Updates()
	a.False(open)
}
