// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package objmem

import (
	"testing"

	"github.com/ZYSF/Smalltalk-Archive/oop"
)

func TestFullCollectReclaimsUnreachable(t *testing.T) {
	m := NewMemory(256)

	root := m.AllocRef(1)
	m.Symbols = root

	holder := m.AllocRef(1)
	child := m.AllocRef(0)
	m.StoreRef(holder, 0, child) // clears child's Volatile flag
	m.StoreRef(root, 0, holder)  // clears holder's Volatile flag

	// replacing Symbols orphaned the bootstrap objects; reclaim them first
	// so the count below measures holder and child alone
	m.Collect(true)
	before := m.Table.FreeCount()

	m.StoreRef(root, 0, oop.Nil) // unlink: holder (and, transitively, child) is now garbage
	m.Collect(true)

	after := m.Table.FreeCount()
	if after != before+2 {
		t.Fatalf("FreeCount after collecting garbage = %d, want %d (holder + child reclaimed)", after, before+2)
	}
}

func TestFullCollectKeepsReachable(t *testing.T) {
	m := NewMemory(256)
	kept := m.AllocRef(1)
	child := m.AllocRef(0)
	m.StoreRef(kept, 0, child)

	root := m.AllocRef(1)
	m.StoreRef(root, 0, kept)
	m.Symbols = root

	m.Collect(true)

	if got := m.GetRef(root, 0); !got.Equal(kept) {
		t.Fatalf("root field after GC = %v, want %v (kept should survive)", got, kept)
	}
	if got := m.GetRef(kept, 0); !got.Equal(child) {
		t.Fatalf("kept field after GC = %v, want %v (child should survive)", got, child)
	}
}

func TestMinorCollectClearsVolatileOnReachableSurvivor(t *testing.T) {
	m := NewMemory(256)
	root := m.AllocRef(1)
	m.Symbols = root
	obj := m.AllocRef(0)
	m.RawPutRef(root, 0, obj) // reachable from Symbols; obj stays Volatile until the collection

	m.Collect(false)

	if m.Table.At(obj.Index()).Avail {
		t.Fatalf("obj reachable from Symbols should survive a minor collection")
	}
	if m.Table.At(obj.Index()).Volatile {
		t.Fatalf("minor collection should clear Volatile on survivors")
	}
}

// A minor collection's root set is Symbols alone (§4.2): unlike a full
// collection it does not also root every Volatile slot, so an object that
// is volatile but unreachable from Symbols does not survive it. This is
// what makes a minor collection cheaper to run between full passes.
func TestMinorCollectFreesUnreachableVolatile(t *testing.T) {
	m := NewMemory(256)
	obj := m.AllocRef(0)
	if !m.Table.At(obj.Index()).Volatile {
		t.Fatalf("fresh allocation should start Volatile")
	}

	m.Collect(false)

	if !m.Table.At(obj.Index()).Avail {
		t.Fatalf("obj unreachable from Symbols should not survive a minor collection")
	}
}
