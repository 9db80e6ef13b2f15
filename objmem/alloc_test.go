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

func TestRefRoundTrip(t *testing.T) {
	cases := []oop.Ref{
		oop.SmallInt(0),
		oop.SmallInt(1),
		oop.SmallInt(-1),
		oop.SmallInt(oop.MaxSmallInt),
		oop.SmallInt(oop.MinSmallInt),
		oop.Oop(0),
		oop.Oop(1),
		oop.Oop(1<<20 - 1),
	}
	buf := make([]byte, 4)
	for _, c := range cases {
		putRefAt(buf, 0, c)
		got := refAt(buf, 0)
		if !got.Equal(c) {
			t.Fatalf("ref round trip: put %v, got %v", c, got)
		}
	}
}

func TestAllocRefZeroesToNil(t *testing.T) {
	m := NewMemory(256)
	r := m.AllocRef(3)
	for i := 0; i < 3; i++ {
		if got := m.GetRef(r, i); !oop.IsNil(got) {
			t.Fatalf("AllocRef field %d = %v, want nil", i, got)
		}
	}
}

func TestStoreRefClearsVolatile(t *testing.T) {
	m := NewMemory(256)
	holder := m.AllocRef(1)
	child := m.AllocRef(0)
	if !m.Table.At(child.Index()).Volatile {
		t.Fatalf("freshly allocated object should start Volatile")
	}
	m.StoreRef(holder, 0, child)
	if m.Table.At(child.Index()).Volatile {
		t.Fatalf("StoreRef should clear the stored object's Volatile flag")
	}
}

func TestRawPutRefLeavesVolatile(t *testing.T) {
	m := NewMemory(256)
	holder := m.AllocRef(1)
	child := m.AllocRef(0)
	m.RawPutRef(holder, 0, child)
	if !m.Table.At(child.Index()).Volatile {
		t.Fatalf("RawPutRef must not clear Volatile")
	}
}

func TestAllocatorExhaustionPanics(t *testing.T) {
	m := NewMemory(11) // tiny table: the bootstrap objects take all but a couple of slots
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected allocator exhaustion panic")
		}
		if _, ok := r.(*ExhaustionError); !ok {
			t.Fatalf("panic value = %#v, want *ExhaustionError", r)
		}
	}()
	head := oop.Nil
	for i := 0; i < 100; i++ {
		node := m.AllocRef(2) // [0]=payload, [1]=link to the rest of the chain
		m.StoreRef(node, 0, m.AllocRef(0))
		m.StoreRef(node, 1, head)
		head = node
		m.Symbols = head // keep the whole chain reachable, so GC can't reclaim any of it
	}
}
