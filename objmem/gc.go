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

import "github.com/ZYSF/Smalltalk-Archive/oop"

// Collect runs a mark-sweep pass. When all is true this is a "full"
// collection: roots are `symbols` plus every slot currently flagged
// Volatile. When all is false this is a "minor" collection: the only root
// is `symbols`, so a Volatile slot not reachable from it is reclaimed, and
// every slot that survives has its Volatile flag cleared (§4.2).
func (m *Memory) Collect(all bool) {
	cap := int32(m.Table.Cap())
	m.markFrom(m.Symbols)
	if all {
		for i := int32(1); i < cap; i++ {
			e := m.Table.At(i)
			if !e.Avail && e.Volatile {
				m.markFrom(oop.Oop(i))
			}
		}
	}
	m.sweep(all)
}

// markFrom is an explicit-stack DFS from root, following Class and (if
// HasRefs) every element, skipping SmallInts and already-marked slots.
func (m *Memory) markFrom(root oop.Ref) {
	if !root.IsOop() || root.Index() == 0 {
		return
	}
	stack := []int32{root.Index()}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e := m.Table.At(idx)
		if e.Avail || e.Marked {
			continue
		}
		e.Marked = true
		if e.Class.IsOop() && e.Class.Index() != 0 {
			stack = append(stack, e.Class.Index())
		}
		if e.HasRefs {
			n := e.Count()
			for i := 0; i < n; i++ {
				v := refAt(e.Buf, i)
				if v.IsOop() && v.Index() != 0 {
					stack = append(stack, v.Index())
				}
			}
		}
	}
}

// sweep iterates slots high to low: unmarked, non-available slots are
// freed and pushed onto the free list; marked slots are unmarked, and in
// minor mode also lose their Volatile flag.
func (m *Memory) sweep(all bool) {
	for i := int32(m.Table.Cap()) - 1; i >= 1; i-- {
		e := m.Table.At(i)
		if e.Avail {
			continue
		}
		if !e.Marked {
			m.Arena.Free(e.Buf)
			m.Table.pushFree(i)
			continue
		}
		e.Marked = false
		if !all {
			e.Volatile = false
		}
	}
}
