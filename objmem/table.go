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

// Package objmem is the object memory: tagged references live in package
// oop, everything that needs an allocator, an object table, a mark-sweep
// collector, and the fixed Class/Method/Context/Block/Process/Dictionary
// shapes lives here, because in the source VM all of these are one tightly
// coupled subsystem sharing a single global table.
package objmem

import "github.com/ZYSF/Smalltalk-Archive/oop"

// Scale relates an object's byte length to its element count: 0 bytes,
// 1 halfwords, 2 words-or-refs (§3).
type Scale uint8

const (
	ScaleByte     Scale = 0
	ScaleHalfword Scale = 1
	ScaleWord     Scale = 2
)

func (s Scale) ElementSize() int { return 1 << s }

// Entry is one object-table slot (§3). Buf is nil for avail/free slots.
type Entry struct {
	Buf      []byte
	Scale    Scale
	HasRefs  bool
	Marked   bool
	Volatile bool
	Avail    bool
	Class    oop.Ref
}

// SizeBytes returns len(Buf), the invariant size_bytes == element_count<<scale.
func (e *Entry) SizeBytes() int { return len(e.Buf) }

// Count returns the element count (size_bytes >> scale).
func (e *Entry) Count() int { return len(e.Buf) >> e.Scale }

// Table is the object table: a fixed-capacity array of slots, sized once at
// boot the way the source VM `calloc`s a fixed otbDom-sized table. Index 0
// is the free-list head sentinel (never a live object); indices
// 1..Cap()-1 are addressable Oops.
type Table struct {
	entries []Entry
}

// NewTable returns a table with capacity addressable slots (plus the
// sentinel), all threaded onto the free list in descending order so the
// first allocations hand out low indices first.
func NewTable(capacity int32) *Table {
	t := &Table{entries: make([]Entry, capacity+1)}
	t.entries[0].Avail = true
	next := int32(0)
	for i := capacity; i >= 1; i-- {
		t.entries[i] = Entry{Avail: true, Class: oop.Oop(next)}
		next = i
	}
	t.entries[0].Class = oop.Oop(next)
	return t
}

// Cap returns the number of addressable slots, i.e. MAX_OOP+1 including the
// sentinel.
func (t *Table) Cap() int { return len(t.entries) }

// At returns a pointer to the entry for index i (0 is the sentinel).
func (t *Table) At(i int32) *Entry {
	return &t.entries[i]
}

// popFree removes and returns the head of the free list. ok is false when
// the list is empty -- the caller (Memory) is responsible for running the
// collector and retrying, and for treating a second failure as allocator
// exhaustion (§7).
func (t *Table) popFree() (idx int32, ok bool) {
	head := t.entries[0].Class.Index()
	if head == 0 {
		return 0, false
	}
	t.entries[0].Class = t.entries[head].Class
	t.entries[head] = Entry{Avail: false}
	return head, true
}

// pushFree returns slot idx to the free list. The caller must have already
// released idx's buffer.
func (t *Table) pushFree(idx int32) {
	t.entries[idx] = Entry{Avail: true, Class: t.entries[0].Class}
	t.entries[0].Class = oop.Oop(idx)
}

// FreeCount walks the free list and counts its entries; used by the
// "available object count" primitive (§4.8) and by tests.
func (t *Table) FreeCount() int {
	n := 0
	for i := t.entries[0].Class.Index(); i != 0; i = t.entries[i].Class.Index() {
		n++
	}
	return n
}

// RebuildFreeList re-threads the free list from scratch over every entry
// still marked Avail, in descending order (matching NewTable's own
// threading), ignoring whatever stale Class-as-next-pointer a free slot
// happened to hold before. An image loader populates live slots directly
// via At and leaves every slot it never touched with its NewTable-time
// Avail=true, but the chain those untouched slots were originally threaded
// onto is no longer valid once some of its links have been overwritten with
// real object data -- this rebuilds a fresh, consistent chain afterward.
func (t *Table) RebuildFreeList() {
	next := int32(0)
	for i := int32(len(t.entries)) - 1; i >= 1; i-- {
		if !t.entries[i].Avail {
			continue
		}
		t.entries[i] = Entry{Avail: true, Class: oop.Oop(next)}
		next = i
	}
	t.entries[0].Avail = true
	t.entries[0].Class = oop.Oop(next)
}
