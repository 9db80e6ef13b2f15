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
	"fmt"

	"golang.org/x/exp/maps"

	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// DefaultSymbolBuckets is the bucket count the bootstrap symbols Dictionary
// starts with. The source VM sizes its initial symbol table similarly
// small and lets nameTableInsert's modulo scheme absorb growth; we don't
// grow the bucket array later, just the Link chains hanging off it.
const DefaultSymbolBuckets = 64

// Memory is the object memory facade: the object table, the backing byte
// arena, and the handful of bootstrap Oops every other package needs a
// handle on (§3's reserved low indices).
type Memory struct {
	Table   *Table
	Arena   *Arena
	Symbols oop.Ref

	// LinkClass tags Dictionary overflow-chain nodes once the bootstrap
	// compiler has built real classes; nil until then, which is fine since
	// nothing but introspection primitives reads a Link's class.
	LinkClass oop.Ref

	// reserved remembers the handful of names bootstrapped directly by
	// NewMemory (nil/true/false/symbols), ahead of the symbols Dictionary
	// being queryable the normal way during the earliest bootstrap steps.
	reserved map[string]oop.Ref
}

// NewMemory builds a fresh object memory with a fixed-capacity object table
// and boots the reserved low indices (nil, true, false, the initial symbol
// bucket array, and the symbols Dictionary wrapping it) in that exact
// order, relying on the table handing out free slots ascending from 1 so
// the bootstrap objects land on the indices package oop reserves for them.
func NewMemory(tableCapacity int32) *Memory {
	m := &Memory{
		Table:     NewTable(tableCapacity),
		Arena:     NewArena(),
		LinkClass: oop.Nil,
		reserved:  make(map[string]oop.Ref, 4),
	}

	nilObj := m.AllocRef(0)
	trueObj := m.AllocRef(0)
	falseObj := m.AllocRef(0)
	bucketArray := m.AllocRef(DefaultSymbolBuckets * 3)
	symbols := m.AllocRef(DictionaryShapeFields)
	m.SetField(symbols, DictionaryTable, bucketArray)

	assertIndex("nil", nilObj, oop.NilIndex)
	assertIndex("true", trueObj, oop.TrueIndex)
	assertIndex("false", falseObj, oop.FalseIndex)
	assertIndex("symbol hash table", bucketArray, oop.SymHashIndex)
	assertIndex("symbols", symbols, oop.SymbolsIndex)

	m.Symbols = symbols

	// Re-home the symbols dictionary under its own name, and nil/true/false
	// under theirs, exactly as the source's bootstrap does at the point it
	// first has a symbols table to insert into (pdst.c's initCommonSymbols:
	// nameTableInsert(symbols, strHash("nil"), newSymbol("nil"), nilObj), etc).
	m.internReserved("nil", nilObj)
	m.internReserved("true", trueObj)
	m.internReserved("false", falseObj)
	m.internReserved("symbols", symbols)

	return m
}

// LoadMemory wraps a Table already populated by an image reader (entries
// set directly via Table.At, free slots left Avail and then re-threaded
// with Table.RebuildFreeList) into a usable Memory, re-deriving the handful
// of bootstrap handles NewMemory sets up explicitly: the reserved low
// indices always land in the same slots (§3), so there's nothing to search
// for, just names to reattach.
func LoadMemory(table *Table) *Memory {
	m := &Memory{
		Table:    table,
		Arena:    NewArena(),
		reserved: make(map[string]oop.Ref, 4),
	}
	m.Symbols = oop.Oop(oop.SymbolsIndex)
	m.reserved["nil"] = oop.Nil
	m.reserved["true"] = oop.True
	m.reserved["false"] = oop.False
	m.reserved["symbols"] = m.Symbols
	if class := m.Global("Link"); !oop.IsNil(class) {
		m.LinkClass = class
	} else {
		m.LinkClass = oop.Nil
	}
	return m
}

func assertIndex(name string, r oop.Ref, want int32) {
	if r.Index() != want {
		panic(fmt.Sprintf("objmem: bootstrap object %q landed at index %d, want %d", name, r.Index(), want))
	}
}

// internReserved inserts name -> value into the symbols table, first
// interning name as a freshly allocated Symbol (a NUL-terminated byte
// object, same representation as String). Symbol de-duplication on lookup
// happens via Intern, not here -- the bootstrap names are each inserted
// exactly once, so there's nothing to deduplicate against yet.
func (m *Memory) internReserved(name string, value oop.Ref) {
	sym := m.AllocCString(name)
	m.DictInsert(m.Symbols, StringHash(name), sym, value)
	m.reserved[name] = value
}

// Reserved returns a defensive copy of the names bootstrapped directly by
// NewMemory, for diagnostics (e.g. an image writer sanity-checking its
// header against what booted). Callers mutating the result never affect m.
func (m *Memory) Reserved() map[string]oop.Ref {
	return maps.Clone(m.reserved)
}

// Intern returns the Symbol object for name, allocating and installing a
// new one in the symbols table on first use, and returning the existing
// Symbol on every subsequent call (so two Intern calls for the same text
// are Ref-identical, matching §4.3 / globalKey's purpose: make selector and
// literal comparison a pointer comparison instead of a byte comparison).
func (m *Memory) Intern(name string) oop.Ref {
	existing := m.DictLookupKey(m.Symbols, StringHash(name), func(k oop.Ref) bool {
		return m.CString(k) == name
	})
	if !oop.IsNil(existing) {
		return existing
	}
	sym := m.AllocCString(name)
	m.DictInsert(m.Symbols, StringHash(name), sym, oop.Nil)
	return sym
}

// Global looks up name in the symbols table and returns its bound value,
// or oop.Nil if name has never been bound (the source's globalValue macro).
func (m *Memory) Global(name string) oop.Ref {
	return m.LookupString(m.Symbols, name)
}

// SetGlobal binds name to value in the symbols table, creating or reusing
// name's Symbol as needed.
func (m *Memory) SetGlobal(name string, value oop.Ref) {
	sym := m.Intern(name)
	m.DictInsert(m.Symbols, StringHash(name), sym, value)
}
