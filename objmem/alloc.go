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

	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// ExhaustionError is raised when the free list is still empty after a full
// collection. Per §7 this is fatal: the host program aborts with a
// diagnostic rather than trying to recover.
type ExhaustionError struct {
	Requested int
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("objmem: allocator exhausted (requested %d bytes, no free slots after full GC)", e.Requested)
}

// reserve obtains a free slot, running first a minor then (if that still
// doesn't yield room) a full collection when the free list is empty, per
// §4.1/§4.2. It panics with *ExhaustionError if both collections fail to
// produce a free slot -- the one designed-in abort path in this package.
func (m *Memory) reserve(n int) int32 {
	if idx, ok := m.Table.popFree(); ok {
		return idx
	}
	m.Collect(false)
	if idx, ok := m.Table.popFree(); ok {
		return idx
	}
	m.Collect(true)
	if idx, ok := m.Table.popFree(); ok {
		return idx
	}
	panic(&ExhaustionError{Requested: n})
}

// allocRaw installs buf/scale/hasRefs metadata into a freshly reserved slot
// and returns its Oop. class is left nil; callers patch it in themselves,
// as §4.1 specifies ("Callers patch class after").
func (m *Memory) allocRaw(buf []byte, scale Scale, hasRefs bool) oop.Ref {
	idx := m.reserve(len(buf))
	e := m.Table.At(idx)
	e.Buf = buf
	e.Scale = scale
	e.HasRefs = hasRefs
	e.Class = oop.Nil
	e.Volatile = true
	e.Avail = false
	e.Marked = false
	return oop.Oop(idx)
}

// AllocRef allocates n reference fields, zeroed to nil.
func (m *Memory) AllocRef(n int) oop.Ref {
	buf := m.Arena.Alloc(n * ScaleWord.ElementSize())
	r := m.allocRaw(buf, ScaleWord, true)
	for i := 0; i < n; i++ {
		m.RawPutRef(r, i, oop.Nil)
	}
	return r
}

// AllocByte allocates a raw byte buffer of n elements.
func (m *Memory) AllocByte(n int) oop.Ref {
	return m.allocRaw(m.Arena.Alloc(n), ScaleByte, false)
}

// AllocHalfword allocates a raw buffer of n 2-byte elements.
func (m *Memory) AllocHalfword(n int) oop.Ref {
	return m.allocRaw(m.Arena.Alloc(n*ScaleHalfword.ElementSize()), ScaleHalfword, false)
}

// AllocWord allocates a raw buffer of n word-sized (non-ref) elements.
func (m *Memory) AllocWord(n int) oop.Ref {
	return m.allocRaw(m.Arena.Alloc(n*ScaleWord.ElementSize()), ScaleWord, false)
}

// AllocCString allocates a NUL-terminated byte buffer holding s.
func (m *Memory) AllocCString(s string) oop.Ref {
	buf := m.Arena.Alloc(len(s) + 1)
	copy(buf, s)
	return m.allocRaw(buf, ScaleByte, false)
}

// SetClass patches the class field of a freshly allocated object, exactly
// matching the allocate-then-patch discipline of §4.1.
func (m *Memory) SetClass(r oop.Ref, class oop.Ref) {
	m.Table.At(r.Index()).Class = class
}

// ---- write discipline (§4.1) ----

// RawPutRef writes a reference-typed element directly into host memory
// (the element buffer), the path used during interpreter execution. It
// does NOT clear the stored value's volatile flag, so a later collection
// must still treat it as a root if it was volatile.
func (m *Memory) RawPutRef(r oop.Ref, i int, v oop.Ref) {
	e := m.Table.At(r.Index())
	putRefAt(e.Buf, i, v)
}

// StoreRef writes a reference-typed element through the object-table write
// path: it clears the stored Oop's volatile flag, proving the write itself
// demonstrates a traced path to that object (§4.1). Smalltalk-visible
// "become"/instance-variable assignment in the interpreter (AssignInstance,
// basicAt:put: on a ref object, Dictionary insertion, etc.) always goes
// through this, never RawPutRef.
func (m *Memory) StoreRef(r oop.Ref, i int, v oop.Ref) {
	m.RawPutRef(r, i, v)
	if v.IsOop() && v.Index() != 0 {
		m.Table.At(v.Index()).Volatile = false
	}
}

// GetRef reads a reference-typed element.
func (m *Memory) GetRef(r oop.Ref, i int) oop.Ref {
	e := m.Table.At(r.Index())
	return refAt(e.Buf, i)
}

// A ref-typed element is exactly one machine word (4 bytes, scale=2),
// matching §3's "one machine word" reference encoding: the top bit is the
// tag (0 = SmallInt, 1 = Oop) and the low 31 bits are the payload, the same
// split the original encVal bitfield used. The encoding is done by the free
// functions encodeRef/decodeRef (not methods), exported as EncodeRef/DecodeRef
// so the image package can use byte-identical encode/decode without going
// through a Memory.
const (
	refTagBit     = uint32(1) << 31
	refPayloadMsk = refTagBit - 1
	refSignBit    = uint32(1) << 30
)

// EncodeRef and DecodeRef expose the wire encoding to callers outside this
// package (the image writer/reader) that need byte-identical reference
// encoding without going through a live Memory.
func EncodeRef(v oop.Ref) uint32 { return encodeRef(v) }
func DecodeRef(w uint32) oop.Ref { return decodeRef(w) }

func encodeRef(v oop.Ref) uint32 {
	if v.IsSmallInt() {
		return uint32(int32(v.Int())) & refPayloadMsk
	}
	return refTagBit | (uint32(v.Index()) & refPayloadMsk)
}

func decodeRef(w uint32) oop.Ref {
	if w&refTagBit != 0 {
		return oop.Oop(int32(w & refPayloadMsk))
	}
	p := w & refPayloadMsk
	if p&refSignBit != 0 {
		p |= refTagBit // sign-extend the 31-bit payload into a full int32
	}
	return oop.SmallInt(int64(int32(p)))
}

func refAt(buf []byte, i int) oop.Ref {
	off := i * 4
	w := uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
	return decodeRef(w)
}

func putRefAt(buf []byte, i int, v oop.Ref) {
	off := i * 4
	w := encodeRef(v)
	buf[off] = byte(w)
	buf[off+1] = byte(w >> 8)
	buf[off+2] = byte(w >> 16)
	buf[off+3] = byte(w >> 24)
}
