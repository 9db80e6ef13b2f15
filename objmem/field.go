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

// Field reads the 1-based field index of a ref-object, matching the
// layout constants in shapes.go.
func (m *Memory) Field(r oop.Ref, field int) oop.Ref {
	return m.GetRef(r, field-1)
}

// SetField writes a 1-based field through the object-table write path
// (clears the stored value's volatile flag).
func (m *Memory) SetField(r oop.Ref, field int, v oop.Ref) {
	m.StoreRef(r, field-1, v)
}

// SetFieldRaw writes a 1-based field directly, without clearing volatile --
// for the interpreter's hot instance-variable/temporary stores, matching
// the source's distinction between orefOfPut (traced) and direct stack
// writes (§4.1).
func (m *Memory) SetFieldRaw(r oop.Ref, field int, v oop.Ref) {
	m.RawPutRef(r, field-1, v)
}

// Count returns the element count of r's buffer.
func (m *Memory) Count(r oop.Ref) int {
	return m.Table.At(r.Index()).Count()
}

// ByteAt/ByteAtPut give 1-based access to a byte buffer.
func (m *Memory) ByteAt(r oop.Ref, i int) byte {
	return m.Table.At(r.Index()).Buf[i-1]
}

func (m *Memory) ByteAtPut(r oop.Ref, i int, v byte) {
	m.Table.At(r.Index()).Buf[i-1] = v
}

// Bytes returns the raw byte buffer of r (used for String/Symbol/ByteArray
// access and for Float's native-double storage).
func (m *Memory) Bytes(r oop.Ref) []byte {
	return m.Table.At(r.Index()).Buf
}

// CString returns the NUL-terminated text of a String/Symbol object as a
// Go string, deriving length from size_bytes-1 (§9 Open Questions: we do
// not keep a redundant separate length).
func (m *Memory) CString(r oop.Ref) string {
	buf := m.Bytes(r)
	if len(buf) == 0 {
		return ""
	}
	return string(buf[:len(buf)-1])
}

// ClassOf returns the class field of r, or oop.Nil for a SmallInt (which
// has no object-table slot of its own; callers needing SmallInteger's
// class look it up by name instead).
func (m *Memory) ClassOf(r oop.Ref) oop.Ref {
	if r.IsSmallInt() {
		return oop.Nil
	}
	return m.Table.At(r.Index()).Class
}
