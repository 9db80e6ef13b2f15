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

// Package image reads and writes the binary snapshot of an object memory:
// a version header, a table capacity, and then one record per live
// object-table slot in ascending index order, ending at EOF. It is a direct
// port of original_source/pdst.c's imageWrite/imageRead (its per-object
// record shape: ordinal index, table metadata minus the raw memory address,
// size+class, raw buffer bytes), adapted to a self-describing stream since
// Go's object table isn't a fixed-size array the host already sized before
// the read begins.
package image

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// version is the image format's own version tag, carried as a SmallInt the
// same way original_source/pdst.c writes encValueOf(3) first and checks it
// on read.
const version = 3

// flag bits packed into the one metadata byte each record carries (Scale
// gets its own byte since it's a 2-bit enum, not worth packing further).
const (
	flagHasRefs  = 1 << 0
	flagMarked   = 1 << 1
	flagVolatile = 1 << 2
)

func writeRef(w io.Writer, r oop.Ref) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], objmem.EncodeRef(r))
	_, err := w.Write(buf[:])
	return err
}

// readRef reads one encoded reference. It reports io.EOF only when zero
// bytes were read before the stream ended (a clean record boundary); any
// other read failure, including a short read, is reported as an error
// rather than silently treated as EOF, so a truncated image is never
// mistaken for a complete one.
func readRef(r io.Reader) (oop.Ref, error) {
	var buf [4]byte
	n, err := io.ReadFull(r, buf[:])
	if n == 0 && err == io.EOF {
		return oop.Nil, io.EOF
	}
	if err != nil {
		return oop.Nil, fmt.Errorf("image: reading reference: %w", err)
	}
	return objmem.DecodeRef(binary.LittleEndian.Uint32(buf[:])), nil
}

// Write serializes mem's entire object table to w (§4.9). Index 0, the
// free-list sentinel, and every slot still on the free list are skipped;
// everything else is written in ascending index order.
func Write(mem *objmem.Memory, w io.Writer) error {
	if err := writeRef(w, oop.SmallInt(version)); err != nil {
		return fmt.Errorf("image: writing version header: %w", err)
	}
	cap := mem.Table.Cap()
	var capBuf [4]byte
	binary.LittleEndian.PutUint32(capBuf[:], uint32(cap))
	if _, err := w.Write(capBuf[:]); err != nil {
		return fmt.Errorf("image: writing table capacity: %w", err)
	}

	for i := int32(1); i < int32(cap); i++ {
		e := mem.Table.At(i)
		if e.Avail {
			continue
		}
		if err := writeRef(w, oop.SmallInt(int64(i))); err != nil {
			return fmt.Errorf("image: writing index %d: %w", i, err)
		}
		var flags byte
		if e.HasRefs {
			flags |= flagHasRefs
		}
		if e.Marked {
			flags |= flagMarked
		}
		if e.Volatile {
			flags |= flagVolatile
		}
		if _, err := w.Write([]byte{flags, byte(e.Scale)}); err != nil {
			return fmt.Errorf("image: writing metadata for index %d: %w", i, err)
		}
		if err := writeRef(w, e.Class); err != nil {
			return fmt.Errorf("image: writing class for index %d: %w", i, err)
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.Buf)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("image: writing length for index %d: %w", i, err)
		}
		if len(e.Buf) > 0 {
			if _, err := w.Write(e.Buf); err != nil {
				return fmt.Errorf("image: writing buffer for index %d: %w", i, err)
			}
		}
	}
	return nil
}

// Read rebuilds a Memory from a stream produced by Write. Every index not
// seen in the stream is left on the free list (objmem.Table.RebuildFreeList
// re-threads it), exactly matching §4.9's "the reader rebuilds the free
// list by marking every index not seen as avail".
func Read(r io.Reader) (*objmem.Memory, error) {
	versionRef, err := readRef(r)
	if err != nil {
		return nil, fmt.Errorf("image: reading version header: %w", err)
	}
	if !versionRef.IsSmallInt() || versionRef.Int() != version {
		return nil, fmt.Errorf("image: unsupported version header %v", versionRef)
	}
	var capBuf [4]byte
	if _, err := io.ReadFull(r, capBuf[:]); err != nil {
		return nil, fmt.Errorf("image: reading table capacity: %w", err)
	}
	cap := int32(binary.LittleEndian.Uint32(capBuf[:]))
	if cap < 1 {
		return nil, fmt.Errorf("image: invalid table capacity %d", cap)
	}
	table := objmem.NewTable(cap - 1)

	for {
		indexRef, err := readRef(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !indexRef.IsSmallInt() {
			return nil, fmt.Errorf("image: corrupt record: index is not a SmallInt")
		}
		idx := int32(indexRef.Int())
		if idx < 1 || idx >= cap {
			return nil, fmt.Errorf("image: index %d out of range [1,%d)", idx, cap)
		}

		var meta [2]byte
		if _, err := io.ReadFull(r, meta[:]); err != nil {
			return nil, fmt.Errorf("image: reading metadata for index %d: %w", idx, err)
		}
		classRef, err := readRef(r)
		if err != nil {
			return nil, fmt.Errorf("image: reading class for index %d: %w", idx, err)
		}
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("image: reading length for index %d: %w", idx, err)
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		var buf []byte
		if n > 0 {
			buf = make([]byte, n)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("image: reading buffer for index %d: %w", idx, err)
			}
		}

		e := table.At(idx)
		e.Buf = buf
		e.Scale = objmem.Scale(meta[1])
		e.HasRefs = meta[0]&flagHasRefs != 0
		e.Marked = meta[0]&flagMarked != 0
		e.Volatile = meta[0]&flagVolatile != 0
		e.Avail = false
		e.Class = classRef
	}

	table.RebuildFreeList()
	return objmem.LoadMemory(table), nil
}
