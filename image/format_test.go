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

package image

import (
	"bytes"
	"testing"

	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

func buildSampleMemory() *objmem.Memory {
	mem := objmem.NewMemory(128)
	greeting := mem.AllocCString("hello, image")
	pair := mem.AllocRef(2)
	mem.SetField(pair, 1, greeting)
	mem.SetField(pair, 2, oop.SmallInt(42))
	mem.SetGlobal("Sample", pair)
	return mem
}

func TestWriteReadRoundTrip(t *testing.T) {
	mem := buildSampleMemory()

	var buf bytes.Buffer
	if err := Write(mem, &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if loaded.Table.Cap() != mem.Table.Cap() {
		t.Fatalf("Cap mismatch: got %d, want %d", loaded.Table.Cap(), mem.Table.Cap())
	}

	pair := loaded.Global("Sample")
	if oop.IsNil(pair) {
		t.Fatalf("Sample global missing after reload")
	}
	greeting := loaded.Field(pair, 1)
	if loaded.CString(greeting) != "hello, image" {
		t.Fatalf("greeting field: got %q", loaded.CString(greeting))
	}
	answer := loaded.Field(pair, 2)
	if !answer.IsSmallInt() || answer.Int() != 42 {
		t.Fatalf("answer field: got %v", answer)
	}

	// Every index the original table still has on its free list must come
	// back as available after rebuild, proving RebuildFreeList ran.
	for i := int32(1); i < int32(loaded.Table.Cap()); i++ {
		want := mem.Table.At(i).Avail
		got := loaded.Table.At(i).Avail
		if want != got {
			t.Fatalf("index %d availability mismatch: got %v, want %v", i, got, want)
		}
	}
}

func TestWriteReadCompressedRoundTrip(t *testing.T) {
	mem := buildSampleMemory()

	var buf bytes.Buffer
	if err := WriteCompressed(mem, &buf); err != nil {
		t.Fatalf("WriteCompressed: %v", err)
	}

	loaded, err := ReadCompressed(&buf)
	if err != nil {
		t.Fatalf("ReadCompressed: %v", err)
	}

	pair := loaded.Global("Sample")
	if oop.IsNil(pair) {
		t.Fatalf("Sample global missing after compressed reload")
	}
	if got := loaded.CString(loaded.Field(pair, 1)); got != "hello, image" {
		t.Fatalf("greeting field: got %q", got)
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	mem := buildSampleMemory()
	var buf bytes.Buffer
	if err := Write(mem, &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data := buf.Bytes()

	sidePath := t.TempDir() + "/snapshot.b2"
	if err := WriteChecksumFile(sidePath, data); err != nil {
		t.Fatalf("WriteChecksumFile: %v", err)
	}
	if err := VerifyChecksumFile(sidePath, data); err != nil {
		t.Fatalf("VerifyChecksumFile on untouched data: %v", err)
	}

	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)-1] ^= 0xff
	if err := VerifyChecksumFile(sidePath, corrupted); err == nil {
		t.Fatalf("VerifyChecksumFile did not detect corruption")
	}
}
