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

func TestStringHashNonNegative(t *testing.T) {
	cases := []string{"", "a", "nil", "printString", "a very much longer selector name than usual"}
	for _, c := range cases {
		h := StringHash(c)
		if h < 0 {
			t.Fatalf("StringHash(%q) = %d, want non-negative", c, h)
		}
	}
}

func TestInternIdempotent(t *testing.T) {
	m := NewMemory(256)
	a := m.Intern("foo")
	b := m.Intern("foo")
	if !a.Equal(b) {
		t.Fatalf("Intern(%q) not idempotent: %v != %v", "foo", a, b)
	}
	c := m.Intern("bar")
	if a.Equal(c) {
		t.Fatalf("Intern(%q) and Intern(%q) collided", "foo", "bar")
	}
}

func TestGlobalSetAndLookup(t *testing.T) {
	m := NewMemory(256)
	if got := m.Global("Transcript"); !oop.IsNil(got) {
		t.Fatalf("Global(%q) before SetGlobal = %v, want nil", "Transcript", got)
	}
	v := m.AllocRef(0)
	m.SetGlobal("Transcript", v)
	if got := m.Global("Transcript"); !got.Equal(v) {
		t.Fatalf("Global(%q) = %v, want %v", "Transcript", got, v)
	}
}

func TestDictInsertChaining(t *testing.T) {
	m := NewMemory(256)
	dict := m.NewDictionary(1) // a single bucket forces every insert to chain
	keys := []string{"abc", "def", "ghi", "jkl", "mno"}
	for _, k := range keys {
		sym := m.AllocCString(k)
		m.InsertString(dict, sym, m.AllocRef(0))
	}
	for _, k := range keys {
		got := m.LookupString(dict, k)
		if oop.IsNil(got) {
			t.Fatalf("LookupString(%q) = nil after insert", k)
		}
	}
	if got := m.LookupString(dict, "missing"); !oop.IsNil(got) {
		t.Fatalf("LookupString(%q) = %v, want nil", "missing", got)
	}
}

func TestDictInsertReplacesExistingKey(t *testing.T) {
	m := NewMemory(256)
	dict := m.NewDictionary(1)
	sym := m.AllocCString("count")
	first := m.AllocRef(0)
	second := m.AllocRef(0)
	m.DictInsert(dict, StringHash("count"), sym, first)
	m.DictInsert(dict, StringHash("count"), sym, second)
	if got := m.LookupString(dict, "count"); !got.Equal(second) {
		t.Fatalf("LookupString after re-insert = %v, want %v", got, second)
	}
}
