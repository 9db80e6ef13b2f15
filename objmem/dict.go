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

// StringHash is the bootstrap string hash (§4.3): sum of the string's bytes
// (as signed 8-bit values, matching a plain `char` accumulator), folded
// non-negative, then right-shifted by 2 once it no longer fits comfortably
// as a SmallInt index multiplier. Symbols hash by object-table index instead
// (SymbolHash below) once they're interned, since two different spellings
// never collide and recomputing the byte sum would be wasted work.
func StringHash(s string) int64 {
	var hash int32
	for i := 0; i < len(s); i++ {
		hash += int32(int8(s[i]))
	}
	if hash < 0 {
		hash = -hash
	}
	if hash > 16384 {
		hash >>= 2
	}
	return int64(hash)
}

// SymbolHash hashes an already-interned Symbol by its object-table index.
func SymbolHash(sym oop.Ref) int64 {
	return int64(sym.Index())
}

// bucketsOf returns the backing Array of a Dictionary.
func (m *Memory) bucketsOf(dict oop.Ref) oop.Ref {
	return m.Field(dict, DictionaryTable)
}

// NewDictionary allocates a Dictionary over a fresh bucket Array sized to
// hold nBuckets (key, value, link) triples.
func (m *Memory) NewDictionary(nBuckets int) oop.Ref {
	table := m.AllocRef(nBuckets * 3)
	dict := m.AllocRef(DictionaryShapeFields)
	m.SetField(dict, DictionaryTable, table)
	return dict
}

// DictLookup walks dict's hash bucket (and any overflow Link chain) starting
// at hash, returning the value whose key satisfies match, or oop.Nil if none
// does. This is a direct port of the source's hashEachElement: the bucket
// triple is checked first, then the Link chain hanging off its third slot.
func (m *Memory) DictLookup(dict oop.Ref, hash int64, match func(key oop.Ref) bool) oop.Ref {
	table := m.bucketsOf(dict)
	size := m.Count(table)
	if size < 3 {
		return oop.Nil
	}
	nBuckets := int64(size / 3)
	b := 3 * (hash % nBuckets)

	key := m.Field(table, int(b)+1)
	value := m.Field(table, int(b)+2)
	if !oop.IsNil(key) && match(key) {
		return value
	}
	for link := m.Field(table, int(b)+3); !oop.IsNil(link); link = m.Field(link, LinkNext) {
		key = m.Field(link, LinkKey)
		value = m.Field(link, LinkValue)
		if !oop.IsNil(key) && match(key) {
			return value
		}
	}
	return oop.Nil
}

// DictLookupKey is DictLookup's counterpart for callers that need the
// matched key itself rather than its bound value (Intern: a name already
// has a Symbol in the table even while that Symbol's own binding is still
// nil, so testing the looked-up value for nil is not the same question as
// testing whether the key exists).
func (m *Memory) DictLookupKey(dict oop.Ref, hash int64, match func(key oop.Ref) bool) oop.Ref {
	table := m.bucketsOf(dict)
	size := m.Count(table)
	if size < 3 {
		return oop.Nil
	}
	nBuckets := int64(size / 3)
	b := 3 * (hash % nBuckets)

	key := m.Field(table, int(b)+1)
	if !oop.IsNil(key) && match(key) {
		return key
	}
	for link := m.Field(table, int(b)+3); !oop.IsNil(link); link = m.Field(link, LinkNext) {
		key = m.Field(link, LinkKey)
		if !oop.IsNil(key) && match(key) {
			return key
		}
	}
	return oop.Nil
}

// DictInsert inserts (key, value) into dict at the given hash, replacing an
// existing entry whose key is Ref-identical to key (the "key" comparison in
// the original is strict object identity, relying on Symbols being
// interned), or appending a new Link onto the bucket's chain. Ported from
// the source's nameTableInsert.
func (m *Memory) DictInsert(dict oop.Ref, hash int64, key, value oop.Ref) {
	table := m.bucketsOf(dict)
	size := m.Count(table)
	if size < 3 {
		panic("objmem: insert into too-small name table")
	}
	nBuckets := int64(size / 3)
	b := 3 * (hash % nBuckets)

	slotKey := m.Field(table, int(b)+1)
	if oop.IsNil(slotKey) || slotKey.Equal(key) {
		m.SetField(table, int(b)+1, key)
		m.SetField(table, int(b)+2, value)
		return
	}

	newLink := m.newLink(key, value)
	link := m.Field(table, int(b)+3)
	if oop.IsNil(link) {
		m.SetField(table, int(b)+3, newLink)
		return
	}
	for {
		if m.Field(link, LinkKey).Equal(key) {
			// The freshly allocated Link goes unused; it has no other
			// references so it is collected on the next GC pass, but
			// drop its volatile flag now rather than leave a live root
			// pinning it needlessly until then.
			m.Table.At(newLink.Index()).Volatile = false
			m.SetField(link, LinkValue, value)
			return
		}
		next := m.Field(link, LinkNext)
		if oop.IsNil(next) {
			m.SetField(link, LinkNext, newLink)
			return
		}
		link = next
	}
}

// newLink allocates a (key, value, nil) chain node, tagged with LinkClass if
// the bootstrap has set one (it is left nil otherwise; nothing depends on a
// Link's class besides printing/introspection primitives).
func (m *Memory) newLink(key, value oop.Ref) oop.Ref {
	link := m.AllocRef(LinkShapeFields)
	m.SetField(link, LinkKey, key)
	m.SetField(link, LinkValue, value)
	m.SetField(link, LinkNext, oop.Nil)
	if !oop.IsNil(m.LinkClass) {
		m.SetClass(link, m.LinkClass)
	}
	return link
}

// LookupString looks up str in dict by string-hashing and comparing the
// stored key's bytes against str (the source's strTest: pointer identity is
// tried first via the dict's own global-symbol cache, but the generic path
// compares bytes since a Dictionary can hold String as well as Symbol keys).
func (m *Memory) LookupString(dict oop.Ref, str string) oop.Ref {
	return m.DictLookup(dict, StringHash(str), func(k oop.Ref) bool {
		return m.CString(k) == str
	})
}

// InsertString is the string-keyed convenience wrapper around DictInsert.
func (m *Memory) InsertString(dict oop.Ref, key oop.Ref, value oop.Ref) {
	m.DictInsert(dict, StringHash(m.CString(key)), key, value)
}
