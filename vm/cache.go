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

package vm

import (
	"encoding/binary"

	"github.com/dchest/siphash"

	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// cacheSlots is the method cache's table size (§4.7, §9: an arbitrary
// prime, not re-derived).
const cacheSlots = 211

// cacheEntry mirrors one lookup result: the selector and lookup class that
// produced it (so a hit can confirm it's not a hash collision against an
// unrelated pair), plus the class the defining method actually lives on
// and the method itself.
type cacheEntry struct {
	valid         bool
	selector      oop.Ref
	lookupClass   oop.Ref
	definingClass oop.Ref
	method        oop.Ref
}

// methodCache is keyed by (selector, receiver class) hashed with siphash,
// the same hash family the teacher uses for its own lookup structures
// (vm/interphash.go's siphash.Hash128), repurposed here as a cheap
// general-purpose Oop-pair hash rather than for bulk vector hashing.
type methodCache struct {
	slots [cacheSlots]cacheEntry
}

func cacheKey(selector, class oop.Ref) int {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(refRaw(selector)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(refRaw(class)))
	lo, _ := siphash.Hash128(0, 0, buf[:])
	return int(lo % cacheSlots)
}

// refRaw packs a Ref into a hashable 32-bit word without caring whether
// it's a SmallInt or an Oop -- selectors and classes are always Oops in
// practice, but nothing here depends on that.
func refRaw(r oop.Ref) int32 {
	if r.IsSmallInt() {
		return int32(r.Int())
	}
	return r.Index()
}

func (c *methodCache) lookup(selector, class oop.Ref) (definingClass, method oop.Ref, ok bool) {
	e := &c.slots[cacheKey(selector, class)]
	if e.valid && e.selector == selector && e.lookupClass == class {
		return e.definingClass, e.method, true
	}
	return oop.Nil, oop.Nil, false
}

func (c *methodCache) install(selector, class, definingClass, method oop.Ref) {
	c.slots[cacheKey(selector, class)] = cacheEntry{
		valid:         true,
		selector:      selector,
		lookupClass:   class,
		definingClass: definingClass,
		method:        method,
	}
}

// flush invalidates every slot whose selector matches sym (§4.7: "any
// mutation of a class's method dictionary flushes every cache slot
// mentioning that selector"). A full scan is cheap at 211 slots and avoids
// tracking reverse selector->slot indexes for a table this small.
func (c *methodCache) flush(selector oop.Ref) {
	for i := range c.slots {
		if c.slots[i].valid && c.slots[i].selector == selector {
			c.slots[i] = cacheEntry{}
		}
	}
}

// flushAll drops every cached entry (primitive PrimFlushCache, §4.8).
func (c *methodCache) flushAll() {
	*c = methodCache{}
}
