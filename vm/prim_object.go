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
	"log"
	"math/rand"

	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// primAvailCount logs the current object-table free count to stderr and
// always answers nil, matching §4.8's diagnostic-only primitive 2.
func primAvailCount(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	log.Printf("vm: free object slots: %d", ip.Mem.Table.FreeCount())
	return oop.Nil, true
}

// primRandom answers a non-negative pseudo-random SmallInt (§4.8: "the
// intent, not the native width, is what must be preserved" -- we use
// math/rand rather than the original's 15-bit rand()>>9 scheme).
func primRandom(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	return oop.SmallInt(int64(rand.Int31() & 0x7fff)), true
}

// primFlipWatching toggles the interpreter-wide watching flag and answers
// its new value (§4.8 primitive 5; original_source/pdst.c's "watching =
// !watching"). With watching on, dispatchSend diverts any send whose
// resolved method carries a non-nil watch field to #watchWith: against the
// method itself (§4.6) instead of running it.
func primFlipWatching(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	ip.watching = !ip.watching
	return oop.Bool(ip.watching), true
}

func primExit(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	return oop.Nil, false
}

func primClass(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 1 {
		return oop.Nil, false
	}
	return ip.receiverClass(args[0]), true
}

// primSize answers the receiver's own element count, 0 for a SmallInt.
func primSize(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 1 {
		return oop.Nil, false
	}
	if args[0].IsSmallInt() {
		return oop.SmallInt(0), true
	}
	return oop.SmallInt(int64(ip.Mem.Count(args[0]))), true
}

// primHash answers a SmallInt's own value, or an Oop's object-table index
// for anything else (§4.8: hash must be cheap and stable across a GC
// compaction-free table, so the index itself suffices).
func primHash(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 1 {
		return oop.Nil, false
	}
	if args[0].IsSmallInt() {
		return args[0], true
	}
	return oop.SmallInt(int64(args[0].Index())), true
}

// primIdent is Object>>== : reference identity, not value equality.
func primIdent(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 2 {
		return oop.Nil, false
	}
	return oop.Bool(args[0] == args[1]), true
}

// primClassOfPut retags the receiver's class in place and answers the
// receiver, used by the bootstrap whenever a generic allocation (from
// primAllocOrefObj/primAllocByteObj) needs a real class attached.
func primClassOfPut(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 2 || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	ip.Mem.SetClass(args[0], args[1])
	return args[0], true
}

// primBasicAt is Object>>basicAt: -- 1-based, bounds-checked, nil on any
// failure (including against a SmallInt or ByteArray receiver, which have
// no ref-typed slots basicAt: can see).
func primBasicAt(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	i, ok := smallIntArg(args, 1)
	if !ok || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	if !ip.Mem.Table.At(args[0].Index()).HasRefs {
		return oop.Nil, false
	}
	n := int64(ip.Mem.Count(args[0]))
	if i < 1 || i > n {
		return oop.Nil, false
	}
	return ip.Mem.Field(args[0], int(i)), true
}

// primByteAt is ByteArray>>basicAt:, 1-based.
func primByteAt(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	i, ok := smallIntArg(args, 1)
	if !ok || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	n := int64(ip.Mem.Count(args[0]))
	if i < 1 || i > n {
		return oop.Nil, false
	}
	return oop.SmallInt(int64(ip.Mem.ByteAt(args[0], int(i)))), true
}

// primBasicAtPut is Object>>basicAt:put:.
func primBasicAtPut(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	i, ok := smallIntArg(args, 1)
	if !ok || len(args) < 3 || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	if !ip.Mem.Table.At(args[0].Index()).HasRefs {
		return oop.Nil, false
	}
	n := int64(ip.Mem.Count(args[0]))
	if i < 1 || i > n {
		return oop.Nil, false
	}
	ip.Mem.SetField(args[0], int(i), args[2])
	return args[0], true
}

// primByteAtPut is ByteArray>>basicAt:put:.
func primByteAtPut(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	i, ok1 := smallIntArg(args, 1)
	v, ok2 := smallIntArg(args, 2)
	if !ok1 || !ok2 || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	n := int64(ip.Mem.Count(args[0]))
	if i < 1 || i > n {
		return oop.Nil, false
	}
	ip.Mem.ByteAtPut(args[0], int(i), byte(v))
	return args[0], true
}

// primAllocOrefObj is Class>>new:'s workhorse: a fresh Array of n
// reference slots, class patched in by a following primClassOfPut (§4.8,
// mirroring original_source/pdst.c's two-step allocOrefObj/classOfPut).
func primAllocOrefObj(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	n, ok := smallIntArg(args, 0)
	if !ok || n < 0 {
		return oop.Nil, false
	}
	return ip.Mem.AllocRef(int(n)), true
}

// primAllocByteObj is ByteArray>>size:'s workhorse.
func primAllocByteObj(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	n, ok := smallIntArg(args, 0)
	if !ok || n < 0 {
		return oop.Nil, false
	}
	return ip.Mem.AllocByte(int(n)), true
}

// primError reports a fatal application-level error; unlike the source's
// primError (which asserts and aborts the whole process), we log and
// return the receiver so the caller can still produce a
// doesNotUnderstand-style diagnosis instead of taking the entire host
// process down.
func primError(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 1 {
		return oop.Nil, false
	}
	log.Printf("vm: error: %q", ip.Mem.CString(args[0]))
	return args[0], true
}

// primReclaim runs a collection, full when the receiver is true, minor
// when false.
func primReclaim(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 1 {
		return oop.Nil, false
	}
	if args[0] == oop.True {
		ip.Mem.Collect(true)
		return args[0], true
	}
	if args[0] == oop.False {
		ip.Mem.Collect(false)
		return args[0], true
	}
	return oop.Nil, false
}

// primSpecial is reserved for an embedding host (§9); this build has none.
func primSpecial(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	return oop.Nil, false
}
