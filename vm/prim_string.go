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
	"os/exec"

	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// newString builds a fresh String object (a NUL-terminated byte buffer
// tagged with the bootstrapped "String" class), mirroring
// original_source/pdst.c's newString -- every primitive here that
// fabricates a String answers through this, not raw AllocCString, so the
// class tag is never forgotten.
func (ip *Interp) newString(text string) oop.Ref {
	r := ip.Mem.AllocCString(text)
	if class := ip.Mem.Global("String"); !oop.IsNil(class) {
		ip.Mem.SetClass(r, class)
	}
	return r
}

// primStringCat is String>>, -- concatenation.
func primStringCat(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 2 || args[0].IsSmallInt() || args[1].IsSmallInt() {
		return oop.Nil, false
	}
	return ip.newString(ip.Mem.CString(args[0]) + ip.Mem.CString(args[1])), true
}

// primStringSize is String>>size (the NUL-terminated length, not the raw
// allocation size which includes the terminator).
func primStringSize(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 1 || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	return oop.SmallInt(int64(len(ip.Mem.CString(args[0])))), true
}

// primStringHash backs both String>>hash and Symbol>>stringHash.
func primStringHash(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 1 || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	return oop.SmallInt(objmem.StringHash(ip.Mem.CString(args[0]))), true
}

// primAsSymbol is String>>asSymbol: intern the receiver's text, answering
// the canonical Symbol Ref for it (Ref-identical across repeated interns).
func primAsSymbol(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 1 || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	return ip.Mem.Intern(ip.Mem.CString(args[0])), true
}

// primCopyFromTo is String>>copyFrom:to:, 1-based inclusive, clamped to the
// receiver's bounds exactly as original_source/pdst.c's primCopyFromTo
// clamps rather than fails on a partially out-of-range request.
func primCopyFromTo(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	pos1, ok1 := smallIntArg(args, 1)
	pos2, ok2 := smallIntArg(args, 2)
	if !ok1 || !ok2 || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	src := ip.Mem.CString(args[0])
	n := int64(len(src))
	req := pos2 + 1 - pos1
	var act int64
	if pos1 >= 1 && pos1 <= n && req >= 1 {
		avail := n - (pos1 - 1)
		if req < avail {
			act = req
		} else {
			act = avail
		}
	}
	if act == 0 {
		return ip.newString(""), true
	}
	return ip.newString(src[pos1-1 : pos1-1+act]), true
}

// primSymbolAssign is Symbol>>assign:, binding the receiver symbol to a
// global value directly in the symbols table (original_source/pdst.c's
// primSymbolAssign calls nameTableInsert(symbols, ...) rather than going
// through newSymbol, since the receiver is already an interned Symbol).
func primSymbolAssign(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 2 || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	ip.Mem.DictInsert(ip.Mem.Symbols, objmem.StringHash(ip.Mem.CString(args[0])), args[0], args[1])
	return args[0], true
}

// primGlobalValue is Symbol>>value: the value currently bound to the
// receiver's text in the symbols table, or nil if unbound.
func primGlobalValue(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 1 || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	return ip.Mem.Global(ip.Mem.CString(args[0])), true
}

// primHostCommand is String>>unixCommand: pass the receiver's text to the
// host shell, answering its exit status (original_source/pdst.c hands the
// text straight to system(3); we go through /bin/sh -c for the same
// shell-expansion behavior rather than exec'ing the string as argv[0]).
func primHostCommand(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 1 || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	cmd := exec.Command("/bin/sh", "-c", ip.Mem.CString(args[0]))
	status := 0
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			status = exitErr.ExitCode()
		} else {
			status = -1
		}
	}
	return oop.SmallInt(int64(status)), true
}
