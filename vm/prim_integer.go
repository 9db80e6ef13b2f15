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
	"github.com/ZYSF/Smalltalk-Archive/compile"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// smallIntSelectors maps the binary/keyword selectors SmallInteger
// responds to onto the primitive numbers that implement them
// (original_source/pdst.c's binStrs table: "+","-","<",">","<=",">=","=",
// "~=","*","quo:","rem:","bitAnd:","bitXor:", plus "bitShift:" which isn't
// special-cased by the lexer there but is an ordinary keyword selector).
// There is no shipped SmallInteger class with real compiled methods for
// these (§9: no kernel class library in source form), so dispatchSend
// recognizes them directly the same way it recognizes Block's value
// family -- see tryBlockValue's doc comment for the parallel reasoning.
var smallIntSelectors = map[string]int{
	"+":         compile.PrimAdd,
	"-":         compile.PrimSubtract,
	"<":         compile.PrimLessThan,
	">":         compile.PrimGreaterThan,
	"<=":        compile.PrimLessOrEqual,
	">=":        compile.PrimGreaterOrEqual,
	"=":         compile.PrimEqual,
	"~=":        compile.PrimNotEqual,
	"*":         compile.PrimMultiply,
	"quo:":      compile.PrimQuotient,
	"rem:":      compile.PrimRemainder,
	"bitAnd:":   compile.PrimBitAnd,
	"bitXor:":   compile.PrimBitXor,
	"bitShift:": compile.PrimBitShift,
}

// trySmallIntArithmetic intercepts a binary/keyword send whose receiver is
// a SmallInteger and whose selector names one of the primitives above,
// running it immediately rather than falling through to a class lookup
// that would never find anything. A selector or argument count it doesn't
// recognize returns handled=false so dispatchSend proceeds normally (e.g.
// SmallInteger>>printString, sent with zero arguments, still goes through
// doesNotUnderstand since nothing here or in any method dictionary answers
// it -- a known, documented gap of the kernel-free build, see DESIGN.md).
func (ip *Interp) trySmallIntArithmetic(s *State, class, selector, receiver oop.Ref, nargsPlus1 int) (bool, error) {
	if !receiver.IsSmallInt() || nargsPlus1 != 2 {
		return false, nil
	}
	primNumber, ok := smallIntSelectors[ip.Mem.CString(selector)]
	if !ok {
		return false, nil
	}
	arg := ip.Mem.GetRef(s.Stack, s.Top-1)
	result, _ := ip.prims[primNumber](ip, s, []oop.Ref{receiver, arg})
	s.Top -= nargsPlus1
	s.push(ip.Mem, result)
	return true, nil
}

// SmallInteger arithmetic and comparisons (§4.8, primitives 60-79): every
// one fails to nil rather than panicking when an argument isn't itself a
// SmallInt (original_source/pdst.c's isIndex(arg[n]) guard) -- callers
// compiling Integer>>+ etc. rely on that nil to fall back into
// LargeInteger code; ours has no such fallback (§9), so the nil simply
// propagates as the send's result, per DESIGN.md's overflow-fallback note.

func primAdd(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return embedOrNil(a + b)
}

func primSubtract(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return embedOrNil(a - b)
}

func primMultiply(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return embedOrNil(a * b)
}

func primQuotient(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB || b == 0 {
		return oop.Nil, false
	}
	return embedOrNil(a / b)
}

func primRemainder(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB || b == 0 {
		return oop.Nil, false
	}
	return embedOrNil(a % b)
}

func primBitAnd(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return embedOrNil(a & b)
}

func primBitXor(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return embedOrNil(a ^ b)
}

// primBitShift shifts left for a positive argument, right for negative
// (§4.8), truncating the result to the embeddable range rather than
// failing on overflow (matching original_source/pdst.c's primBitShift,
// which never nil-checks canEmbed on its own output).
func primBitShift(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	var r int64
	if b < 0 {
		r = a >> uint(-b)
	} else {
		r = a << uint(b)
	}
	return oop.SmallInt((r << 33) >> 33), true
}

func primLessThan(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return oop.Bool(a < b), true
}

func primGreaterThan(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return oop.Bool(a > b), true
}

func primLessOrEqual(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return oop.Bool(a <= b), true
}

func primGreaterOrEqual(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return oop.Bool(a >= b), true
}

func primEqual(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return oop.Bool(a == b), true
}

func primNotEqual(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := smallIntArg(args, 0)
	b, okB := smallIntArg(args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return oop.Bool(a != b), true
}

// primAsFloat is Integer>>asFloat.
func primAsFloat(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, ok := smallIntArg(args, 0)
	if !ok {
		return oop.Nil, false
	}
	return ip.Mem.NewFloat(float64(a)), true
}

// embedOrNil is the shared "canEmbed" check every arithmetic primitive
// above needs before answering its own result (§4.8 overflow -> nil).
func embedOrNil(v int64) (oop.Ref, bool) {
	if !oop.CanEmbed(v) {
		return oop.Nil, false
	}
	return oop.SmallInt(v), true
}
