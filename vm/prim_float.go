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
	"fmt"
	"math"

	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// floatArg reads args[i] as a Float object's native double, reporting
// failure for a SmallInt or anything shorter than 8 bytes rather than
// panicking (original_source/pdst.c's floatValue has no such guard -- it
// trusts the image to send these only to real Floats -- but a foreign
// embedder of this package shouldn't get to crash the process over it).
func floatArg(ip *Interp, args []oop.Ref, i int) (float64, bool) {
	if i >= len(args) || args[i].IsSmallInt() || len(ip.Mem.Bytes(args[i])) != 8 {
		return 0, false
	}
	return ip.Mem.FloatValue(args[i]), true
}

// primAsString is Float>>printString's primitive half.
func primAsString(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	v, ok := floatArg(ip, args, 0)
	if !ok {
		return oop.Nil, false
	}
	return ip.newString(fmt.Sprintf("%g", v)), true
}

func primNaturalLog(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	v, ok := floatArg(ip, args, 0)
	if !ok {
		return oop.Nil, false
	}
	return ip.Mem.NewFloat(math.Log(v)), true
}

func primERaisedTo(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	v, ok := floatArg(ip, args, 0)
	if !ok {
		return oop.Nil, false
	}
	return ip.Mem.NewFloat(math.Exp(v)), true
}

// primIntegerPart answers a two-element Array {n, m} such that the
// receiver equals n * 2**m, mirroring original_source/pdst.c's frexp/ldexp
// based primIntegerPart exactly (including its 12-bit mantissa window).
func primIntegerPart(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	const ndif = 12
	v, ok := floatArg(ip, args, 0)
	if !ok {
		return oop.Nil, false
	}
	frac, exp := math.Frexp(v)
	if exp >= 0 && exp <= ndif {
		frac = math.Ldexp(frac, exp)
		exp = 0
	} else {
		exp -= ndif
		frac = math.Ldexp(frac, ndif)
	}
	n := int64(frac)
	result := ip.Mem.AllocRef(2)
	ip.Mem.SetField(result, 1, oop.SmallInt(n))
	ip.Mem.SetField(result, 2, oop.SmallInt(int64(exp)))
	return result, true
}

func primFloatAdd(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := floatArg(ip, args, 0)
	b, okB := floatArg(ip, args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return ip.Mem.NewFloat(a + b), true
}

func primFloatSubtract(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := floatArg(ip, args, 0)
	b, okB := floatArg(ip, args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return ip.Mem.NewFloat(a - b), true
}

func primFloatMultiply(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := floatArg(ip, args, 0)
	b, okB := floatArg(ip, args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return ip.Mem.NewFloat(a * b), true
}

func primFloatDivide(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := floatArg(ip, args, 0)
	b, okB := floatArg(ip, args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return ip.Mem.NewFloat(a / b), true
}

func primFloatLessThan(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := floatArg(ip, args, 0)
	b, okB := floatArg(ip, args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return oop.Bool(a < b), true
}

func primFloatGreaterThan(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := floatArg(ip, args, 0)
	b, okB := floatArg(ip, args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return oop.Bool(a > b), true
}

func primFloatLessOrEqual(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := floatArg(ip, args, 0)
	b, okB := floatArg(ip, args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return oop.Bool(a <= b), true
}

func primFloatGreaterOrEqual(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := floatArg(ip, args, 0)
	b, okB := floatArg(ip, args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return oop.Bool(a >= b), true
}

func primFloatEqual(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := floatArg(ip, args, 0)
	b, okB := floatArg(ip, args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return oop.Bool(a == b), true
}

func primFloatNotEqual(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	a, okA := floatArg(ip, args, 0)
	b, okB := floatArg(ip, args, 1)
	if !okA || !okB {
		return oop.Nil, false
	}
	return oop.Bool(a != b), true
}
