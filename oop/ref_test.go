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

package oop

import "testing"

func TestCanEmbedBoundary(t *testing.T) {
	cases := []struct {
		v    int64
		want bool
	}{
		{0, true},
		{MaxSmallInt, true},
		{MinSmallInt, true},
		{MaxSmallInt + 1, false},
		{MinSmallInt - 1, false},
		{1 << 30, false}, // the classic boundary case: 2^30 itself overflows
	}
	for _, c := range cases {
		if got := CanEmbed(c.v); got != c.want {
			t.Errorf("CanEmbed(%d) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 2, MaxSmallInt, MinSmallInt, 12345, -98765} {
		r := SmallInt(v)
		if !r.IsSmallInt() || r.IsOop() {
			t.Fatalf("SmallInt(%d) has wrong kind", v)
		}
		if got := r.Int(); got != v {
			t.Fatalf("SmallInt(%d).Int() = %d", v, got)
		}
	}
}

func TestEquality(t *testing.T) {
	if !SmallInt(5).Equal(SmallInt(5)) {
		t.Fatal("equal SmallInts should compare equal")
	}
	if SmallInt(5).Equal(SmallInt(6)) {
		t.Fatal("distinct SmallInts should not compare equal")
	}
	if Oop(5).Equal(SmallInt(5)) {
		t.Fatal("an Oop must never equal a SmallInt with the same bit pattern")
	}
	if !Oop(7).Equal(Oop(7)) {
		t.Fatal("equal Oops should compare equal")
	}
}

func TestSingletons(t *testing.T) {
	if Nil.Index() != NilIndex || True.Index() != TrueIndex || False.Index() != FalseIndex {
		t.Fatal("singleton indices do not match the reserved layout")
	}
	if !IsNil(Nil) || IsNil(True) {
		t.Fatal("IsNil is wrong")
	}
	if Bool(true) != True || Bool(false) != False {
		t.Fatal("Bool mapping is wrong")
	}
}
