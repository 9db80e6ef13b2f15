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

package lex

import "testing"

func scanAll(src string) []Token {
	s := New([]byte(src))
	var out []Token
	for {
		tok := s.Next()
		out = append(out, tok)
		if tok.Kind == EOF {
			return out
		}
	}
}

func TestIdentifiersAndKeywordParts(t *testing.T) {
	toks := scanAll("foo at: bar")
	want := []struct {
		kind Kind
		text string
	}{
		{Name, "foo"},
		{NameColon, "at:"},
		{Name, "bar"},
		{EOF, ""},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, w := range want {
		if toks[i].Kind != w.kind || toks[i].Text != w.text {
			t.Fatalf("token %d = %v, want {%v %q}", i, toks[i], w.kind, w.text)
		}
	}
}

func TestIntegerLiteral(t *testing.T) {
	toks := scanAll("42")
	if toks[0].Kind != IntConst || toks[0].Int != 42 {
		t.Fatalf("got %v, want IntConst(42)", toks[0])
	}
}

func TestFloatLiteralWithFraction(t *testing.T) {
	toks := scanAll("3.14")
	if toks[0].Kind != FloatConst || toks[0].Float != 3.14 {
		t.Fatalf("got %v, want FloatConst(3.14)", toks[0])
	}
}

func TestOrdinaryPeriodIsNotMistakenForFraction(t *testing.T) {
	toks := scanAll("1. 2")
	if toks[0].Kind != IntConst || toks[0].Int != 1 {
		t.Fatalf("first token = %v, want IntConst(1)", toks[0])
	}
	if toks[1].Kind != Closing || toks[1].Text != "." {
		t.Fatalf("second token = %v, want Closing(\".\")", toks[1])
	}
	if toks[2].Kind != IntConst || toks[2].Int != 2 {
		t.Fatalf("third token = %v, want IntConst(2)", toks[2])
	}
}

func TestFloatLiteralWithExponent(t *testing.T) {
	toks := scanAll("1e3")
	if toks[0].Kind != FloatConst || toks[0].Float != 1000 {
		t.Fatalf("got %v, want FloatConst(1000)", toks[0])
	}
}

func TestFloatLiteralWithNegativeExponent(t *testing.T) {
	toks := scanAll("1e-2")
	if toks[0].Kind != FloatConst || toks[0].Float != 0.01 {
		t.Fatalf("got %v, want FloatConst(0.01)", toks[0])
	}
}

func TestIntegerOverflowsToFloat(t *testing.T) {
	toks := scanAll("1073741824") // 2^30, one past MaxSmallInt
	if toks[0].Kind != FloatConst || toks[0].Float != 1073741824 {
		t.Fatalf("got %v, want FloatConst(1073741824)", toks[0])
	}
}

func TestCharacterLiteral(t *testing.T) {
	toks := scanAll("$a")
	if toks[0].Kind != CharConst || toks[0].Int != 'a' {
		t.Fatalf("got %v, want CharConst('a')", toks[0])
	}
}

func TestSymbolLiteral(t *testing.T) {
	toks := scanAll("#at:put: #+ #(")
	if toks[0].Kind != SymConst || toks[0].Text != "at:put:" {
		t.Fatalf("got %v, want SymConst(\"at:put:\")", toks[0])
	}
	if toks[1].Kind != SymConst || toks[1].Text != "+" {
		t.Fatalf("got %v, want SymConst(\"+\")", toks[1])
	}
	if toks[2].Kind != ArrayBegin {
		t.Fatalf("got %v, want ArrayBegin", toks[2])
	}
}

func TestStringLiteralWithEscapedQuote(t *testing.T) {
	toks := scanAll("'it''s here'")
	if toks[0].Kind != StrConst || toks[0].Text != "it's here" {
		t.Fatalf("got %v, want StrConst(\"it's here\")", toks[0])
	}
}

func TestCommentIsSkipped(t *testing.T) {
	toks := scanAll(`"a comment" foo`)
	if toks[0].Kind != Name || toks[0].Text != "foo" {
		t.Fatalf("got %v, want Name(\"foo\")", toks[0])
	}
}

func TestBinarySelectors(t *testing.T) {
	toks := scanAll("a <= b ~= c")
	want := []string{"<=", "~="}
	var got []string
	for _, tok := range toks {
		if tok.Kind == Binary {
			got = append(got, tok.Text)
		}
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("binary selectors = %v, want %v", got, want)
	}
}

func TestSingleBinaryBracketsAreOwnTokens(t *testing.T) {
	toks := scanAll("[:x | x]")
	if toks[0].Kind != Binary || toks[0].Text != "[" {
		t.Fatalf("got %v, want Binary(\"[\")", toks[0])
	}
}

func TestEmptyInputIsEOF(t *testing.T) {
	toks := scanAll("")
	if len(toks) != 1 || toks[0].Kind != EOF {
		t.Fatalf("got %v, want [EOF]", toks)
	}
}
