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

// Package lex tokenizes bootstrap method/chunk source text (§4.5).
package lex

import "fmt"

// Kind is one of the token classes the scanner produces, mirroring the
// source tokenizer's tokentype enum exactly (nothing/nameconst/namecolon/
// intconst/floatconst/charconst/symconst/arraybegin/strconst/binary/
// closing/inputend).
type Kind uint8

const (
	Nothing Kind = iota
	Name         // identifier, e.g. foo
	NameColon    // identifier followed by ':', e.g. at:
	IntConst     // an embeddable SmallInt literal
	FloatConst   // a literal that doesn't fit a SmallInt, or has a '.'/'e' part
	CharConst    // $x
	SymConst     // #foo or #at:put:
	ArrayBegin   // #(
	StrConst     // 'a string'
	Binary       // a binary selector, or one of ( [
	Closing      // one of . ] ) ; " '
	EOF
)

func (k Kind) String() string {
	switch k {
	case Nothing:
		return "Nothing"
	case Name:
		return "Name"
	case NameColon:
		return "NameColon"
	case IntConst:
		return "IntConst"
	case FloatConst:
		return "FloatConst"
	case CharConst:
		return "CharConst"
	case SymConst:
		return "SymConst"
	case ArrayBegin:
		return "ArrayBegin"
	case StrConst:
		return "StrConst"
	case Binary:
		return "Binary"
	case Closing:
		return "Closing"
	case EOF:
		return "EOF"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Token is one scanned lexeme. Text holds the token's literal spelling
// (for Name/NameColon/SymConst/StrConst/Binary/Closing) or the decoded
// source text used to produce Int/Float (for IntConst/FloatConst); for
// CharConst, Int is the character code and Text is unused.
type Token struct {
	Kind  Kind
	Text  string
	Int   int64
	Float float64
}

func (t Token) String() string {
	switch t.Kind {
	case IntConst:
		return fmt.Sprintf("%s(%d)", t.Kind, t.Int)
	case FloatConst:
		return fmt.Sprintf("%s(%g)", t.Kind, t.Float)
	case CharConst:
		return fmt.Sprintf("%s($%c)", t.Kind, rune(t.Int))
	default:
		return fmt.Sprintf("%s(%q)", t.Kind, t.Text)
	}
}
