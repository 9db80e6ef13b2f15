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

import (
	"strconv"

	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// Scanner tokenizes a chunk-text byte buffer, cursor-based like the rest of
// this codebase's scanners rather than the source's explicit pushback
// stack: a "pushBack" in the original always un-reads characters most
// recently consumed from the same linear buffer, so here that collapses to
// rewinding pos.
type Scanner struct {
	src []byte
	pos int
}

// New returns a scanner over src. src is not copied; the caller must not
// mutate it while the scanner is in use.
func New(src []byte) *Scanner {
	return &Scanner{src: src}
}

// Pos returns the current byte offset, for error reporting.
func (s *Scanner) Pos() int { return s.pos }

func (s *Scanner) read() byte {
	if s.pos >= len(s.src) {
		return 0
	}
	c := s.src[s.pos]
	s.pos++
	return c
}

func (s *Scanner) unread() {
	if s.pos > 0 {
		s.pos--
	}
}

func isDigitByte(c byte) bool { return c >= '0' && c <= '9' }
func isAlphaByte(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isAlnumByte(c byte) bool { return isDigitByte(c) || isAlphaByte(c) }
func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func containsDotOrE(tok []byte) bool {
	for _, c := range tok {
		if c == '.' || c == 'e' {
			return true
		}
	}
	return false
}

// isClosingByte reports whether c ends an expression or literal on its own:
// a period, a block/paren/array close, a statement separator, or a comment
// or string delimiter.
func isClosingByte(c byte) bool {
	switch c {
	case '.', ']', ')', ';', '"', '\'':
		return true
	}
	return false
}

// isSymbolChar reports whether c can appear inside a #symbol literal's text
// (anything that isn't whitespace or a closing character is fair game, so
// that e.g. #+ and #at:put: both scan as one symbol).
func isSymbolChar(c byte) bool {
	if isDigitByte(c) || isAlphaByte(c) {
		return true
	}
	if isSpaceByte(c) || isClosingByte(c) {
		return false
	}
	return true
}

// isSingleBinary reports whether c is always its own one-character binary
// token, never combined with a following character.
func isSingleBinary(c byte) bool {
	switch c {
	case '[', '(', ')', ']':
		return true
	}
	return false
}

// isBinarySecond reports whether c may follow a binary-selector's first
// character to form a two-character selector (e.g. the '=' in '~=').
func isBinarySecond(c byte) bool {
	if isAlphaByte(c) || isDigitByte(c) || isSpaceByte(c) || isClosingByte(c) || isSingleBinary(c) {
		return false
	}
	return true
}

// skipWsAndComments discards whitespace and "double-quoted" comments (which
// don't nest and run to the next unescaped '"'), returning the first real
// token character, or ok=false at end of input.
func (s *Scanner) skipWsAndComments() (c byte, ok bool) {
	for {
		c = s.read()
		if c == 0 {
			return 0, false
		}
		if c == '"' {
			for {
				d := s.read()
				if d == 0 {
					return 0, false
				}
				if d == '"' {
					break
				}
			}
			continue
		}
		if isSpaceByte(c) {
			continue
		}
		return c, true
	}
}

// Next scans and returns the next token. At end of input it returns a
// Token with Kind EOF.
func (s *Scanner) Next() Token {
	cc, ok := s.skipWsAndComments()
	if !ok {
		return Token{Kind: EOF}
	}

	tok := []byte{cc}
	var kind Kind

	switch {
	case isAlphaByte(cc): // identifier, possibly keyword-part (foo or foo:)
		for {
			cc = s.read()
			if cc == 0 || !isAlnumByte(cc) {
				break
			}
			tok = append(tok, cc)
		}
		if cc == ':' {
			tok = append(tok, cc)
			kind = NameColon
		} else {
			if cc != 0 {
				s.unread()
			}
			kind = Name
		}
		return Token{Kind: kind, Text: string(tok)}

	case isDigitByte(cc): // number, possibly with a '.' fraction and/or 'e' exponent
		longresult := int64(cc - '0')
		for {
			cc = s.read()
			if cc == 0 || !isDigitByte(cc) {
				break
			}
			tok = append(tok, cc)
			longresult = longresult*10 + int64(cc-'0')
		}

		isFloat := !oop.CanEmbed(longresult)

		if cc == '.' {
			d := s.read()
			if d != 0 && isDigitByte(d) {
				tok = append(tok, '.')
				cc = d
				for {
					tok = append(tok, cc)
					cc = s.read()
					if cc == 0 || !isDigitByte(cc) {
						break
					}
				}
				if cc != 0 {
					s.unread()
				}
				isFloat = true
			} else {
				// not a fraction after all: put back both the lookahead
				// and the '.' itself, so '.' ends this token as a statement
				// separator instead.
				if d != 0 {
					s.unread()
				}
				s.unread()
			}
		} else if cc != 0 {
			s.unread()
		}

		if cc = s.read(); cc != 0 && cc == 'e' {
			sign := false
			cc = s.read()
			if cc == '-' {
				sign = true
				cc = s.read()
			}
			if cc != 0 && isDigitByte(cc) {
				tok = append(tok, 'e')
				if sign {
					tok = append(tok, '-')
				}
				for cc != 0 && isDigitByte(cc) {
					tok = append(tok, cc)
					cc = s.read()
				}
				if cc != 0 {
					s.unread()
				}
				isFloat = true
			} else {
				if cc != 0 {
					s.unread()
				}
				if sign {
					s.unread()
				}
				s.unread() // the 'e' itself
			}
		} else if cc != 0 {
			s.unread()
		}

		if isFloat {
			// Once a '.' fraction or 'e' exponent is present, the float
			// value comes from re-parsing the accumulated text (atof);
			// otherwise (plain overflow of the SmallInt range with no
			// fraction/exponent) it's just the integer read so far,
			// widened, matching pdst.c's nextToken exactly.
			if containsDotOrE(tok) {
				f, _ := strconv.ParseFloat(string(tok), 64)
				return Token{Kind: FloatConst, Text: string(tok), Float: f}
			}
			return Token{Kind: FloatConst, Text: string(tok), Float: float64(longresult)}
		}
		return Token{Kind: IntConst, Text: string(tok), Int: longresult}

	case cc == '$': // character literal
		c := s.read()
		return Token{Kind: CharConst, Int: int64(c)}

	case cc == '#': // symbol literal, or '#(' starting a literal array
		d := s.read()
		if d == '(' {
			return Token{Kind: ArrayBegin}
		}
		if d != 0 {
			s.unread()
		}
		tok = tok[:0]
		for {
			c := s.read()
			if c == 0 || !isSymbolChar(c) {
				if c != 0 {
					s.unread()
				}
				break
			}
			tok = append(tok, c)
		}
		return Token{Kind: SymConst, Text: string(tok)}

	case cc == '\'': // string literal; '' inside one is an escaped literal quote
		tok = tok[:0]
		for {
			var c byte
			for {
				c = s.read()
				if c == 0 || c == '\'' {
					break
				}
				tok = append(tok, c)
			}
			if c == 0 {
				break
			}
			d := s.read()
			if d == '\'' {
				tok = append(tok, d)
				continue
			}
			if d != 0 {
				s.unread()
			}
			break
		}
		return Token{Kind: StrConst, Text: string(tok)}

	case isClosingByte(cc):
		return Token{Kind: Closing, Text: string(tok)}

	case isSingleBinary(cc):
		return Token{Kind: Binary, Text: string(tok)}

	default: // a general binary selector, one or two characters
		d := s.read()
		if d != 0 && isBinarySecond(d) {
			tok = append(tok, d)
		} else if d != 0 {
			s.unread()
		}
		return Token{Kind: Binary, Text: string(tok)}
	}
}
