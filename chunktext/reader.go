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

// Package chunktext implements the source-file bootstrap format described
// in §6: a sequence of "!"-terminated chunks, used by cmd/gst's cold-boot
// mode to build an image from class-definition and method-set source files.
// It is grounded on original_source/pdst.c's coldFileIn/coldClassDef/
// coldMethods, adapted to §6's own concrete chunk grammar.
//
// This is a separate concern from vm's File>>getChunk/putChunk primitives
// (vm/prim_io.go), which read and write chunks against the running image's
// own file-descriptor table rather than bootstrap source text; the two
// packages implement the same escaping convention independently rather
// than sharing code across that boundary.
package chunktext

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Reader yields successive chunks from an underlying byte stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r for chunk-at-a-time reading.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next chunk's text. ok is false with a nil error at a
// clean end of stream (no partial chunk pending); err is set for anything
// else, including a truncated or malformed "!" escape.
func (rd *Reader) Next() (text string, ok bool, err error) {
	var b strings.Builder
	for {
		c, rerr := rd.r.ReadByte()
		if rerr != nil {
			if rerr == io.EOF && b.Len() == 0 {
				return "", false, nil
			}
			return "", false, fmt.Errorf("chunktext: truncated chunk: %w", rerr)
		}
		if c != '!' {
			b.WriteByte(c)
			continue
		}
		next, rerr := rd.r.ReadByte()
		if rerr != nil {
			return "", false, fmt.Errorf("chunktext: truncated '!' escape: %w", rerr)
		}
		switch next {
		case '\n':
			return b.String(), true, nil
		case '!':
			b.WriteByte('!')
		default:
			return "", false, fmt.Errorf("chunktext: malformed escape '!%c'", next)
		}
	}
}
