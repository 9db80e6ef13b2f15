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

package chunktext

import (
	"io"
	"strings"
)

// WriteChunk writes text to w as one chunk: every '!' byte doubled,
// terminated by "!\n".
func WriteChunk(w io.Writer, text string) error {
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		b.WriteByte(c)
		if c == '!' {
			b.WriteByte('!')
		}
	}
	b.WriteString("!\n")
	_, err := io.WriteString(w, b.String())
	return err
}
