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

package image

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/ZYSF/Smalltalk-Archive/objmem"
)

// WriteCompressed wraps Write in a zstd stream, for the `-compress` CLI
// flag. The canonical uncompressed format Write produces is unchanged; this
// is purely an optional transport-level wrapper, same relationship the
// teacher's compr package has to the wire format it wraps.
func WriteCompressed(mem *objmem.Memory, w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("image: opening zstd writer: %w", err)
	}
	if err := Write(mem, zw); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// ReadCompressed is WriteCompressed's inverse.
func ReadCompressed(r io.Reader) (*objmem.Memory, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("image: opening zstd reader: %w", err)
	}
	defer zr.Close()
	return Read(zr)
}
