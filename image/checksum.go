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
	"bytes"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"
)

// checksumKey keys the digest so a snapshot.b2 side-file never collides
// with a checksum computed by some unrelated tool over the same bytes,
// mirroring the teacher's keyed blake2b usage rather than a bare hash.
var checksumKey = []byte("smalltalk-archive-image-v1")

// Checksum returns the keyed blake2b/256 digest of an image body.
func Checksum(data []byte) ([]byte, error) {
	h, err := blake2b.New256(checksumKey)
	if err != nil {
		return nil, fmt.Errorf("image: building checksum: %w", err)
	}
	h.Write(data)
	return h.Sum(nil), nil
}

// WriteChecksumFile writes data's checksum to path (conventionally
// "snapshot.b2" alongside "snapshot"), for later verification by
// VerifyChecksumFile.
func WriteChecksumFile(path string, data []byte) error {
	sum, err := Checksum(data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, sum, 0o644); err != nil {
		return fmt.Errorf("image: writing checksum file %s: %w", path, err)
	}
	return nil
}

// VerifyChecksumFile recomputes data's checksum and compares it against the
// one stored at path. A missing side-file or a mismatch is a load error
// (exit code 1 per §6), but neither ever perturbs the canonical image bytes
// -- callers still have whatever they read, verification only decides
// whether to trust it.
func VerifyChecksumFile(path string, data []byte) error {
	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("image: reading checksum file %s: %w", path, err)
	}
	got, err := Checksum(data)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("image: checksum mismatch for %s", path)
	}
	return nil
}
