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

package objmem

import (
	"encoding/binary"
	"math"

	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// NewFloat allocates a Float (§3: "byte buffer holding a native double in
// raw form"), a plain byte object of 8 bytes holding the IEEE-754 bits, set
// to the "Float" global class if one has been bootstrapped yet (mirroring
// newFloat's classOfPut(newObj, globalValue("Float")) -- before the
// bootstrap classes exist, the class field is left nil and patched later).
func (m *Memory) NewFloat(d float64) oop.Ref {
	r := m.AllocByte(8)
	binary.LittleEndian.PutUint64(m.Bytes(r), math.Float64bits(d))
	if class := m.Global("Float"); !oop.IsNil(class) {
		m.SetClass(r, class)
	}
	return r
}

// FloatValue reads the native double out of a Float object.
func (m *Memory) FloatValue(r oop.Ref) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(m.Bytes(r)))
}
