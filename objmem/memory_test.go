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
	"testing"

	"github.com/ZYSF/Smalltalk-Archive/oop"
)

func TestBootstrapReservedIndices(t *testing.T) {
	m := NewMemory(256)
	if m.Symbols.Index() != oop.SymbolsIndex {
		t.Fatalf("Symbols landed at %d, want %d", m.Symbols.Index(), oop.SymbolsIndex)
	}
	if !m.Global("nil").Equal(oop.Nil) {
		t.Fatalf("Global(%q) = %v, want the nil singleton itself", "nil", m.Global("nil"))
	}
	if oop.IsNil(m.Global("true")) || oop.IsNil(m.Global("false")) || oop.IsNil(m.Global("symbols")) {
		t.Fatalf("bootstrap reserved names not bound in symbols table")
	}
}

func TestBootstrapNilTrueFalseDistinct(t *testing.T) {
	m := NewMemory(256)
	n := m.Global("nil")
	tr := m.Global("true")
	fa := m.Global("false")
	if n.Equal(tr) || n.Equal(fa) || tr.Equal(fa) {
		t.Fatalf("bootstrap singletons not pairwise distinct: nil=%v true=%v false=%v", n, tr, fa)
	}
	if n.Index() != oop.NilIndex || tr.Index() != oop.TrueIndex || fa.Index() != oop.FalseIndex {
		t.Fatalf("bootstrap singletons at wrong indices: nil=%d true=%d false=%d", n.Index(), tr.Index(), fa.Index())
	}
}
