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
	"strings"
	"testing"

	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

func TestReaderSplitsChunksAndUnescapesBang(t *testing.T) {
	rd := NewReader(strings.NewReader("first!\nsecond has a bang!! in it!\n"))

	chunk, ok, err := rd.Next()
	if err != nil || !ok || chunk != "first" {
		t.Fatalf("first chunk: %q %v %v", chunk, ok, err)
	}
	chunk, ok, err = rd.Next()
	if err != nil || !ok || chunk != "second has a bang! in it" {
		t.Fatalf("second chunk: %q %v %v", chunk, ok, err)
	}
	_, ok, err = rd.Next()
	if err != nil || ok {
		t.Fatalf("expected clean EOF, got ok=%v err=%v", ok, err)
	}
}

func TestParseClassDefWithInstanceVariables(t *testing.T) {
	def, err := ParseClassDef("Object Point [| x y |]")
	if err != nil {
		t.Fatalf("ParseClassDef: %v", err)
	}
	if def.Super != "Object" || def.Name != "Point" {
		t.Fatalf("super/name: got %q/%q", def.Super, def.Name)
	}
	if len(def.InstVars) != 2 || def.InstVars[0] != "x" || def.InstVars[1] != "y" {
		t.Fatalf("instvars: got %v", def.InstVars)
	}
}

func TestParseClassDefWithoutInstanceVariables(t *testing.T) {
	def, err := ParseClassDef("nil Object")
	if err != nil {
		t.Fatalf("ParseClassDef: %v", err)
	}
	if def.Super != "nil" || def.Name != "Object" || len(def.InstVars) != 0 {
		t.Fatalf("got %+v", def)
	}
}

func TestDefineClassWiresSuperclassAndInheritedSize(t *testing.T) {
	mem := objmem.NewMemory(4096)
	DefineClass(mem, ClassDef{Super: "nil", Name: "Object"})
	point := DefineClass(mem, ClassDef{Super: "Object", Name: "Point", InstVars: []string{"x", "y"}})

	if got := mem.Field(point, objmem.ClassSize).Int(); got != 2 {
		t.Fatalf("Point size: got %d, want 2", got)
	}
	circle := DefineClass(mem, ClassDef{Super: "Point", Name: "Circle", InstVars: []string{"radius"}})
	if got := mem.Field(circle, objmem.ClassSize).Int(); got != 3 {
		t.Fatalf("Circle size: got %d, want 3", got)
	}
	names := InstanceVariableNames(mem, circle)
	want := []string{"x", "y", "radius"}
	if len(names) != len(want) {
		t.Fatalf("instance variable names: got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("instance variable names: got %v, want %v", names, want)
		}
	}
}

func TestLoadInstallsClassesAndMethods(t *testing.T) {
	mem := objmem.NewMemory(4096)
	src := "nil Object!\n" +
		"Object Point [| x y |]!\n" +
		"{!\n" +
		"Point!\n" +
		"x\n\t^x!\n" +
		"y\n\t^y!\n" +
		"}!\n"
	warnings, err := Load(mem, strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	point := mem.Global("Point")
	if oop.IsNil(point) {
		t.Fatalf("Point not defined")
	}
	methods := mem.Field(point, objmem.ClassMethods)
	xSel := mem.Intern("x")
	method := mem.DictLookup(methods, objmem.SymbolHash(xSel), func(k oop.Ref) bool {
		return k == xSel
	})
	if oop.IsNil(method) {
		t.Fatalf("method x not installed")
	}
	if got := mem.Field(method, objmem.MethodMessage); got != xSel {
		t.Fatalf("method selector mismatch")
	}
}

func TestLoadSkipsUnparseableMethodAsWarning(t *testing.T) {
	mem := objmem.NewMemory(4096)
	src := "nil Object!\n" +
		"Object Point [| x |]!\n" +
		"{!\n" +
		"Point!\n" +
		"x\n\t^x!\n" +
		"bad method body (((!\n" +
		"}!\n"
	warnings, err := Load(mem, strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatalf("expected a warning for the unparseable method")
	}
	methods := mem.Field(mem.Global("Point"), objmem.ClassMethods)
	xSel := mem.Intern("x")
	found := mem.DictLookup(methods, objmem.SymbolHash(xSel), func(k oop.Ref) bool {
		return k == xSel
	})
	if oop.IsNil(found) {
		t.Fatalf("valid method x should still install despite sibling failure")
	}
}
