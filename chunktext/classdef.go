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
	"fmt"
	"strings"

	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// ClassDef is a parsed class-definition chunk: "super name [| ivar ivar ... |]".
type ClassDef struct {
	Super    string // "nil" for no superclass
	Name     string
	InstVars []string
}

// tokenizeClassDef splits a chunk into whitespace-separated tokens, treating
// '[', '|' and ']' as their own tokens even when written without
// surrounding whitespace (as the "[|" / "|]" brackets normally are).
func tokenizeClassDef(chunk string) []string {
	var b strings.Builder
	for _, r := range chunk {
		switch r {
		case '[', ']', '|':
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}

// ParseClassDef parses a class-definition chunk's text.
func ParseClassDef(chunk string) (ClassDef, error) {
	toks := tokenizeClassDef(chunk)
	if len(toks) < 2 {
		return ClassDef{}, fmt.Errorf("chunktext: class definition needs at least a superclass and a name, got %q", chunk)
	}
	def := ClassDef{Super: toks[0], Name: toks[1]}
	inBar := false
	for _, t := range toks[2:] {
		switch t {
		case "[", "]":
			// structural only
		case "|":
			inBar = !inBar
		default:
			if inBar {
				def.InstVars = append(def.InstVars, t)
			}
		}
	}
	return def, nil
}

// findOrCreateClass returns the class bound to name, creating an empty one
// (no superclass, no instance variables yet) if it isn't bound -- mirrors
// original_source/pdst.c's findClass, which lets a class be referenced as a
// superclass before its own definition chunk has been read.
func findOrCreateClass(mem *objmem.Memory, name string) oop.Ref {
	if class := mem.Global(name); !oop.IsNil(class) {
		return class
	}
	class := mem.AllocRef(objmem.ClassShapeFields)
	mem.SetField(class, objmem.ClassName, mem.AllocCString(name))
	mem.SetField(class, objmem.ClassSize, oop.SmallInt(0))
	mem.SetField(class, objmem.ClassMethods, mem.NewDictionary(39))
	mem.SetGlobal(name, class)
	return class
}

// DefineClass applies a parsed class-definition chunk to mem: resolving (or
// creating) the named class and its superclass, wiring the superclass link,
// and installing the instance-variable Array, with sizeInClass accumulating
// the superclass's own count (original_source/pdst.c's coldClassDef).
func DefineClass(mem *objmem.Memory, def ClassDef) oop.Ref {
	class := findOrCreateClass(mem, def.Name)

	size := int64(0)
	if def.Super != "" && def.Super != "nil" {
		super := findOrCreateClass(mem, def.Super)
		mem.SetField(class, objmem.ClassSuperClass, super)
		size = mem.Field(super, objmem.ClassSize).Int()
	}

	vars := mem.AllocRef(len(def.InstVars))
	for i, name := range def.InstVars {
		mem.StoreRef(vars, i, mem.Intern(name))
	}
	mem.SetField(class, objmem.ClassVariables, vars)
	mem.SetField(class, objmem.ClassSize, oop.SmallInt(size+int64(len(def.InstVars))))
	return class
}

// InstanceVariableNames walks class and every superclass, root first, to
// build the full visible instance-variable name list compile.NewCompiler
// needs: field index i in the result is PushInstance/AssignInstance slot i.
func InstanceVariableNames(mem *objmem.Memory, class oop.Ref) []string {
	if oop.IsNil(class) {
		return nil
	}
	var names []string
	if super := mem.Field(class, objmem.ClassSuperClass); !oop.IsNil(super) {
		names = InstanceVariableNames(mem, super)
	}
	if vars := mem.Field(class, objmem.ClassVariables); !oop.IsNil(vars) {
		n := mem.Count(vars)
		for i := 1; i <= n; i++ {
			names = append(names, mem.CString(mem.Field(vars, i)))
		}
	}
	return names
}
