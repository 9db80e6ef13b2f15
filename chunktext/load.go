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
	"io"

	"github.com/ZYSF/Smalltalk-Archive/compile"
	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// Load reads every chunk in r, feeding class-definition chunks to
// DefineClass and "{"/"}"-bracketed chunks to the method compiler, in the
// order original_source/pdst.c's coldFileIn drives them. A method chunk
// that fails to compile is skipped, not fatal -- it is recorded in the
// returned warnings so the caller (cmd/gst) can report it, matching the
// original's behavior of discarding unparseable methods rather than
// aborting the whole file.
func Load(mem *objmem.Memory, r io.Reader) (warnings []string, err error) {
	rd := NewReader(r)
	for {
		chunk, ok, err := rd.Next()
		if err != nil {
			return warnings, err
		}
		if !ok {
			return warnings, nil
		}
		if chunk == "{" {
			w, err := loadMethodSet(mem, rd)
			warnings = append(warnings, w...)
			if err != nil {
				return warnings, err
			}
			continue
		}
		def, perr := ParseClassDef(chunk)
		if perr != nil {
			warnings = append(warnings, perr.Error())
			continue
		}
		DefineClass(mem, def)
	}
}

// loadMethodSet reads one "{"-opened, "}"-closed method-set: a class-header
// chunk naming the class the following method bodies belong to, followed by
// method-body chunks, each compiled against that class and installed into
// its method Dictionary (original_source/pdst.c's coldMethods). The header
// is just the class's name; a name not defined by any earlier chunk gets a
// new, empty class created for it (findOrCreateClass).
func loadMethodSet(mem *objmem.Memory, rd *Reader) (warnings []string, err error) {
	header, ok, err := rd.Next()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("chunktext: method set opened with no class header")
	}
	toks := tokenizeClassDef(header)
	if len(toks) == 0 {
		return nil, fmt.Errorf("chunktext: method set header names no class: %q", header)
	}
	class := findOrCreateClass(mem, toks[0])
	instVars := InstanceVariableNames(mem, class)
	methods := mem.Field(class, objmem.ClassMethods)
	if oop.IsNil(methods) {
		methods = mem.NewDictionary(objmem.DefaultSymbolBuckets)
		mem.SetField(class, objmem.ClassMethods, methods)
	}

	for {
		chunk, ok, err := rd.Next()
		if err != nil {
			return warnings, err
		}
		if !ok || chunk == "}" {
			return warnings, nil
		}
		c := compile.NewCompiler(mem, class, instVars)
		method, cerr := c.CompileMethod(chunk)
		if cerr != nil {
			warnings = append(warnings, cerr.Error())
			continue
		}
		selector := mem.Field(method, objmem.MethodMessage)
		mem.DictInsert(methods, objmem.SymbolHash(selector), selector, method)
	}
}
