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

package vm

import (
	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// lookup resolves selector against startClass's superclass chain (§4.7),
// consulting and then populating the method cache. definingClass is the
// class whose methods dictionary actually held the method (needed by
// super-sends one level further up, and useful for reflection).
func (ip *Interp) lookup(selector, startClass oop.Ref) (definingClass, method oop.Ref, found bool) {
	if dc, m, ok := ip.cache.lookup(selector, startClass); ok {
		return dc, m, true
	}

	for class := startClass; !oop.IsNil(class); class = ip.Mem.Field(class, objmem.ClassSuperClass) {
		methods := ip.Mem.Field(class, objmem.ClassMethods)
		if oop.IsNil(methods) {
			continue
		}
		m := ip.Mem.DictLookup(methods, objmem.SymbolHash(selector), func(k oop.Ref) bool {
			return k == selector
		})
		if !oop.IsNil(m) {
			ip.cache.install(selector, startClass, class, m)
			return class, m, true
		}
	}
	return oop.Nil, oop.Nil, false
}

// methodsDict returns class's methods Dictionary, creating (and installing)
// an empty one on first use (§4.7: "consult methods, creating an empty
// dictionary if missing").
func (ip *Interp) methodsDict(class oop.Ref) oop.Ref {
	d := ip.Mem.Field(class, objmem.ClassMethods)
	if !oop.IsNil(d) {
		return d
	}
	d = ip.Mem.NewDictionary(objmem.DefaultSymbolBuckets)
	ip.Mem.SetField(class, objmem.ClassMethods, d)
	return d
}

// installMethod adds or replaces selector's method on class and flushes
// every cache slot that might now be stale for that selector.
func (ip *Interp) installMethod(class, selector, method oop.Ref) {
	d := ip.methodsDict(class)
	ip.Mem.DictInsert(d, objmem.SymbolHash(selector), selector, method)
	ip.cache.flush(selector)
}

// sendDoesNotUnderstand synthesizes an arguments Array from args (the
// original send's receiver-excluded arguments) and enters a frame for
// message:notRecognizedWithArguments:, sent back to the very same receiver
// (§4.7). It reports false if even that selector goes unresolved, meaning
// the process itself has failed.
func (ip *Interp) sendDoesNotUnderstand(s *State, class, receiver, selector oop.Ref, args []oop.Ref) bool {
	arr := ip.Mem.AllocRef(len(args))
	for i, a := range args {
		ip.Mem.SetField(arr, i+1, a)
	}
	dnu := ip.Mem.Intern("message:notRecognizedWithArguments:")
	_, method, ok := ip.lookup(dnu, class)
	if !ok {
		return false
	}
	s.push(ip.Mem, receiver)
	s.push(ip.Mem, selector)
	s.push(ip.Mem, arr)
	s.enterFrame(ip.Mem, method, 3)
	return true
}
