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
	"testing"

	"github.com/ZYSF/Smalltalk-Archive/chunktext"
	"github.com/ZYSF/Smalltalk-Archive/compile"
	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// installMethod compiles src against class and installs it into the
// class's method Dictionary, the same two steps chunktext.loadMethodSet
// performs for each chunk in a "{"..."}" method set, just driven directly
// instead of through chunk text for these hand-built bootstrap classes.
func installMethod(t *testing.T, mem *objmem.Memory, class oop.Ref, instVars []string, src string) {
	t.Helper()
	methods := mem.Field(class, objmem.ClassMethods)
	if oop.IsNil(methods) {
		methods = mem.NewDictionary(objmem.DefaultSymbolBuckets)
		mem.SetField(class, objmem.ClassMethods, methods)
	}
	c := compile.NewCompiler(mem, class, instVars)
	method, err := c.CompileMethod(src)
	if err != nil {
		t.Fatalf("CompileMethod(%q): %v", src, err)
	}
	selector := mem.Field(method, objmem.MethodMessage)
	mem.DictInsert(methods, objmem.SymbolHash(selector), selector, method)
}

// runDoIt compiles src as a single method against class and runs it to
// completion on a freshly bootstrapped process, the same bootstrap frame
// shape cmd/gst's warmStart relies on for systemProcess, just for one
// method instead of a whole image: push the receiver, enterFrame with no
// caller (LinkPtr 0), so the method's own StackReturn/SelfReturn unwinds
// straight to StatusFinished and leaves its answer at the bottom of the
// stack.
func runDoIt(t *testing.T, ip *Interp, class oop.Ref, instVars []string, receiver oop.Ref, src string) oop.Ref {
	t.Helper()
	c := compile.NewCompiler(ip.Mem, class, instVars)
	method, err := c.CompileMethod(src)
	if err != nil {
		t.Fatalf("CompileMethod(%q): %v", src, err)
	}

	stack := ip.Mem.AllocRef(256)
	process := ip.Mem.AllocRef(objmem.ProcessShapeFields)
	ip.Mem.SetField(process, objmem.ProcessStack, stack)
	ip.Mem.SetField(process, objmem.ProcessStackTop, oop.SmallInt(0))
	ip.Mem.SetField(process, objmem.ProcessLinkPtr, oop.SmallInt(0))

	s := &State{Process: process, Stack: stack, Top: 0, LinkPtr: 0}
	s.push(ip.Mem, receiver)
	s.enterFrame(ip.Mem, method, 1)
	s.persist(ip.Mem)

	status, err := ip.Run(process, 10000)
	if err != nil {
		t.Fatalf("Run(%q): %v", src, err)
	}
	if status != StatusFinished {
		t.Fatalf("Run(%q) status = %v, want StatusFinished", src, status)
	}
	return ip.Mem.GetRef(stack, 0)
}

func TestIntegerAddViaBytecode(t *testing.T) {
	mem := objmem.NewMemory(4096)
	ip := NewInterp(mem)

	result := runDoIt(t, ip, oop.Nil, nil, oop.Nil, "goDoIt ^3 + 4")
	if !result.IsSmallInt() || result.Int() != 7 {
		t.Fatalf("result = %v, want SmallInt(7)", result)
	}
}

// TestOverflowFallsBackToNil exercises DESIGN.md's resolution of the
// overflow-fallback scenario: 1_000_000_000 stays an embeddable SmallInt on
// its own (well under MaxSmallInt), but their sum doesn't, and this build
// carries no LargeInteger/Float promotion for Add to fall back to (§9), so
// the send's answer is nil, propagated like any other primitive failure.
func TestOverflowFallsBackToNil(t *testing.T) {
	mem := objmem.NewMemory(4096)
	ip := NewInterp(mem)

	result := runDoIt(t, ip, oop.Nil, nil, oop.Nil, "goDoIt ^1000000000 + 1000000000")
	if !oop.IsNil(result) {
		t.Fatalf("result = %v, want nil", result)
	}
}

// TestIfTrueIfFalseShortCircuit exercises compile.Compiler's inlining of
// ifTrue:ifFalse: with literal block arguments: the whole expression
// compiles to a BranchIfFalse over the two block bodies, so True/False's
// own ifTrue:ifFalse: methods (installed below but never reached by this
// call) never run -- the short-circuit comes entirely from the branch not
// falling through to the other block's bytecode.
func TestIfTrueIfFalseShortCircuit(t *testing.T) {
	mem := objmem.NewMemory(4096)
	trueClass := chunktext.DefineClass(mem, chunktext.ClassDef{Super: "nil", Name: "True"})
	falseClass := chunktext.DefineClass(mem, chunktext.ClassDef{Super: "nil", Name: "False"})
	stringClass := chunktext.DefineClass(mem, chunktext.ClassDef{Super: "nil", Name: "String"})
	blockClass := chunktext.DefineClass(mem, chunktext.ClassDef{Super: "nil", Name: "Block"})
	mem.SetClass(oop.True, trueClass)
	mem.SetClass(oop.False, falseClass)

	installMethod(t, mem, trueClass, nil, "ifTrue: t ifFalse: f ^t value")
	installMethod(t, mem, falseClass, nil, "ifTrue: t ifFalse: f ^f value")
	installMethod(t, mem, stringClass, nil, "asSymbol ^<83 self>")

	ip := NewInterp(mem)
	ip.SetBlockClass(blockClass)

	result := runDoIt(t, ip, oop.Nil, nil, oop.Nil,
		"goDoIt ^(1 < 2) ifTrue: ['a' asSymbol] ifFalse: ['b' asSymbol]")

	want := mem.Intern("a")
	if result != want {
		t.Fatalf("result = %v, want the interned Symbol #a (%v)", result, want)
	}
}

// TestIfTrueIfFalseOrdinarySend exercises the ordinary-send fallback path:
// since the ifTrue:ifFalse: argument blocks here are held in variables
// rather than written as literal blocks at the call site, tryInlineKeyword
// declines and the installed True/False ifTrue:ifFalse: methods actually
// run.
func TestIfTrueIfFalseOrdinarySend(t *testing.T) {
	mem := objmem.NewMemory(4096)
	trueClass := chunktext.DefineClass(mem, chunktext.ClassDef{Super: "nil", Name: "True"})
	falseClass := chunktext.DefineClass(mem, chunktext.ClassDef{Super: "nil", Name: "False"})
	blockClass := chunktext.DefineClass(mem, chunktext.ClassDef{Super: "nil", Name: "Block"})
	mem.SetClass(oop.True, trueClass)
	mem.SetClass(oop.False, falseClass)

	installMethod(t, mem, trueClass, nil, "ifTrue: t ifFalse: f ^t value")
	installMethod(t, mem, falseClass, nil, "ifTrue: t ifFalse: f ^f value")

	ip := NewInterp(mem)
	ip.SetBlockClass(blockClass)

	result := runDoIt(t, ip, oop.Nil, nil, oop.Nil,
		"goDoIt |t f| t := [1]. f := [2]. ^(1 < 2) ifTrue: t ifFalse: f")

	if !result.IsSmallInt() || result.Int() != 1 {
		t.Fatalf("result = %v, want SmallInt(1)", result)
	}
}

// TestNonLocalReturnUnwindsPastBlock exercises compile.Compiler's
// blockDepth-tracked non-local "^" and vm's primBlockReturn: the block's
// own frame never reaches an ordinary StackReturn of its own -- the "^42"
// inside it retargets the CURRENT frame's link/return-point to the
// enclosing goDoIt activation before unwinding, so the answer lands at the
// bottom of the stack exactly as if goDoIt had returned 42 directly.
func TestNonLocalReturnUnwindsPastBlock(t *testing.T) {
	mem := objmem.NewMemory(4096)
	blockClass := chunktext.DefineClass(mem, chunktext.ClassDef{Super: "nil", Name: "Block"})
	ip := NewInterp(mem)
	ip.SetBlockClass(blockClass)

	result := runDoIt(t, ip, oop.Nil, nil, oop.Nil, "goDoIt ^[^42] value")
	if !result.IsSmallInt() || result.Int() != 42 {
		t.Fatalf("result = %v, want SmallInt(42)", result)
	}
}

// TestWatchedMethodDivertsToWatchWith exercises dispatchSend's MethodWatch
// diversion (§4.6): once primFlipWatching has toggled watching on and a
// method's watch field is set, sending its selector runs watchWith: against
// the method itself (with the original call's receiver+argument collected
// into an Array) instead of the method's own body.
func TestWatchedMethodDivertsToWatchWith(t *testing.T) {
	mem := objmem.NewMemory(4096)
	intClass := chunktext.DefineClass(mem, chunktext.ClassDef{Super: "nil", Name: "SmallInteger"})
	methodClass := chunktext.DefineClass(mem, chunktext.ClassDef{Super: "nil", Name: "Method"})
	mem.SetGlobal("SmallInteger", intClass)

	installMethod(t, mem, intClass, nil, "double ^self + self")
	installMethod(t, mem, methodClass, nil, "watchWith: callArray ^99")

	sel := mem.Intern("double")
	methods := mem.Field(intClass, objmem.ClassMethods)
	method := mem.DictLookup(methods, objmem.SymbolHash(sel), func(k oop.Ref) bool { return k == sel })
	if oop.IsNil(method) {
		t.Fatal("installMethod did not install #double")
	}
	mem.SetClass(method, methodClass)
	mem.SetField(method, objmem.MethodWatch, oop.True)

	ip := NewInterp(mem)
	if _, ok := primFlipWatching(ip, nil, nil); !ok {
		t.Fatal("primFlipWatching reported failure")
	}
	if !ip.watching {
		t.Fatal("primFlipWatching did not turn watching on")
	}

	result := runDoIt(t, ip, oop.Nil, nil, oop.Nil, "goDoIt ^5 double")
	if !result.IsSmallInt() || result.Int() != 99 {
		t.Fatalf("result = %v, want SmallInt(99) from watchWith:, not the watched method's own body", result)
	}
}

// TestSymbolInternIdentity checks compile.Compiler.newStringLiteral's class
// tag actually lets 'foo' asSymbol dispatch (rather than fail straight to
// doesNotUnderstand), and that objmem.Memory.Intern answers the same Oop
// both times -- the Go-level Ref equality a "==" send would itself reduce
// to, since Symbols carry no separate identity primitive.
func TestSymbolInternIdentity(t *testing.T) {
	mem := objmem.NewMemory(4096)
	stringClass := chunktext.DefineClass(mem, chunktext.ClassDef{Super: "nil", Name: "String"})
	installMethod(t, mem, stringClass, nil, "asSymbol ^<83 self>")

	ip := NewInterp(mem)
	a := runDoIt(t, ip, oop.Nil, nil, oop.Nil, "goDoIt ^'foo' asSymbol")
	b := runDoIt(t, ip, oop.Nil, nil, oop.Nil, "goDoIt ^'foo' asSymbol")

	if a != b {
		t.Fatalf("'foo' asSymbol interned to different Oops: %v vs %v", a, b)
	}
	if mem.CString(a) != "foo" {
		t.Fatalf("interned symbol text = %q, want foo", mem.CString(a))
	}
}
