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

package compile

import (
	"testing"

	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

func compileMethod(t *testing.T, mem *objmem.Memory, instVars []string, src string) oop.Ref {
	t.Helper()
	c := NewCompiler(mem, oop.Nil, instVars)
	m, err := c.CompileMethod(src)
	if err != nil {
		t.Fatalf("CompileMethod(%q): %v", src, err)
	}
	return m
}

func methodCode(mem *objmem.Memory, m oop.Ref) []byte {
	bc := mem.Field(m, objmem.MethodBytecodes)
	n := mem.Count(bc)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = mem.ByteAt(bc, i+1)
	}
	return out
}

func TestUnaryPatternSelfReturn(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "foo ^self")

	sel := mem.Field(m, objmem.MethodMessage)
	if mem.CString(sel) != "foo" {
		t.Fatalf("selector = %q, want foo", mem.CString(sel))
	}

	code := methodCode(mem, m)
	d := Decode(code, 0)
	if d.Op != PushArgument || d.Arg != 0 {
		t.Fatalf("first instruction = %+v, want PushArgument(0)", d)
	}
	d2 := Decode(code, d.Len)
	if d2.Op != DoSpecial || Special(d2.Arg) != StackReturn {
		t.Fatalf("second instruction = %+v, want DoSpecial(StackReturn)", d2)
	}
}

func TestImplicitSelfReturnAppended(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "foo 1")
	code := methodCode(mem, m)

	// last instruction should be DoSpecial(SelfReturn); walk to find it.
	pos := 0
	var last Decoded
	for pos < len(code) {
		last = Decode(code, pos)
		pos += last.Len
	}
	if last.Op != DoSpecial || Special(last.Arg) != SelfReturn {
		t.Fatalf("trailing instruction = %+v, want DoSpecial(SelfReturn)", last)
	}
}

func TestKeywordPatternRegistersArguments(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "at: k put: v ^k")

	sel := mem.Field(m, objmem.MethodMessage)
	if mem.CString(sel) != "at:put:" {
		t.Fatalf("selector = %q, want at:put:", mem.CString(sel))
	}

	code := methodCode(mem, m)
	d := Decode(code, 0)
	// k is the first declared argument -> PushArgument(1) (0 is the receiver).
	if d.Op != PushArgument || d.Arg != 1 {
		t.Fatalf("first instruction = %+v, want PushArgument(1)", d)
	}
}

func TestBinaryPatternArgument(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "+ n ^n")
	sel := mem.Field(m, objmem.MethodMessage)
	if mem.CString(sel) != "+" {
		t.Fatalf("selector = %q, want +", mem.CString(sel))
	}
}

func TestTemporariesDeclaredAndAssigned(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "foo |a b| a := 1. b := a. ^b")
	if got := mem.Field(m, objmem.MethodTempSize); oop.SmallInt(2) != got {
		t.Fatalf("temp size = %v, want 2", got)
	}
}

func TestInstanceVariableAccessAndAssignment(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, []string{"x", "y"}, "foo x := y. ^x")
	code := methodCode(mem, m)

	d := Decode(code, 0)
	if d.Op != PushInstance || d.Arg != 1 { // y is index 1
		t.Fatalf("first instruction = %+v, want PushInstance(1)", d)
	}
	d2 := Decode(code, d.Len)
	if d2.Op != AssignInstance || d2.Arg != 0 { // x is index 0
		t.Fatalf("second instruction = %+v, want AssignInstance(0)", d2)
	}
}

func TestSmallIntLiteralFoldsToConstant(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "foo ^1")
	code := methodCode(mem, m)
	d := Decode(code, 0)
	if d.Op != PushConstant || d.Arg != ConstOne {
		t.Fatalf("first instruction = %+v, want PushConstant(ConstOne)", d)
	}
}

func TestLargeIntLiteralGoesThroughLiteralTable(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "foo ^42")
	code := methodCode(mem, m)
	d := Decode(code, 0)
	if d.Op != PushLiteral {
		t.Fatalf("first instruction = %+v, want PushLiteral", d)
	}
	lits := mem.Field(m, objmem.MethodLiterals)
	lit := mem.GetRef(lits, d.Arg)
	if !lit.IsSmallInt() || lit.Int() != 42 {
		t.Fatalf("literal = %v, want SmallInt(42)", lit)
	}
}

func TestFloatLiteral(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "foo ^3.5")
	code := methodCode(mem, m)
	d := Decode(code, 0)
	if d.Op != PushLiteral {
		t.Fatalf("first instruction = %+v, want PushLiteral", d)
	}
	lits := mem.Field(m, objmem.MethodLiterals)
	lit := mem.GetRef(lits, d.Arg)
	if mem.FloatValue(lit) != 3.5 {
		t.Fatalf("literal float = %v, want 3.5", mem.FloatValue(lit))
	}
}

func TestStringLiteral(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "foo ^'hi'")
	lits := mem.Field(m, objmem.MethodLiterals)
	if n := mem.Count(lits); n != 1 {
		t.Fatalf("literal count = %d, want 1", n)
	}
	if got := mem.CString(mem.GetRef(lits, 0)); got != "hi" {
		t.Fatalf("literal = %q, want hi", got)
	}
}

func TestKeywordSendEmitsMarkArgumentsAndSendMessage(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "foo ^1 at: 2 put: 3")
	code := methodCode(mem, m)

	// walk the instructions looking for MarkArguments then SendMessage.
	var ops []Op
	for pos := 0; pos < len(code); {
		d := Decode(code, pos)
		ops = append(ops, d.Op)
		pos += d.Len
	}
	foundMark, foundSend := false, false
	for i, op := range ops {
		if op == MarkArguments && i+1 < len(ops) && ops[i+1] == SendMessage {
			foundMark, foundSend = true, true
		}
	}
	if !foundMark || !foundSend {
		t.Fatalf("instructions = %v, want MarkArguments followed by SendMessage", ops)
	}
}

func TestSuperSendEmitsDoSpecial(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "foo ^super bar")
	code := methodCode(mem, m)

	var found bool
	for pos := 0; pos < len(code); {
		d := Decode(code, pos)
		if d.Op == DoSpecial && Special(d.Arg) == SendToSuper {
			found = true
			lits := mem.Field(m, objmem.MethodLiterals)
			sel := mem.GetRef(lits, d.Extra)
			if mem.CString(sel) != "bar" {
				t.Fatalf("super send selector literal = %q, want bar", mem.CString(sel))
			}
		}
		pos += d.Len
	}
	if !found {
		t.Fatalf("instructions %v never emit DoSpecial(SendToSuper)", code)
	}
}

func TestSuperOnlyAppliesToDirectSend(t *testing.T) {
	mem := objmem.NewMemory(4096)
	// "super bar baz" parses as (super bar) baz: only the first send (to
	// super) is a super send; baz is sent to its result ordinarily.
	m := compileMethod(t, mem, nil, "foo ^super bar baz")
	code := methodCode(mem, m)

	var supers, ordinary int
	for pos := 0; pos < len(code); {
		d := Decode(code, pos)
		if d.Op == SendMessage {
			ordinary++
		}
		if d.Op == DoSpecial && Special(d.Arg) == SendToSuper {
			supers++
		}
		pos += d.Len
	}
	if supers != 1 || ordinary != 1 {
		t.Fatalf("super sends = %d, ordinary sends = %d, want 1 and 1", supers, ordinary)
	}
}

func TestBlockLiteralReifiesArgumentsAndSkipsBody(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "foo ^[:x | x] value: 1")
	if got := mem.Field(m, objmem.MethodTempSize); oop.SmallInt(1) != got {
		t.Fatalf("temp size = %v, want 1 (the block's :x slot)", got)
	}

	code := methodCode(mem, m)
	d := Decode(code, 0)
	if d.Op != DoSpecial || Special(d.Arg) != Branch {
		t.Fatalf("first instruction = %+v, want DoSpecial(Branch) skipping the block body", d)
	}
	// the branch target must land past the inlined body, on a PushLiteral
	// for the Block object.
	target := d.Extra - 1 // stored 1-based
	if target < 0 || target >= len(code) {
		t.Fatalf("branch target %d out of range (len %d)", target, len(code))
	}
	landed := Decode(code, target)
	if landed.Op != PushLiteral {
		t.Fatalf("instruction at branch target = %+v, want PushLiteral(Block)", landed)
	}
}

func TestAssignmentToUndeclaredVariableErrors(t *testing.T) {
	mem := objmem.NewMemory(4096)
	c := NewCompiler(mem, oop.Nil, nil)
	_, err := c.CompileMethod("foo bogus := 1")
	if err == nil {
		t.Fatalf("expected an error assigning to an undeclared variable")
	}
}

func TestGlobalNameCompilesToSymbolLookupSend(t *testing.T) {
	mem := objmem.NewMemory(4096)
	m := compileMethod(t, mem, nil, "foo ^SomeGlobal")
	lits := mem.Field(m, objmem.MethodLiterals)
	found := false
	for i := 0; i < mem.Count(lits); i++ {
		lit := mem.GetRef(lits, i)
		if !oop.IsNil(lit) && mem.CString(lit) == "SomeGlobal" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the global's name interned as a literal Symbol")
	}
}
