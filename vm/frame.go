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

// Package vm is the bytecode interpreter: frame layout and stack
// management live here in frame.go, the dispatch loop in interp.go,
// method lookup and its cache in lookup.go/cache.go, and the primitive
// vector in primitives.go plus the per-family prim_*.go files.
package vm

import (
	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// frameSlack is the minimum number of additional slots a stack growth adds
// beyond what the entered method needs (§4.6: "at least +128 slots").
const frameSlack = 128

// State is the execution-state record (§4.6): everything the dispatch loop
// needs to run one process, re-derived from the process's stack Array each
// time a frame is entered or unwound rather than kept as a parallel
// shadow structure. Indices into Stack are 0-based raw element offsets
// (the same indexing GetRef/RawPutRef use), not the 1-based field
// convention other fixed-shape objects use.
type State struct {
	Process oop.Ref
	Stack   oop.Ref // the process's backing Array (objmem.ProcessStack)
	Top     int     // index of the first free slot

	LinkPtr     int     // current frame's base
	Context     oop.Ref // reified Context for this frame, or oop.Nil
	ReturnPoint int     // absolute index the return value lands on
	Method      oop.Ref
	ArgBase     int // absolute index of argument 0 (the receiver)
	TempBase    int // absolute index of temporary 0
	StackBase   int // absolute index the frame's own evaluation stack starts at
	Receiver    oop.Ref

	Literals oop.Ref // the method's literal Array
	Code     []byte  // the method's bytecodes (a direct view, see objmem.Memory.Bytes)

	// IP is the 1-based bytecode offset of the next instruction, matching
	// compile.Compiler's own convention (method entry and every patched
	// branch target are 1-based; Decode wants a 0-based slice index, so
	// callers index Code at IP-1).
	IP int

	pendingArgs int // set by MarkArguments, consumed by the next send
}

// frame field offsets relative to LinkPtr (§4.6).
const (
	fLinkPrev    = 0
	fContext     = 1
	fReturnPoint = 2
	fMethod      = 3
	fBytecodeOff = 4
	fFixedCount  = 5 // temporaries begin immediately after these five slots
)

// loadFrame re-derives every State field that depends on LinkPtr, after a
// send constructs a new frame or a return unwinds to a previous one.
//
// A frame whose Context field is nil addresses its arguments/temporaries
// directly relative to LinkPtr/ReturnPoint (§4.6's plain "stack-allocated
// frame"). A frame whose Context is already populated instead takes
// ArgBase/TempBase from that Context object's own recorded positions --
// this is how a Block activation (built by primBlockCall) sees the
// variables of the method that created it, even though the block's own
// frame header sits far above that method's, sharing nothing but the
// variable addresses themselves (§4.6's "Block value"). Such a frame still
// owns a private evaluation stack starting right after its own header,
// since pushing/popping expression results must never perturb the
// suspended caller's region those borrowed addresses point into.
func (s *State) loadFrame(m *objmem.Memory) {
	s.Context = m.GetRef(s.Stack, s.LinkPtr+fContext)
	s.ReturnPoint = int(m.GetRef(s.Stack, s.LinkPtr+fReturnPoint).Int())
	s.Method = m.GetRef(s.Stack, s.LinkPtr+fMethod)
	s.IP = int(m.GetRef(s.Stack, s.LinkPtr+fBytecodeOff).Int())
	s.Literals = m.Field(s.Method, objmem.MethodLiterals)
	s.Code = m.Bytes(m.Field(s.Method, objmem.MethodBytecodes))

	if oop.IsNil(s.Context) {
		s.ArgBase = s.ReturnPoint
		s.TempBase = s.LinkPtr + fFixedCount
		tempSize := int(m.Field(s.Method, objmem.MethodTempSize).Int())
		s.StackBase = s.TempBase + tempSize
	} else {
		s.ArgBase = int(m.Field(s.Context, objmem.ContextArguments).Int())
		s.TempBase = int(m.Field(s.Context, objmem.ContextTemporaries).Int())
		s.StackBase = s.LinkPtr + fFixedCount
	}
	s.Receiver = m.GetRef(s.Stack, s.ArgBase)
}

// storeFrame writes the IP and link back into the stack frame header, used
// before a send (so the callee's eventual return finds the right resume
// point) and before persisting a time-sliced process (§4.6).
func (s *State) storeFrame(m *objmem.Memory) {
	m.RawPutRef(s.Stack, s.LinkPtr+fBytecodeOff, oop.SmallInt(int64(s.IP)))
}

// push/pop operate on the live evaluation stack using the untraced write
// path (§4.1: interpreter stack writes are RawPutRef, not StoreRef). The
// stack Array itself is not kept Volatile: storing it into its Process's
// stack field clears that flag, so it stays live through its Process.
func (s *State) push(m *objmem.Memory, v oop.Ref) {
	m.RawPutRef(s.Stack, s.Top, v)
	s.Top++
}

func (s *State) pop(m *objmem.Memory) oop.Ref {
	s.Top--
	return m.GetRef(s.Stack, s.Top)
}

func (s *State) top0(m *objmem.Memory) oop.Ref {
	return m.GetRef(s.Stack, s.Top-1)
}

// ensureRoom grows the process stack Array when fewer than need slots
// remain above Top (enterFrame asks for the 5 fixed frame slots plus
// tempSize+stackSize plus frameSlack; §4.6), copying the live
// frame chain onto a fresh, larger Array and re-deriving every frame
// pointer relative to it (frame offsets are all Stack-relative, so a copy
// preserves them unchanged).
func (s *State) ensureRoom(m *objmem.Memory, need int) {
	cap := m.Count(s.Stack)
	if cap-s.Top >= need {
		return
	}
	grow := need + frameSlack
	newStack := m.AllocRef(cap + grow)
	for i := 0; i < s.Top; i++ {
		m.RawPutRef(newStack, i, m.GetRef(s.Stack, i))
	}
	s.Stack = newStack
	m.SetField(s.Process, objmem.ProcessStack, newStack)
}

// enterFrame constructs a new frame above the nargsPlus1 receiver+argument
// values already sitting at the top of the stack (the send convention:
// MarkArguments marks how many are there, SendMessage resolves the method
// and calls this), reserving temporary slots zeroed to nil and leaving the
// evaluation stack empty.
func (s *State) enterFrame(m *objmem.Memory, method oop.Ref, nargsPlus1 int) {
	tempSize := int(m.Field(method, objmem.MethodTempSize).Int())
	stackSize := int(m.Field(method, objmem.MethodStackSize).Int())
	s.ensureRoom(m, fFixedCount+tempSize+stackSize+frameSlack)

	returnPoint := s.Top - nargsPlus1
	newLink := s.Top

	prevLink := s.LinkPtr
	m.RawPutRef(s.Stack, newLink+fLinkPrev, oop.SmallInt(int64(prevLink)))
	m.RawPutRef(s.Stack, newLink+fContext, oop.Nil)
	m.RawPutRef(s.Stack, newLink+fReturnPoint, oop.SmallInt(int64(returnPoint)))
	m.RawPutRef(s.Stack, newLink+fMethod, method)
	m.RawPutRef(s.Stack, newLink+fBytecodeOff, oop.SmallInt(1))
	for i := 0; i < tempSize; i++ {
		m.RawPutRef(s.Stack, newLink+fFixedCount+i, oop.Nil)
	}

	s.Top = newLink + fFixedCount + tempSize
	s.LinkPtr = newLink
	s.loadFrame(m)
}

// enterBlockFrame constructs a new frame for evaluating a Block (§4.6's
// "Block value"): ctx is the Context captured when the block literal was
// built, already holding the creating activation's own argument/temporary
// base (so the new frame's variable reads/writes reach those, not
// anything of its own -- see loadFrame). The nargsPlus1 values already on
// the stack (the block receiver plus its actual arguments) are consumed
// exactly like an ordinary send; method is the block's own enclosing
// Method (bytecodes/literals are shared with it), and bytecodeOffset is
// the block's entry point within that shared code.
func (s *State) enterBlockFrame(m *objmem.Memory, ctx, method oop.Ref, bytecodeOffset, nargsPlus1 int) {
	s.ensureRoom(m, fFixedCount+frameSlack)

	returnPoint := s.Top - nargsPlus1
	newLink := s.Top

	prevLink := s.LinkPtr
	m.RawPutRef(s.Stack, newLink+fLinkPrev, oop.SmallInt(int64(prevLink)))
	m.RawPutRef(s.Stack, newLink+fContext, ctx)
	m.RawPutRef(s.Stack, newLink+fReturnPoint, oop.SmallInt(int64(returnPoint)))
	m.RawPutRef(s.Stack, newLink+fMethod, method)
	m.RawPutRef(s.Stack, newLink+fBytecodeOff, oop.SmallInt(int64(bytecodeOffset)))

	s.Top = newLink + fFixedCount
	s.LinkPtr = newLink
	s.loadFrame(m)
}

// unwind pops the stack down to returnPoint, pushes result there, restores
// the previous linkPointer, and reports whether a caller frame remains
// (false means the process has finished, §4.6's "not runnable").
func (s *State) unwind(m *objmem.Memory, result oop.Ref) bool {
	prevLink := int(m.GetRef(s.Stack, s.LinkPtr+fLinkPrev).Int())
	returnPoint := s.ReturnPoint

	m.RawPutRef(s.Stack, returnPoint, result)
	s.Top = returnPoint + 1
	s.LinkPtr = prevLink

	if prevLink == 0 {
		return false
	}
	s.loadFrame(m)
	return true
}

// reifyContext builds (on first use within this activation) a heap Context
// snapshotting the frame's method/link pointer and redirects subsequent
// `currentInterpreter`/non-local-return reads to it (§4.6). Repeat uses
// within the same activation return the same object.
func (s *State) reifyContext(m *objmem.Memory) oop.Ref {
	if !oop.IsNil(s.Context) {
		return s.Context
	}
	ctx := m.AllocRef(objmem.ContextShapeFields)
	m.SetField(ctx, objmem.ContextLinkPtr, oop.SmallInt(int64(s.LinkPtr)))
	m.SetField(ctx, objmem.ContextMethod, s.Method)
	m.SetField(ctx, objmem.ContextArguments, oop.SmallInt(int64(s.ArgBase)))
	m.SetField(ctx, objmem.ContextTemporaries, oop.SmallInt(int64(s.TempBase)))
	if class := m.Global("Context"); !oop.IsNil(class) {
		m.SetClass(ctx, class)
	}
	m.RawPutRef(s.Stack, s.LinkPtr+fContext, ctx)
	s.Context = ctx
	return ctx
}
