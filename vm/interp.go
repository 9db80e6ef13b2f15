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
	"bufio"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/ZYSF/Smalltalk-Archive/compile"
	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// SystemError is returned by Run for conditions the interpreter treats as
// fatal to the running process (no frame left to report the failure to,
// or a primitive bytecode naming a number outside the table).
type SystemError struct {
	Msg string
}

func (e *SystemError) Error() string { return "vm: " + e.Msg }

// Status is what Run reports about a process at the end of one execution
// slice (§4.6).
type Status int

const (
	// StatusRunnable means maxsteps was exhausted with the process still
	// mid-computation; its state has been persisted back onto the Process
	// object and a later Run call resumes it.
	StatusRunnable Status = iota
	// StatusFinished means the process unwound its outermost frame (the
	// equivalent of "not runnable" in §4.6 -- nothing further to execute).
	StatusFinished
	// StatusFailed means doesNotUnderstand itself went unresolved, or a
	// *SystemError occurred; the process cannot make progress.
	StatusFailed
)

// Interp runs processes against one object memory. It owns the method
// cache and the primitive vector; both are safe to reuse across many
// Process objects booted from the same image.
type Interp struct {
	Mem   *objmem.Memory
	Trace bool // mirrors the source's primTrace toggle (§4.8, primitive 151)

	cache      methodCache
	prims      [compile.MaxPrimitive]primFunc
	blockClass oop.Ref // set by SetBlockClass; value-family sends special-case it

	// files backs the File primitives' MAXFILES-style descriptor table
	// (§4.8 primitives 120-158): the image addresses a file by the same
	// small integer across open/close/getString/print/chunk calls, exactly
	// as original_source/pdst.c's fp[MAXFILES] array does, just keyed by a
	// Go map instead of a fixed C array since we don't know the image's
	// chosen descriptor numbers ahead of time.
	files map[int64]*os.File

	// readers caches a buffered reader per open descriptor so repeated
	// getString/getChunk primitive calls against the same handle pick up
	// where the last call left off instead of re-wrapping (and losing
	// already-buffered bytes) on every call.
	readers map[int64]*bufio.Reader

	// Transcript mirrors ByteArray>>logChunk output (§4.8 primitive 154),
	// the chunk-formatted session log cmd/gst stamps with a uuid per run.
	// nil means no transcript is attached, matching the source's logInit
	// failing when no log file was ever opened.
	Transcript io.Writer

	// watching mirrors original_source/pdst.c's global "watching" flag,
	// toggled by primitive 5 (prim_object.go's primFlipWatching). When set,
	// dispatchSend diverts any send whose resolved method carries a non-nil
	// watch field to #watchWith: against the method itself instead of
	// entering the method's own frame (§4.6).
	watching      bool
	watchSelector oop.Ref

	// interrupted is set from a signal.Notify goroutine started by
	// WatchInterrupts and polled cooperatively by primExecute between small
	// bytecode slices, the one place spec'd to answer "not runnable" on
	// SIGINT (§7).
	interrupted int32
}

// NewInterp prepares an interpreter over mem with every primitive in
// compile/primitives.go's catalog registered.
func NewInterp(mem *objmem.Memory) *Interp {
	ip := &Interp{
		Mem:     mem,
		files:   make(map[int64]*os.File),
		readers: make(map[int64]*bufio.Reader),
	}
	ip.watchSelector = mem.Intern("watchWith:")
	ip.registerPrimitives()
	return ip
}

// WatchInterrupts starts a goroutine that turns the process's first SIGINT
// into a flag primExecute polls between bytecode slices (§7's "User
// interrupt | SIGINT during execute" row). It does not touch the top-level
// Run loop cmd/gst drives directly -- that loop is already cooperative
// between maxsteps slices and has its own os.Exit-driven shutdown path.
func (ip *Interp) WatchInterrupts() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		for range c {
			atomic.StoreInt32(&ip.interrupted, 1)
		}
	}()
}

// takeInterrupt reports and clears a pending interrupt flagged by
// WatchInterrupts.
func (ip *Interp) takeInterrupt() bool {
	return atomic.SwapInt32(&ip.interrupted, 0) != 0
}

// SetBlockClass tells the interpreter which bootstrap class identifies a
// Block instance, so sends of value/value:/value:value:/value:value:value:
// can be special-cased (§4.6; see prim_control.go's primBlockCall doc
// comment for why this bypasses an ordinary method lookup).
func (ip *Interp) SetBlockClass(class oop.Ref) { ip.blockClass = class }

// NewState builds the execution-state record for process (§4.6), loading
// its persisted stack/linkPointer.
func (ip *Interp) NewState(process oop.Ref) *State {
	s := &State{
		Process: process,
		Stack:   ip.Mem.Field(process, objmem.ProcessStack),
		Top:     int(ip.Mem.Field(process, objmem.ProcessStackTop).Int()),
		LinkPtr: int(ip.Mem.Field(process, objmem.ProcessLinkPtr).Int()),
	}
	if s.LinkPtr != 0 {
		s.loadFrame(ip.Mem)
	}
	return s
}

// persist writes the execution state back onto the Process object, the
// snapshot §4.6's time-slice handoff relies on.
func (s *State) persist(m *objmem.Memory) {
	m.SetField(s.Process, objmem.ProcessStackTop, oop.SmallInt(int64(s.Top)))
	m.SetField(s.Process, objmem.ProcessLinkPtr, oop.SmallInt(int64(s.LinkPtr)))
	if s.LinkPtr != 0 {
		s.storeFrame(m)
	}
}

// Run executes process for up to maxsteps bytecodes (§4.6's time-slice
// budget), returning why it stopped. A *SystemError wraps a condition the
// process itself cannot recover from (doesNotUnderstand unresolved, an
// instruction pointer outside the method's bytecode, a primitive number
// outside the table).
func (ip *Interp) Run(process oop.Ref, maxsteps int) (Status, error) {
	s := ip.NewState(process)
	if s.LinkPtr == 0 {
		return StatusFinished, nil
	}

	for steps := maxsteps; steps > 0; steps-- {
		status, err := ip.step(s)
		if err != nil {
			s.persist(ip.Mem)
			return StatusFailed, err
		}
		if status != StatusRunnable {
			s.persist(ip.Mem)
			return status, nil
		}
	}
	s.persist(ip.Mem)
	return StatusRunnable, nil
}

var errStackUnderflow = errors.New("vm: evaluation stack underflow")

// step decodes and executes exactly one bytecode, reporting StatusFinished
// once the outermost frame unwinds.
func (ip *Interp) step(s *State) (Status, error) {
	if s.IP-1 < 0 || s.IP-1 >= len(s.Code) {
		return StatusFailed, &SystemError{Msg: "instruction pointer out of range"}
	}
	d := compile.Decode(s.Code, s.IP-1)
	s.IP += d.Len
	m := ip.Mem

	switch d.Op {
	case compile.PushInstance:
		s.push(m, m.GetRef(s.Receiver, d.Arg))
	case compile.PushArgument:
		s.push(m, m.GetRef(s.Stack, s.ArgBase+d.Arg))
	case compile.PushTemporary:
		s.push(m, m.GetRef(s.Stack, s.TempBase+d.Arg))
	case compile.PushLiteral:
		s.push(m, ip.pushLiteral(s, m.GetRef(s.Literals, d.Arg)))
	case compile.PushConstant:
		s.push(m, ip.pushConstant(s, d.Arg))
	case compile.AssignInstance:
		v := s.top0(m)
		m.StoreRef(s.Receiver, d.Arg, v)
	case compile.AssignTemporary:
		v := s.top0(m)
		m.RawPutRef(s.Stack, s.TempBase+d.Arg, v)
	case compile.MarkArguments:
		s.pendingArgs = d.Arg
	case compile.SendMessage:
		selector := m.GetRef(s.Literals, d.Arg)
		return StatusRunnable, ip.dispatchSend(s, selector, s.pendingArgs, false)
	case compile.SendUnary:
		selector := m.GetRef(s.Literals, d.Arg)
		return StatusRunnable, ip.dispatchSend(s, selector, 1, false)
	case compile.SendBinary:
		selector := m.GetRef(s.Literals, d.Arg)
		return StatusRunnable, ip.dispatchSend(s, selector, 2, false)
	case compile.DoPrimitive:
		return StatusRunnable, ip.doPrimitive(s, d.Arg, d.Extra)
	case compile.DoSpecial:
		return ip.doSpecial(s, compile.Special(d.Arg), d.Extra)
	default:
		return StatusFailed, &SystemError{Msg: "unsupported bytecode"}
	}
	return StatusRunnable, nil
}

func (ip *Interp) pushConstant(s *State, arg int) oop.Ref {
	switch arg {
	case compile.ConstZero:
		return oop.SmallInt(0)
	case compile.ConstOne:
		return oop.SmallInt(1)
	case compile.ConstTwo:
		return oop.SmallInt(2)
	case compile.ConstMinusOne:
		return oop.SmallInt(-1)
	case compile.ConstContext:
		return s.reifyContext(ip.Mem)
	case compile.ConstNil:
		return oop.Nil
	case compile.ConstTrue:
		return oop.True
	case compile.ConstFalse:
		return oop.False
	default:
		log.Panicf("vm: invalid PushConstant operand %d", arg)
		return oop.Nil
	}
}

// pushLiteral returns lit unchanged unless it is a block template (§4.5's
// block literal, built once by the compiler and shared by every literal
// Array that references it): those are cloned on every push and stamped
// with the current activation's reified Context, so that two concurrent
// activations evaluating the same textual block (recursion, or two
// iterations of a loop holding onto a block value) never alias each
// other's non-local-return target or captured variables. This folds
// together what the source VM split across BlockNode>>newBlock at compile
// time and primBlockClone at every literal push -- there is no separate
// clone primitive bytecode here, just this push-time step.
func (ip *Interp) pushLiteral(s *State, lit oop.Ref) oop.Ref {
	if oop.IsNil(ip.blockClass) || lit.IsSmallInt() || ip.Mem.ClassOf(lit) != ip.blockClass {
		return lit
	}
	ctx := s.reifyContext(ip.Mem)
	clone := ip.Mem.AllocRef(objmem.BlockShapeFields)
	ip.Mem.SetClass(clone, ip.blockClass)
	ip.Mem.SetField(clone, objmem.BlockContext, ctx)
	ip.Mem.SetField(clone, objmem.BlockArgumentCount, ip.Mem.Field(lit, objmem.BlockArgumentCount))
	ip.Mem.SetField(clone, objmem.BlockArgumentLocation, ip.Mem.Field(lit, objmem.BlockArgumentLocation))
	ip.Mem.SetField(clone, objmem.BlockBytecodePosition, ip.Mem.Field(lit, objmem.BlockBytecodePosition))
	return clone
}

// doPrimitive executes the primitive numbered primNumber against the
// argCount values already on top of the stack (in push order, receiver
// first if the caller arranged it that way -- the primitive doesn't know
// or care), pops them, and pushes whatever it returns, including oop.Nil
// on failure (§4.8: failure is a return-value convention, not a distinct
// control path -- calling Smalltalk code decides what nil means).
func (ip *Interp) doPrimitive(s *State, argCount, primNumber int) error {
	if primNumber < 0 || primNumber >= len(ip.prims) || ip.prims[primNumber] == nil {
		return &SystemError{Msg: "unimplemented primitive"}
	}
	if s.Top < argCount {
		return errStackUnderflow
	}
	base := s.Top - argCount
	args := make([]oop.Ref, argCount)
	for i := 0; i < argCount; i++ {
		args[i] = ip.Mem.GetRef(s.Stack, base+i)
	}
	if ip.Trace {
		log.Printf("vm: primitive %d args=%v", primNumber, args)
	}
	result, _ := ip.prims[primNumber](ip, s, args)
	s.Top = base
	s.push(ip.Mem, result)
	// A primitive that redirected the frame itself (block value) has
	// already called loadFrame; re-deriving here for every primitive
	// would be wrong (it would discard that redirection), so only
	// primitives that do so are responsible for leaving State consistent.
	return nil
}

// doSpecial executes one DoSpecial sub-operation (§4.6, §4.5).
func (ip *Interp) doSpecial(s *State, sub compile.Special, extra int) (Status, error) {
	m := ip.Mem
	switch sub {
	case compile.SelfReturn:
		return ip.leaveAndAnswer(s, s.Receiver)
	case compile.StackReturn:
		return ip.leaveAndAnswer(s, s.pop(m))
	case compile.Duplicate:
		s.push(m, s.top0(m))
		return StatusRunnable, nil
	case compile.PopTop:
		s.pop(m)
		return StatusRunnable, nil
	case compile.Branch:
		s.IP = extra
		return StatusRunnable, nil
	case compile.BranchIfTrue:
		cond := s.pop(m)
		if cond == oop.True {
			s.push(m, cond)
			s.IP = extra
		}
		return StatusRunnable, nil
	case compile.BranchIfFalse:
		cond := s.pop(m)
		if cond == oop.False {
			s.push(m, cond)
			s.IP = extra
		}
		return StatusRunnable, nil
	case compile.AndBranch:
		cond := s.pop(m)
		if cond == oop.False {
			s.push(m, cond)
			s.IP = extra
		}
		return StatusRunnable, nil
	case compile.OrBranch:
		cond := s.pop(m)
		if cond == oop.True {
			s.push(m, cond)
			s.IP = extra
		}
		return StatusRunnable, nil
	case compile.SendToSuper:
		selector := m.GetRef(s.Literals, extra)
		return StatusRunnable, ip.dispatchSend(s, selector, s.pendingArgs, true)
	default:
		return StatusFailed, &SystemError{Msg: "unsupported DoSpecial sub-operation"}
	}
}

// leaveAndAnswer is the shared tail of SelfReturn/StackReturn (§4.6): pop
// to returnPoint, push result, restore the caller's linkPointer, and
// report whether the process has any frame left to resume.
func (ip *Interp) leaveAndAnswer(s *State, result oop.Ref) (Status, error) {
	if !s.unwind(ip.Mem, result) {
		return StatusFinished, nil
	}
	return StatusRunnable, nil
}

// dispatchSend resolves and invokes one message send: nargsPlus1 values
// (receiver then arguments, in that order) already sit on top of the
// stack. super, when true, starts the lookup at the executing method's
// own class's superclass rather than the receiver's class (§4.5
// SendToSuper).
func (ip *Interp) dispatchSend(s *State, selector oop.Ref, nargsPlus1 int, super bool) error {
	m := ip.Mem
	if s.Top < nargsPlus1 {
		return errStackUnderflow
	}
	argBase := s.Top - nargsPlus1
	receiver := m.GetRef(s.Stack, argBase)

	var class oop.Ref
	if super {
		methodClass := m.Field(s.Method, objmem.MethodClass)
		super := m.Field(methodClass, objmem.ClassSuperClass)
		if oop.IsNil(super) {
			class = methodClass
		} else {
			class = super
		}
	} else {
		class = ip.receiverClass(receiver)
	}

	if handled, err := ip.tryBlockValue(s, class, selector, receiver, nargsPlus1); handled || err != nil {
		return err
	}
	if handled, err := ip.trySmallIntArithmetic(s, class, selector, receiver, nargsPlus1); handled || err != nil {
		return err
	}

	_, method, ok := ip.lookup(selector, class)
	if !ok {
		args := make([]oop.Ref, nargsPlus1-1)
		for i := range args {
			args[i] = m.GetRef(s.Stack, argBase+1+i)
		}
		s.Top = argBase
		if !ip.sendDoesNotUnderstand(s, class, receiver, selector, args) {
			return &SystemError{Msg: "message:notRecognizedWithArguments: itself unresolved"}
		}
		return nil
	}
	if ip.watching {
		if watch := m.Field(method, objmem.MethodWatch); !oop.IsNil(watch) {
			return ip.dispatchWatch(s, method, nargsPlus1)
		}
	}
	s.enterFrame(m, method, nargsPlus1)
	return nil
}

// dispatchWatch diverts a send whose method is being watched (§4.6):
// instead of entering that method's own frame, the receiver and arguments
// already on the stack are collected into a fresh Array, and the send is
// replaced with #watchWith: sent to the method object itself, so a
// Smalltalk-level watcher can inspect (and choose to forward) the original
// call. Grounded on original_source/pdst.c's lookupWatchSelector.
func (ip *Interp) dispatchWatch(s *State, method oop.Ref, nargsPlus1 int) error {
	m := ip.Mem
	argBase := s.Top - nargsPlus1
	call := m.AllocRef(nargsPlus1)
	for i := 0; i < nargsPlus1; i++ {
		m.StoreRef(call, i, m.GetRef(s.Stack, argBase+i))
	}
	s.Top = argBase
	s.push(m, method)
	s.push(m, call)
	return ip.dispatchSend(s, ip.watchSelector, 2, false)
}

// receiverClass returns the class used to start a lookup, going through
// the SmallInteger/Float bootstrap globals for objects that have no class
// field of their own (§9: "callers needing SmallInteger's class look it up
// by name instead").
func (ip *Interp) receiverClass(receiver oop.Ref) oop.Ref {
	if receiver.IsSmallInt() {
		return ip.Mem.Global("SmallInteger")
	}
	return ip.Mem.ClassOf(receiver)
}
