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
	"math/rand"

	"github.com/ZYSF/Smalltalk-Archive/compile"
	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// blockValueArgCount maps a value-family selector's text to the argument
// count it denotes, or -1 if selector isn't one of the five (§4.6: Block
// doesn't ship as a compiled class, so dispatchSend recognizes these
// selectors directly rather than through a method dictionary).
func blockValueArgCount(text string) int {
	switch text {
	case "value":
		return 0
	case "value:":
		return 1
	case "value:value:":
		return 2
	case "value:value:value:":
		return 3
	case "value:value:value:value:":
		return 4
	default:
		return -1
	}
}

// tryBlockValue recognizes a value-family send to a Block and, if it
// matches, performs the invocation itself and reports handled=true so
// dispatchSend skips the ordinary method-dictionary lookup entirely (there
// is no compiled Block>>value to find -- see DESIGN.md's "kernel-free
// Block/SmallInteger dispatch" entry).
//
// A Block's own bytecodes address their parameters and the enclosing
// activation's temporaries through the SAME index space (parseBlock
// allocates block-argument names directly into the enclosing method's temp
// array at compile time), so the actual call-site arguments must be
// written into that shared region at BlockArgumentLocation before the new
// frame is entered -- not into the new frame's own area, which has none.
func (ip *Interp) tryBlockValue(s *State, class, selector, receiver oop.Ref, nargsPlus1 int) (bool, error) {
	if oop.IsNil(ip.blockClass) || class != ip.blockClass {
		return false, nil
	}
	want := blockValueArgCount(ip.Mem.CString(selector))
	if want < 0 || want != nargsPlus1-1 {
		return false, nil
	}
	m := ip.Mem
	ctx := m.Field(receiver, objmem.BlockContext)
	if oop.IsNil(ctx) {
		return false, nil
	}
	method := m.Field(ctx, objmem.ContextMethod)
	argLoc := int(m.Field(receiver, objmem.BlockArgumentLocation).Int())
	bytecodeOffset := int(m.Field(receiver, objmem.BlockBytecodePosition).Int())
	tempBase := int(m.Field(ctx, objmem.ContextTemporaries).Int())

	argBase := s.Top - nargsPlus1
	for i := 0; i < want; i++ {
		m.RawPutRef(s.Stack, tempBase+argLoc+i, m.GetRef(s.Stack, argBase+1+i))
	}
	s.enterBlockFrame(m, ctx, method, bytecodeOffset, nargsPlus1)
	return true, nil
}

// primBlockReturn backs the non-local "^" return compiled inside a block
// body (§4.6). args[0] is the value being returned and args[1] the reified
// Context the return targets; patching the CURRENT frame's link-prev and return-point from that
// target's own recorded values redirects the very next StackReturn's
// unwind there, skipping every intervening block activation in one step --
// the same trick original_source/pdst.c's primBlockReturn plays by editing
// processStack in place rather than actually popping frame by frame.
//
// unwind() re-reads link-prev from the stack but trusts the cached
// s.ReturnPoint field for the return point, so that field must be patched
// here too or the very next return would still land on the block's own
// (stale) target instead of the one just installed.
func primBlockReturn(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 2 {
		return oop.Nil, false
	}
	value, ctx := args[0], args[1]
	m := ip.Mem
	j := int(m.Field(ctx, objmem.ContextLinkPtr).Int())
	if m.GetRef(s.Stack, j+fContext) != ctx {
		return oop.Nil, false
	}
	newLinkPrev := m.GetRef(s.Stack, j+fLinkPrev)
	newReturnPoint := m.GetRef(s.Stack, j+fReturnPoint)
	m.RawPutRef(s.Stack, s.LinkPtr+fLinkPrev, newLinkPrev)
	m.RawPutRef(s.Stack, s.LinkPtr+fReturnPoint, newReturnPoint)
	s.ReturnPoint = int(newReturnPoint.Int())
	return value, true
}

// primBlockCall is Context>>returnToBlock: -- it redirects control to the
// context that invoked the block controlled by the receiver, analogous to
// primBlockReturn but simpler: it just retargets the CURRENT frame's own
// context/bytecode-offset fields in place rather than the link chain
// (original_source/pdst.c's primBlockCall, "not quite as tricky").
func primBlockCall(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 2 {
		return oop.Nil, false
	}
	m := ip.Mem
	i := s.LinkPtr
	m.RawPutRef(s.Stack, i+fContext, args[0])
	m.RawPutRef(s.Stack, i+fBytecodeOff, args[1])
	s.loadFrame(m)
	return args[0], true
}

// primBlockClone answers a copy of the receiver Block whose controlling
// context is the argument, kept for primitive-catalog fidelity with
// original_source/pdst.c even though this interpreter's own block
// invocation (tryBlockValue, triggered straight from dispatchSend) never
// calls it -- a compiled method built by some other tool that still emits
// an explicit "clone the block, then send value" pragma sequence would
// reach it here.
func primBlockClone(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 2 {
		return oop.Nil, false
	}
	m := ip.Mem
	clone := m.AllocRef(objmem.BlockShapeFields)
	if !oop.IsNil(ip.blockClass) {
		m.SetClass(clone, ip.blockClass)
	}
	m.SetField(clone, objmem.BlockContext, args[1])
	m.SetField(clone, objmem.BlockArgumentCount, m.Field(args[0], objmem.BlockArgumentCount))
	m.SetField(clone, objmem.BlockArgumentLocation, m.Field(args[0], objmem.BlockArgumentLocation))
	m.SetField(clone, objmem.BlockBytecodePosition, m.Field(args[0], objmem.BlockBytecodePosition))
	return clone, true
}

// primFlushCache is Class>>install:'s primitive half: drop every cache
// entry for the receiver selector (§4.7/§4.8). original_source/pdst.c
// flushes one (selector, class) slot; our cache is keyed the same way but
// flush(selector) clears it for every class at once, which is always safe
// (it just forces a few extra re-lookups) and needs no second index.
func primFlushCache(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 1 {
		return oop.Nil, false
	}
	ip.cache.flush(args[0])
	return args[0], true
}

// classInstVars walks class's superclass chain, outermost ancestor first,
// collecting each Variables Array's Symbol names into the flat instVars
// list compile.NewCompiler expects (self's own variables are appended
// after its ancestors', so name i is field slot i, numbered from the root
// class's first variable).
func classInstVars(m *objmem.Memory, class oop.Ref) []string {
	var chain []oop.Ref
	for c := class; !oop.IsNil(c); c = m.Field(c, objmem.ClassSuperClass) {
		chain = append(chain, c)
	}
	var names []string
	for i := len(chain) - 1; i >= 0; i-- {
		vars := m.Field(chain[i], objmem.ClassVariables)
		if oop.IsNil(vars) {
			continue
		}
		for j := 1; j <= m.Count(vars); j++ {
			names = append(names, m.CString(m.Field(vars, j)))
		}
	}
	return names
}

// primParse is Class>>parse:, compiling source text into a fresh Method,
// installing it under its own selector, and flushing the cache for that
// selector. original_source/pdst.c's primParse fills a pre-allocated
// Method object passed as a third argument; compile.Compiler always
// builds a fresh one, so that argument has no analogue here.
func primParse(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 2 || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	class := args[0]
	source := ip.Mem.CString(args[1])
	c := compile.NewCompiler(ip.Mem, class, classInstVars(ip.Mem, class))
	method, err := c.CompileMethod(source)
	if err != nil {
		return oop.False, true
	}
	ip.Mem.SetField(method, objmem.MethodClass, class)
	selector := ip.Mem.Field(method, objmem.MethodMessage)
	ip.installMethod(class, selector, method)
	return oop.True, true
}

// primSetTimeSlice always fails; our scheduler (cmd/gst) counts Run's own
// maxsteps instead of a primitive-maintained counter (§4.8, §9).
func primSetTimeSlice(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	return oop.Nil, false
}

// primSetSeed reseeds the process-wide PRNG primRandom draws from.
func primSetSeed(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	v, ok := smallIntArg(args, 0)
	if !ok {
		return oop.Nil, false
	}
	rand.Seed(v)
	return args[0], true
}

// executeSlice bounds how many bytecodes primExecute runs between interrupt
// checks; small enough that a SIGINT during a long-running sub-process is
// noticed promptly, large enough that the interrupt check itself stays
// off the hot path.
const executeSlice = 256

// primExecute runs a sub-process (a Process object, §4.6) to completion or
// exhaustion of its own time slice, answering the process. Unlike
// original_source/pdst.c's primExecute (which relies on SIGVTALRM/setjmp to
// interrupt a runaway primitive), this polls the cooperative flag
// WatchInterrupts' signal.Notify goroutine sets, between slices of
// executeSlice bytecodes, and maps a pending interrupt onto an ordinary
// primitive failure -- §7's "User interrupt | SIGINT during execute | Long-
// jump out, return 'not runnable'" row, realized as the same nil-answer
// convention every other primitive failure already uses.
func primExecute(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool) {
	if len(args) < 2 || args[0].IsSmallInt() {
		return oop.Nil, false
	}
	process := args[0]
	steps, ok := smallIntArg(args, 1)
	if !ok || steps <= 0 {
		steps = 1000
	}

	for remaining := int(steps); remaining > 0; {
		if ip.takeInterrupt() {
			return oop.Nil, false
		}
		n := executeSlice
		if n > remaining {
			n = remaining
		}
		status, err := ip.Run(process, n)
		if err != nil {
			return oop.Nil, false
		}
		if status != StatusRunnable {
			break
		}
		remaining -= n
	}
	return process, true
}
