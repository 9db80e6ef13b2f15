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
	"github.com/ZYSF/Smalltalk-Archive/compile"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// primFunc is one primitive's handler: args holds exactly the values the
// DoPrimitive bytecode (or a special-cased send, see trySmallIntArithmetic
// in prim_integer.go and tryBlockValue in prim_control.go)
// collected, in push order. The bool result is unused by the dispatch
// loop today (every primitive's success/failure is already carried by its
// oop.Ref result, oop.Nil meaning failure per §4.8) but is kept so a
// primitive can be told apart from a registration gap during testing.
type primFunc func(ip *Interp, s *State, args []oop.Ref) (oop.Ref, bool)

// registerPrimitives wires every named entry of compile/primitives.go's
// catalog to its Go handler. Numbers compile/primitives.go leaves unnamed
// (wired to unsupportedPrim in original_source/pdst.c's primitiveVector)
// are left nil here too, and doPrimitive reports them as a *SystemError.
func (ip *Interp) registerPrimitives() {
	reg := func(n int, f primFunc) { ip.prims[n] = f }

	reg(compile.PrimAvailCount, primAvailCount)
	reg(compile.PrimRandom, primRandom)
	reg(compile.PrimFlipWatching, primFlipWatching)
	reg(compile.PrimExit, primExit)
	reg(compile.PrimClass, primClass)
	reg(compile.PrimSize, primSize)
	reg(compile.PrimHash, primHash)
	reg(compile.PrimBlockReturn, primBlockReturn)
	reg(compile.PrimExecute, primExecute)
	reg(compile.PrimIdent, primIdent)
	reg(compile.PrimClassOfPut, primClassOfPut)
	reg(compile.PrimStringCat, primStringCat)
	reg(compile.PrimBasicAt, primBasicAt)
	reg(compile.PrimByteAt, primByteAt)
	reg(compile.PrimSymbolAssign, primSymbolAssign)
	reg(compile.PrimBlockCall, primBlockCall)
	reg(compile.PrimBlockClone, primBlockClone)
	reg(compile.PrimBasicAtPut, primBasicAtPut)
	reg(compile.PrimByteAtPut, primByteAtPut)
	reg(compile.PrimCopyFromTo, primCopyFromTo)
	reg(compile.PrimFlushCache, primFlushCache)
	reg(compile.PrimParse, primParse)
	reg(compile.PrimSpecial, primSpecial)
	reg(compile.PrimAsFloat, primAsFloat)
	reg(compile.PrimSetTimeSlice, primSetTimeSlice)
	reg(compile.PrimSetSeed, primSetSeed)
	reg(compile.PrimAllocOrefObj, primAllocOrefObj)
	reg(compile.PrimAllocByteObj, primAllocByteObj)
	reg(compile.PrimAdd, primAdd)
	reg(compile.PrimSubtract, primSubtract)
	reg(compile.PrimLessThan, primLessThan)
	reg(compile.PrimGreaterThan, primGreaterThan)
	reg(compile.PrimLessOrEqual, primLessOrEqual)
	reg(compile.PrimGreaterOrEqual, primGreaterOrEqual)
	reg(compile.PrimEqual, primEqual)
	reg(compile.PrimNotEqual, primNotEqual)
	reg(compile.PrimMultiply, primMultiply)
	reg(compile.PrimQuotient, primQuotient)
	reg(compile.PrimRemainder, primRemainder)
	reg(compile.PrimBitAnd, primBitAnd)
	reg(compile.PrimBitXor, primBitXor)
	reg(compile.PrimBitShift, primBitShift)
	reg(compile.PrimStringSize, primStringSize)
	reg(compile.PrimStringHash, primStringHash)
	reg(compile.PrimAsSymbol, primAsSymbol)
	reg(compile.PrimGlobalValue, primGlobalValue)
	reg(compile.PrimHostCommand, primHostCommand)
	reg(compile.PrimAsString, primAsString)
	reg(compile.PrimNaturalLog, primNaturalLog)
	reg(compile.PrimERaisedTo, primERaisedTo)
	reg(compile.PrimIntegerPart, primIntegerPart)
	reg(compile.PrimFloatAdd, primFloatAdd)
	reg(compile.PrimFloatSubtract, primFloatSubtract)
	reg(compile.PrimFloatLessThan, primFloatLessThan)
	reg(compile.PrimFloatGreaterThan, primFloatGreaterThan)
	reg(compile.PrimFloatLessOrEqual, primFloatLessOrEqual)
	reg(compile.PrimFloatGreaterOrEqual, primFloatGreaterOrEqual)
	reg(compile.PrimFloatEqual, primFloatEqual)
	reg(compile.PrimFloatNotEqual, primFloatNotEqual)
	reg(compile.PrimFloatMultiply, primFloatMultiply)
	reg(compile.PrimFloatDivide, primFloatDivide)
	reg(compile.PrimFileOpen, primFileOpen)
	reg(compile.PrimFileClose, primFileClose)
	reg(compile.PrimFileIn, primFileIn)
	reg(compile.PrimGetString, primGetString)
	reg(compile.PrimImageWrite, primImageWrite)
	reg(compile.PrimPrintWithoutNL, primPrintWithoutNL)
	reg(compile.PrimPrintWithNL, primPrintWithNL)
	reg(compile.PrimSetTrace, primSetTrace)
	reg(compile.PrimError, primError)
	reg(compile.PrimReclaim, primReclaim)
	reg(compile.PrimLogChunk, primLogChunk)
	reg(compile.PrimGetChunk, primGetChunk)
	reg(compile.PrimPutChunk, primPutChunk)
}

// smallIntArg reads args[i] as a SmallInt, reporting failure (the oop.Nil
// convention, §4.8) rather than panicking when it isn't one -- every
// arithmetic/indexing primitive in the original bails out on a
// non-integer argument the same way (isIndex(arg[n])).
func smallIntArg(args []oop.Ref, i int) (int64, bool) {
	if i >= len(args) || !args[i].IsSmallInt() {
		return 0, false
	}
	return args[i].Int(), true
}
