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

// Primitive numbers (§4.8): the wire-format catalog shared between the
// compiler (which emits a DoPrimitive instruction carrying one of these as
// its trailing byte) and package vm (which implements the corresponding
// handler). Numbering matches original_source/pdst.c's primitiveVector
// table exactly, so a method compiled here and a method decompiled from a
// historical image agree on what each number means. Gaps are numbers the
// original source wires to unsupportedPrim; they are not given names here
// and have no handler in vm's primitive table, so executing one is reported
// as a *vm.SystemError.
const (
	PrimAvailCount    = 2
	PrimRandom        = 3
	PrimFlipWatching  = 5
	PrimExit          = 9
	PrimClass         = 11
	PrimSize          = 12
	PrimHash          = 13
	PrimBlockReturn   = 18
	PrimExecute       = 19
	PrimIdent         = 21
	PrimClassOfPut    = 22
	PrimStringCat     = 24
	PrimBasicAt       = 25
	PrimByteAt        = 26
	PrimSymbolAssign  = 27
	PrimBlockCall     = 28
	PrimBlockClone    = 29
	PrimBasicAtPut    = 31
	PrimByteAtPut     = 32
	PrimCopyFromTo    = 33
	PrimFlushCache    = 38
	PrimParse         = 39
	PrimSpecial       = 44 // reserved for an embedding host; always fails (§9)
	PrimAsFloat       = 51
	PrimSetTimeSlice  = 53
	PrimSetSeed       = 55
	PrimAllocOrefObj  = 58
	PrimAllocByteObj  = 59
	PrimAdd           = 60
	PrimSubtract      = 61
	PrimLessThan      = 62
	PrimGreaterThan   = 63
	PrimLessOrEqual   = 64
	PrimGreaterOrEqual = 65
	PrimEqual         = 66
	PrimNotEqual      = 67
	PrimMultiply      = 68
	PrimQuotient      = 69
	PrimRemainder     = 70
	PrimBitAnd        = 71
	PrimBitXor        = 72
	PrimBitShift      = 79
	PrimStringSize    = 81
	PrimStringHash    = 82
	PrimAsSymbol      = 83
	PrimGlobalValue   = 87
	PrimHostCommand   = 88
	PrimAsString      = 101
	PrimNaturalLog    = 102
	PrimERaisedTo     = 103
	PrimIntegerPart   = 106
	PrimFloatAdd      = 110
	PrimFloatSubtract = 111
	PrimFloatLessThan = 112
	PrimFloatGreaterThan  = 113
	PrimFloatLessOrEqual  = 114
	PrimFloatGreaterOrEqual = 115
	PrimFloatEqual    = 116
	PrimFloatNotEqual = 117
	PrimFloatMultiply = 118
	PrimFloatDivide   = 119
	PrimFileOpen      = 120
	PrimFileClose     = 121
	PrimFileIn        = 123
	PrimGetString     = 125
	PrimImageWrite    = 127
	PrimPrintWithoutNL = 128
	PrimPrintWithNL   = 129
	PrimSetTrace      = 151
	PrimError         = 152
	PrimReclaim       = 153
	PrimLogChunk      = 154
	PrimGetChunk      = 157
	PrimPutChunk      = 158

	// MaxPrimitive is one past the highest addressable primitive number
	// (§4.8: "a dense table of up to 256 entries").
	MaxPrimitive = 256
)
