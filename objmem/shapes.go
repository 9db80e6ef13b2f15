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

package objmem

// Fixed field layouts for the bootstrap classes (§3). Indices are 1-based,
// matching the object's own element addressing convention.
const (
	ClassName        = 1
	ClassSize        = 2 // instance variable count, including inherited
	ClassMethods     = 3 // Dictionary
	ClassSuperClass  = 4
	ClassVariables   = 5 // Array of Symbol
	ClassShapeFields = 5

	MethodText        = 1
	MethodMessage     = 2 // Symbol selector
	MethodBytecodes   = 3 // ByteArray
	MethodLiterals    = 4 // Array
	MethodStackSize   = 5 // SmallInt
	MethodTempSize    = 6 // SmallInt
	MethodClass       = 7
	MethodWatch       = 8
	MethodShapeFields = 8

	ContextLinkPtr      = 1
	ContextMethod       = 2
	ContextArguments    = 3
	ContextTemporaries  = 4
	ContextShapeFields  = 6 // +2 reserved

	BlockContext          = 1
	BlockArgumentCount    = 2
	BlockArgumentLocation = 3
	BlockBytecodePosition = 4
	BlockShapeFields      = 6 // +2 reserved

	ProcessStack      = 1
	ProcessStackTop   = 2
	ProcessLinkPtr    = 3
	ProcessShapeFields = 3

	// Dictionary wraps a single Array (size 1) holding 3*n hash buckets.
	DictionaryTable       = 1
	DictionaryShapeFields = 1

	// Link is a dictionary-chain node: (key, value, next).
	LinkKey         = 1
	LinkValue       = 2
	LinkNext        = 3
	LinkShapeFields = 3
)
