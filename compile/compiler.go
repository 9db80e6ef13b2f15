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
	"fmt"

	"github.com/ZYSF/Smalltalk-Archive/lex"
	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
)

// Error is returned for any source that doesn't parse; Pos is the byte
// offset the scanner had reached when the problem was noticed.
type Error struct {
	Pos int
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("compile: %s (at byte %d)", e.Msg, e.Pos) }

// Compiler turns one method's source text into bytecode. A fresh Compiler
// is used per method; Mem is shared across an entire compilation session
// so that literal Symbols/Strings/Floats/Arrays intern consistently.
type Compiler struct {
	Mem *objmem.Memory

	sc   *lex.Scanner
	tok  lex.Token
	pos  int // byte offset of tok, for error messages

	class    oop.Ref
	instVars []string // walked from class up through every superclass

	args []string
	temp []string // grows as blocks reserve temp slots in the enclosing frame

	// blockDepth counts how many literal blocks currently enclose the
	// statement being compiled. A "^" compiled at blockDepth>0 is a
	// non-local return and needs the context-unwind dance (§4.6); a "^" at
	// blockDepth==0 is an ordinary method return.
	blockDepth int

	// pendingSuper is set by parseVariable when it resolves a bare "super",
	// and consumed by the emitSend of the message sent to it (sends inside
	// that message's arguments set it aside meanwhile; per §4.5: only the message
	// sent directly to "super" is a super send; anything chained after its
	// result is an ordinary send).
	pendingSuper bool

	literals      []oop.Ref
	litIndexCache map[oop.Ref]int

	code      []byte
	stackSize int // running depth
	maxStack  int
}

// NewCompiler prepares a compiler for methods of class. instVars must list
// every instance variable visible to class, root class first (the topmost
// superclass's variables first and the receiver's own class's last, so that
// name i is field slot i) -- building this list is the caller's job (objmem knows the class shapes;
// compile doesn't import a class-walking helper of its own to avoid a
// second copy of that logic).
func NewCompiler(mem *objmem.Memory, class oop.Ref, instVars []string) *Compiler {
	return &Compiler{
		Mem:           mem,
		class:         class,
		instVars:      instVars,
		litIndexCache: make(map[oop.Ref]int),
	}
}

// CompileMethod parses source as a full method (pattern, temporaries,
// statements) and returns the populated Method object (§3's Method shape).
func (c *Compiler) CompileMethod(source string) (oop.Ref, error) {
	c.sc = lex.New([]byte(source))
	c.advance()

	selector, err := c.parsePattern()
	if err != nil {
		return oop.Nil, err
	}
	if err := c.parseTemporaries(); err != nil {
		return oop.Nil, err
	}
	if err := c.parseStatements(true); err != nil {
		return oop.Nil, err
	}

	return c.buildMethod(selector, source), nil
}

func (c *Compiler) buildMethod(selector oop.Ref, text string) oop.Ref {
	m := c.Mem.AllocRef(objmem.MethodShapeFields)
	c.Mem.SetField(m, objmem.MethodText, c.Mem.AllocCString(text))
	c.Mem.SetField(m, objmem.MethodMessage, selector)

	bc := c.Mem.AllocByte(len(c.code))
	for i, b := range c.code {
		c.Mem.ByteAtPut(bc, i+1, b)
	}
	c.Mem.SetField(m, objmem.MethodBytecodes, bc)

	lits := c.Mem.AllocRef(len(c.literals))
	for i, l := range c.literals {
		c.Mem.StoreRef(lits, i, l)
	}
	c.Mem.SetField(m, objmem.MethodLiterals, lits)

	c.Mem.SetField(m, objmem.MethodStackSize, oop.SmallInt(int64(c.maxStack)))
	c.Mem.SetField(m, objmem.MethodTempSize, oop.SmallInt(int64(len(c.temp))))
	c.Mem.SetField(m, objmem.MethodClass, c.class)
	c.Mem.SetField(m, objmem.MethodWatch, oop.Nil)
	return m
}

// ---- token stream ----

func (c *Compiler) advance() {
	c.pos = c.sc.Pos()
	c.tok = c.sc.Next()
}

func (c *Compiler) errorf(format string, args ...interface{}) error {
	return &Error{Pos: c.pos, Msg: fmt.Sprintf(format, args...)}
}

func (c *Compiler) expectBinary(text string) error {
	if c.tok.Kind != lex.Binary || c.tok.Text != text {
		return c.errorf("expected %q, got %s", text, c.tok)
	}
	c.advance()
	return nil
}

// ---- literals & stack bookkeeping ----

func (c *Compiler) literalIndex(v oop.Ref) int {
	if idx, ok := c.litIndexCache[v]; ok {
		return idx
	}
	idx := len(c.literals)
	c.literals = append(c.literals, v)
	c.litIndexCache[v] = idx
	return idx
}

func (c *Compiler) emit(op Op, arg int) {
	c.code = Emit(c.code, op, arg)
}

func (c *Compiler) emitSpecial(sub Special) {
	c.code = EmitSpecial(c.code, sub)
}

// push/pop track the evaluation stack depth so MethodStackSize is accurate;
// every opcode that leaves one more value on the stack than it found calls
// push(), and every one that consumes without replacing calls pop().
func (c *Compiler) push() {
	c.stackSize++
	if c.stackSize > c.maxStack {
		c.maxStack = c.stackSize
	}
}

func (c *Compiler) pop() {
	if c.stackSize > 0 {
		c.stackSize--
	}
}

// branchPlaceholder emits a branch opcode with a dummy target byte and
// returns the index of that byte, to be patched by patchBranch once the
// real target is known.
func (c *Compiler) branchPlaceholder(sub Special) int {
	c.code = Emit(c.code, DoSpecial, int(sub))
	c.code = append(c.code, 0)
	return len(c.code) - 1
}

func (c *Compiler) patchBranch(at int) {
	c.code[at] = byte(len(c.code) + 1) // 1-based absolute offset, per §4.5
}

// ---- message pattern ----

func (c *Compiler) parsePattern() (oop.Ref, error) {
	switch c.tok.Kind {
	case lex.Name:
		// unary pattern: just a selector
		sel := c.Mem.Intern(c.tok.Text)
		c.advance()
		return sel, nil
	case lex.NameColon:
		// keyword pattern: one or more "key: arg" pairs
		var selector string
		for c.tok.Kind == lex.NameColon {
			selector += c.tok.Text
			c.advance()
			if c.tok.Kind != lex.Name {
				return oop.Nil, c.errorf("expected argument name after keyword, got %s", c.tok)
			}
			c.args = append(c.args, c.tok.Text)
			c.advance()
		}
		return c.Mem.Intern(selector), nil
	case lex.Binary:
		// binary pattern: one operator, one argument name
		selector := c.tok.Text
		c.advance()
		if c.tok.Kind != lex.Name {
			return oop.Nil, c.errorf("expected argument name after binary selector, got %s", c.tok)
		}
		c.args = append(c.args, c.tok.Text)
		c.advance()
		return c.Mem.Intern(selector), nil
	}
	return oop.Nil, c.errorf("expected a message pattern, got %s", c.tok)
}

// parseTemporaries consumes an optional "| a b c |" declaration.
func (c *Compiler) parseTemporaries() error {
	if c.tok.Kind != lex.Binary || c.tok.Text != "|" {
		return nil
	}
	c.advance()
	for c.tok.Kind == lex.Name {
		c.temp = append(c.temp, c.tok.Text)
		c.advance()
	}
	return c.expectBinary("|")
}

// ---- statements ----

// parseStatements compiles a '.'-separated statement list up to EOF or a
// block-closing ']'. A statement's value is popped as soon as we know
// another statement follows it; the very last statement's value is only
// popped for a method body (plain Smalltalk semantics: no explicit ^ means
// answer self, never the last expression). For a block body the last
// statement's value is left on the stack for the caller's trailing
// StackReturn -- and if the block is empty, or its last statement was
// itself an explicit (and therefore value-less, already-returned) "^", a
// nil placeholder is pushed instead so the block always leaves exactly one
// value behind.
func (c *Compiler) parseStatements(isMethodBody bool) error {
	any := false
	lastWasReturn := false
	for {
		if c.tok.Kind == lex.EOF || (c.tok.Kind == lex.Closing && c.tok.Text == "]") {
			break
		}
		if any {
			c.emitSpecial(PopTop)
			c.pop()
		}
		isReturn, err := c.parseStatement()
		if err != nil {
			return err
		}
		any, lastWasReturn = true, isReturn
		if c.tok.Kind == lex.Closing && c.tok.Text == "." {
			c.advance()
			continue
		}
		break
	}
	switch {
	case isMethodBody:
		if any && !lastWasReturn {
			c.emitSpecial(PopTop)
			c.pop()
		}
		c.emitSpecial(SelfReturn)
	case !any, lastWasReturn:
		c.emit(PushConstant, ConstNil)
		c.push()
	}
	return nil
}

// parseStatement compiles one statement: either "^expr" (an explicit
// return, reporting isReturn=true so the caller knows no value was left
// behind) or a bare expression (isReturn=false; its value is left on the
// stack for the caller to pop or keep as it sees fit).
func (c *Compiler) parseStatement() (isReturn bool, err error) {
	if c.tok.Kind == lex.Binary && c.tok.Text == "^" {
		c.advance()
		if err := c.parseExpression(); err != nil {
			return false, err
		}
		if c.blockDepth > 0 {
			// Non-local return: reify/push the active context (lazily
			// built by PushConstant ctx on first use in this activation),
			// then primBlockReturn patches the current frame's link/return
			// fields in place to unwind past every intervening block
			// activation, leaving the "^" expression's value as the
			// primitive's own result (§4.6). See DESIGN.md for why this
			// collapses the source's two-hop Context>>blockReturn send
			// into a single primitive call.
			c.emit(PushConstant, ConstContext)
			c.push()
			c.code = EmitPrimitive(c.code, 2, PrimBlockReturn)
			c.pop()
		}
		c.emitSpecial(StackReturn)
		c.pop()
		return true, nil
	}
	if err := c.parseExpression(); err != nil {
		return false, err
	}
	return false, nil
}

// ---- expressions ----

// parseExpression compiles an assignment, or falls through to a keyword
// message send, the lowest-precedence plain expression form.
func (c *Compiler) parseExpression() error {
	if c.tok.Kind == lex.Name {
		save := *c.sc
		name := c.tok.Text
		savedTok := c.tok
		c.advance()
		if c.tok.Kind == lex.Binary && (c.tok.Text == ":=" || c.tok.Text == "_") {
			c.advance()
			if err := c.parseExpression(); err != nil {
				return err
			}
			if err := c.emitAssign(name); err != nil {
				return err
			}
			return nil
		}
		// not an assignment: rewind and parse normally
		*c.sc = save
		c.tok = savedTok
		c.pos = c.sc.Pos()
	}
	return c.parseKeywordExpression()
}

func (c *Compiler) parseKeywordExpression() error {
	if c.tok.Kind == lex.Binary && c.tok.Text == "[" && c.probeWhileTrue() {
		return c.parseWhileTrue()
	}
	if err := c.parseBinaryExpression(); err != nil {
		return err
	}
	if c.tok.Kind != lex.NameColon {
		return nil
	}
	if inlined, err := c.tryInlineKeyword(); inlined || err != nil {
		return err
	}
	// sends inside the arguments must not consume a pending "super"
	super := c.pendingSuper
	c.pendingSuper = false
	var selector string
	n := 0
	for c.tok.Kind == lex.NameColon {
		selector += c.tok.Text
		c.advance()
		if err := c.parseBinaryExpression(); err != nil {
			return err
		}
		n++
	}
	c.pendingSuper = super
	return c.emitSend(selector, n)
}

func (c *Compiler) parseBinaryExpression() error {
	if err := c.parseUnaryExpression(); err != nil {
		return err
	}
	for c.tok.Kind == lex.Binary && c.tok.Text != ":=" && c.tok.Text != "_" && c.tok.Text != "^" {
		sel := c.tok.Text
		super := c.pendingSuper
		c.pendingSuper = false
		c.advance()
		if err := c.parseUnaryExpression(); err != nil {
			return err
		}
		c.pendingSuper = super
		if err := c.emitSend(sel, 1); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) parseUnaryExpression() error {
	if err := c.parsePrimary(); err != nil {
		return err
	}
	for c.tok.Kind == lex.Name {
		sel := c.tok.Text
		c.advance()
		if err := c.emitSend(sel, 0); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) emitSend(selector string, nargs int) error {
	wasSuper := c.pendingSuper
	c.pendingSuper = false

	sel := c.Mem.Intern(selector)
	litIdx := c.literalIndex(sel)
	c.emit(MarkArguments, nargs+1)
	if wasSuper {
		c.code = Emit(c.code, DoSpecial, int(SendToSuper))
		c.code = append(c.code, byte(litIdx))
	} else {
		c.emit(SendMessage, litIdx)
	}
	// a send consumes (receiver+nargs) and leaves one value
	for i := 0; i < nargs; i++ {
		c.pop()
	}
	return nil
}

func (c *Compiler) emitAssign(name string) error {
	if i := indexOf(c.temp, name); i >= 0 {
		c.emit(AssignTemporary, i)
		return nil
	}
	if i := indexOf(c.instVars, name); i >= 0 {
		c.emit(AssignInstance, i)
		return nil
	}
	return c.errorf("assignment to undeclared variable %q", name)
}

func indexOf(names []string, name string) int {
	// every list is searched from its end, so for temporaries the
	// most-recently-declared name wins, per §4.5's resolution order;
	// instance variable names are unique, so the direction makes no
	// difference there.
	for i := len(names) - 1; i >= 0; i-- {
		if names[i] == name {
			return i
		}
	}
	return -1
}

// ---- primary expressions ----

func (c *Compiler) parsePrimary() error {
	switch {
	case c.tok.Kind == lex.Name:
		return c.parseVariable()
	case c.tok.Kind == lex.IntConst:
		c.emitIntLiteral(c.tok.Int)
		c.advance()
		return nil
	case c.tok.Kind == lex.FloatConst:
		c.emitLiteral(c.Mem.NewFloat(c.tok.Float))
		c.advance()
		return nil
	case c.tok.Kind == lex.CharConst:
		c.emitIntLiteral(c.tok.Int)
		c.advance()
		return nil
	case c.tok.Kind == lex.SymConst:
		c.emitLiteral(c.Mem.Intern(c.tok.Text))
		c.advance()
		return nil
	case c.tok.Kind == lex.StrConst:
		c.emitLiteral(c.newStringLiteral(c.tok.Text))
		c.advance()
		return nil
	case c.tok.Kind == lex.Binary && c.tok.Text == "[":
		return c.parseBlock()
	case c.tok.Kind == lex.Binary && c.tok.Text == "(":
		c.advance()
		if err := c.parseExpression(); err != nil {
			return err
		}
		return c.expectClosing(")")
	case c.tok.Kind == lex.Binary && c.tok.Text == "<":
		return c.parsePrimitivePragma()
	}
	return c.errorf("unexpected token %s in expression", c.tok)
}

// parsePrimitivePragma compiles "<primNumber term term...>", the primitive
// call syntax pdst.c's parsePrimitive() recognizes wherever a primary
// expression is expected (not just as a method header pragma). Each term is
// itself a primary expression -- parsePrimitive()'s term() is the same
// production our parsePrimary implements -- so nested sends aren't allowed
// as a primitive's argument without parenthesizing, matching the original
// grammar.
func (c *Compiler) parsePrimitivePragma() error {
	c.advance() // consume '<'
	if c.tok.Kind != lex.IntConst {
		return c.errorf("expected primitive number after '<', got %s", c.tok)
	}
	primNumber := int(c.tok.Int)
	c.advance()

	nargs := 0
	for !(c.tok.Kind == lex.Binary && c.tok.Text == ">") {
		if c.tok.Kind == lex.EOF {
			return c.errorf("unterminated primitive pragma")
		}
		if err := c.parsePrimary(); err != nil {
			return err
		}
		nargs++
	}
	c.advance() // consume '>'

	c.code = EmitPrimitive(c.code, nargs, primNumber)
	for i := 0; i < nargs; i++ {
		c.pop()
	}
	c.push()
	return nil
}

func (c *Compiler) expectClosing(text string) error {
	if c.tok.Kind != lex.Closing && !(c.tok.Kind == lex.Binary) || c.tok.Text != text {
		return c.errorf("expected %q, got %s", text, c.tok)
	}
	c.advance()
	return nil
}

func (c *Compiler) emitIntLiteral(v int64) {
	switch v {
	case 0:
		c.emit(PushConstant, ConstZero)
	case 1:
		c.emit(PushConstant, ConstOne)
	case 2:
		c.emit(PushConstant, ConstTwo)
	case -1:
		c.emit(PushConstant, ConstMinusOne)
	default:
		c.emitLiteral(oop.SmallInt(v))
	}
	c.push()
}

func (c *Compiler) emitLiteral(v oop.Ref) {
	idx := c.literalIndex(v)
	c.emit(PushLiteral, idx)
	c.push()
}

// parseVariable resolves a bare identifier per §4.5's name resolution
// order: self/super, temporaries (most recent first), arguments
// (receiver is argument 0), instance variables, built-in pseudo-constants,
// and finally a runtime global lookup.
func (c *Compiler) parseVariable() error {
	name := c.tok.Text
	c.advance()

	// a temporary, argument or instance variable takes precedence over a
	// pseudo-constant of the same name
	pseudo := name
	if name != "self" && name != "super" && (indexOf(c.temp, name) >= 0 || indexOf(c.args, name) >= 0 || indexOf(c.instVars, name) >= 0) {
		pseudo = ""
	}
	switch pseudo {
	case "self", "super":
		c.emit(PushArgument, 0)
		c.push()
		if name == "super" {
			c.pendingSuper = true
		}
		return nil
	case "nil":
		c.emit(PushConstant, ConstNil)
		c.push()
		return nil
	case "true":
		c.emit(PushConstant, ConstTrue)
		c.push()
		return nil
	case "false":
		c.emit(PushConstant, ConstFalse)
		c.push()
		return nil
	case "currentInterpreter":
		c.emit(PushConstant, ConstContext)
		c.push()
		return nil
	}
	if i := indexOf(c.temp, name); i >= 0 {
		c.emit(PushTemporary, i)
		c.push()
		return nil
	}
	if i := indexOf(c.args, name); i >= 0 {
		c.emit(PushArgument, i+1)
		c.push()
		return nil
	}
	if i := indexOf(c.instVars, name); i >= 0 {
		c.emit(PushInstance, i)
		c.push()
		return nil
	}
	// global: compiled as a runtime lookup by symbol, not resolved here --
	// the class may not exist yet when earlier bootstrap methods compile.
	sym := c.Mem.Intern(name)
	c.emitLiteral(sym)
	if err := c.emitSend("value", 0); err != nil {
		return err
	}
	return nil
}

// parseBlock compiles a literal block: "[ :a :b | stmts ]". It reserves
// temp slots in the ENCLOSING frame for the block's own arguments (§4.5:
// "argumentLocation (reserved slot in enclosing temp frame)"), emits a
// Block object construction, and jumps past the inline body so the
// enclosing method skips it at load time.
func (c *Compiler) parseBlock() error {
	c.advance() // consume '['

	argLoc := len(c.temp)
	nargs := 0
	for c.tok.Kind == lex.Binary && c.tok.Text == ":" {
		c.advance()
		if c.tok.Kind != lex.Name {
			return c.errorf("expected block argument name, got %s", c.tok)
		}
		c.temp = append(c.temp, c.tok.Text)
		c.advance()
		nargs++
	}
	if nargs > 0 {
		if c.tok.Kind != lex.Binary || c.tok.Text != "|" {
			return c.errorf("expected '|' after block arguments, got %s", c.tok)
		}
		c.advance()
	}

	branch := c.branchPlaceholder(Branch)
	bodyStart := len(c.code) + 1 // 1-based offset, matching §4.5's Branch target convention

	c.blockDepth++
	err := c.parseStatements(false)
	c.blockDepth--
	if err != nil {
		return err
	}
	c.emitSpecial(StackReturn)
	c.pop() // the block's result value, consumed by the StackReturn above

	if c.tok.Kind != lex.Closing || c.tok.Text != "]" {
		return c.errorf("expected ']' to close block, got %s", c.tok)
	}
	c.advance()

	c.patchBranch(branch)

	blk := c.Mem.AllocRef(objmem.BlockShapeFields)
	c.Mem.SetField(blk, objmem.BlockArgumentCount, oop.SmallInt(int64(nargs)))
	c.Mem.SetField(blk, objmem.BlockArgumentLocation, oop.SmallInt(int64(argLoc)))
	c.Mem.SetField(blk, objmem.BlockBytecodePosition, oop.SmallInt(int64(bodyStart)))
	if class := c.Mem.Global("Block"); !oop.IsNil(class) {
		c.Mem.SetClass(blk, class)
	}
	c.emitLiteral(blk)
	return nil
}

// probe snapshots the scanner/token/pos triple, runs check, and always
// rewinds to the snapshot before returning -- the same save/restore trick
// parseExpression already uses to look past an identifier for ":=" before
// deciding whether it started an assignment, just factored out so the
// inline-control lookaheads below can share it.
func (c *Compiler) probe(check func() bool) bool {
	savedSc := *c.sc
	savedTok := c.tok
	savedPos := c.pos
	ok := check()
	*c.sc = savedSc
	c.tok = savedTok
	c.pos = savedPos
	return ok
}

// skipBareBlock advances past one "[ ... ]" block, tracking nested '['/']'
// depth, and reports whether it declared zero arguments -- the only shape
// an optimized control message inlines. c.tok must already sit on the
// opening '[' when called.
func (c *Compiler) skipBareBlock() bool {
	if c.tok.Kind != lex.Binary || c.tok.Text != "[" {
		return false
	}
	c.advance()
	if c.tok.Kind == lex.Binary && c.tok.Text == ":" {
		return false
	}
	for depth := 1; depth > 0; c.advance() {
		switch {
		case c.tok.Kind == lex.EOF:
			return false
		case c.tok.Kind == lex.Binary && c.tok.Text == "[":
			depth++
		case c.tok.Kind == lex.Closing && c.tok.Text == "]":
			depth--
		}
	}
	return true
}

// probeInlineIf reports whether the keyword message starting at the current
// "firstKeyword:" token has a literal, zero-argument block argument, and
// (if present) a "pairedKeyword:" whose own argument is also such a block --
// i.e. "ifTrue: [...]" or "ifTrue: [...] ifFalse: [...]" (or the ifFalse:
// first equivalents). A bare "ifTrue: [...]" with no paired keyword is a
// match too; only an argument that ISN'T a literal block declines.
func (c *Compiler) probeInlineIf(firstKeyword, pairedKeyword string) bool {
	return c.probe(func() bool {
		if c.tok.Kind != lex.NameColon || c.tok.Text != firstKeyword {
			return false
		}
		c.advance()
		if !c.skipBareBlock() {
			return false
		}
		if c.tok.Kind == lex.NameColon && c.tok.Text == pairedKeyword {
			c.advance()
			if !c.skipBareBlock() {
				return false
			}
		}
		return true
	})
}

// probeInlineSingle reports whether "keyword:" is immediately followed by a
// literal, zero-argument block -- and:/or:'s shape.
func (c *Compiler) probeInlineSingle(keyword string) bool {
	return c.probe(func() bool {
		if c.tok.Kind != lex.NameColon || c.tok.Text != keyword {
			return false
		}
		c.advance()
		return c.skipBareBlock()
	})
}

// probeWhileTrue reports whether the current "[" opens a literal block
// immediately followed by "whileTrue:" -- the one optimized control message
// whose receiver, not just its argument, must be a literal block.
func (c *Compiler) probeWhileTrue() bool {
	return c.probe(func() bool {
		if !c.skipBareBlock() {
			return false
		}
		return c.tok.Kind == lex.NameColon && c.tok.Text == "whileTrue:"
	})
}

// parseInlineBareBlock compiles a literal block's statements directly into
// the current instruction stream instead of reifying a Block object: since
// control reaches the body through a conditional branch rather than a
// Block>>value send, blockDepth is left untouched, so a "^" inside still
// targets the enclosing method (or enclosing real block) exactly as if it
// had been written inline by hand.
func (c *Compiler) parseInlineBareBlock() error {
	if c.tok.Kind != lex.Binary || c.tok.Text != "[" {
		return c.errorf("expected '[' to begin an inlined block, got %s", c.tok)
	}
	c.advance()
	if c.tok.Kind == lex.Binary && c.tok.Text == ":" {
		return c.errorf("inlined control blocks may not declare arguments")
	}
	if err := c.parseStatements(false); err != nil {
		return err
	}
	if c.tok.Kind != lex.Closing || c.tok.Text != "]" {
		return c.errorf("expected ']' to close inlined block, got %s", c.tok)
	}
	c.advance()
	return nil
}

// emitBranchTo appends an unconditional branch to a known, already-emitted
// target, for whileTrue:'s backward jump (branchPlaceholder/patchBranch are
// for a target that isn't known until later).
func (c *Compiler) emitBranchTo(target int) {
	c.code = EmitSpecial(c.code, Branch)
	c.code = append(c.code, byte(target))
}

// parseInlineIf compiles ifTrue:/ifFalse:/ifTrue:ifFalse:/ifFalse:ifTrue:.
// The receiver boolean is already on the stack (parseKeywordExpression
// compiled it before calling tryInlineKeyword). branchSub's "jump" condition
// is always the OPPOSITE of firstKeyword's own sense -- BranchIfFalse for
// ifTrue:'s family, BranchIfTrue for ifFalse:'s -- because the fallthrough
// path always runs the keyword's own (first) block, and the branch target
// runs the paired keyword's block if one was given, else answers nil.
//
// BranchIfTrue/BranchIfFalse pop the receiver unconditionally but only push
// it back on the branch actually taken, so the landing pad always needs its
// own PopTop to discard that leftover before running the paired block --
// unlike and:/or:, where the leftover value IS the answer (see
// parseInlineShortCircuit).
func (c *Compiler) parseInlineIf(branchSub Special, pairedKeyword string) error {
	c.advance() // consume the first keyword
	baseline := c.stackSize
	at := c.branchPlaceholder(branchSub)
	c.pop()
	if err := c.parseInlineBareBlock(); err != nil {
		return err
	}
	endBr := c.branchPlaceholder(Branch)

	c.stackSize = baseline // landing pad: receiver is still physically there
	c.patchBranch(at)
	c.emitSpecial(PopTop)
	c.pop()
	if c.tok.Kind == lex.NameColon && c.tok.Text == pairedKeyword {
		c.advance()
		if err := c.parseInlineBareBlock(); err != nil {
			return err
		}
	} else {
		c.emit(PushConstant, ConstNil)
		c.push()
	}
	c.patchBranch(endBr)
	return nil
}

// parseInlineShortCircuit compiles and:/or: to AndBranch/OrBranch: the
// short-circuited boolean left on the stack by the branch instruction IS
// the message's own answer, so the landing pad needs no PopTop.
func (c *Compiler) parseInlineShortCircuit(branchSub Special) error {
	c.advance() // consume the keyword
	baseline := c.stackSize
	at := c.branchPlaceholder(branchSub)
	c.pop()
	if err := c.parseInlineBareBlock(); err != nil {
		return err
	}
	endBr := c.branchPlaceholder(Branch)

	c.stackSize = baseline
	c.patchBranch(at)
	c.patchBranch(endBr)
	return nil
}

// parseWhileTrue compiles "[cond] whileTrue: [body]" to a backward-branching
// loop. cond is recompiled inline into the bytecode stream only once but
// reached again every iteration via the backward branch -- there is no
// reified block to re-invoke once inlined, matching how a real Smalltalk
// compiler's whileTrue: inlining works. The whole expression answers nil,
// matching an ordinary (non-inlined) whileTrue: send's result.
func (c *Compiler) parseWhileTrue() error {
	loopStart := len(c.code) + 1
	if err := c.parseInlineBareBlock(); err != nil {
		return err
	}
	c.advance() // consume "whileTrue:"

	baseline := c.stackSize
	atEnd := c.branchPlaceholder(BranchIfFalse)
	c.pop()
	if err := c.parseInlineBareBlock(); err != nil {
		return err
	}
	c.emitSpecial(PopTop) // discard the loop body's value; whileTrue: is a statement
	c.pop()
	c.emitBranchTo(loopStart)

	c.stackSize = baseline
	c.patchBranch(atEnd)
	c.emitSpecial(PopTop)
	c.pop()
	c.emit(PushConstant, ConstNil)
	c.push()
	return nil
}

// tryInlineKeyword recognizes ifTrue:/ifFalse:/ifTrue:ifFalse:/
// ifFalse:ifTrue:/and:/or: sent with literal zero-argument block arguments
// (§4.5's "recognized by surface selector on literal blocks") and compiles
// the whole message to a conditional branch instead of an ordinary send --
// no Block object is allocated. A super receiver is never inlined, matching
// the pre-existing rule that only the message sent directly to "super" is a
// super send.
//
// Shape validity is checked twice: once by the probe*/skipBareBlock
// lookahead (pure token scanning, fully rewound afterward) and again while
// actually compiling, so a failed probe never leaves partial bytecode
// behind and a successful one never needs to unwind mid-emit.
func (c *Compiler) tryInlineKeyword() (bool, error) {
	if c.pendingSuper {
		return false, nil
	}
	switch c.tok.Text {
	case "ifTrue:":
		if c.probeInlineIf("ifTrue:", "ifFalse:") {
			return true, c.parseInlineIf(BranchIfFalse, "ifFalse:")
		}
	case "ifFalse:":
		if c.probeInlineIf("ifFalse:", "ifTrue:") {
			return true, c.parseInlineIf(BranchIfTrue, "ifTrue:")
		}
	case "and:":
		if c.probeInlineSingle("and:") {
			return true, c.parseInlineShortCircuit(AndBranch)
		}
	case "or:":
		if c.probeInlineSingle("or:") {
			return true, c.parseInlineShortCircuit(OrBranch)
		}
	}
	return false, nil
}

// newStringLiteral builds a string-literal object the same way
// vm's newString tags one fabricated at runtime: every String, compiled or
// computed, carries the bootstrapped "String" class so a send like
// `'a' asSymbol` dispatches normally instead of finding a nil class.
// Compiling before "String" exists in Mem's globals (e.g. the kernel's own
// bootstrap sources) just leaves the literal untagged, same as any other
// forward reference the bootstrap resolves later.
func (c *Compiler) newStringLiteral(text string) oop.Ref {
	r := c.Mem.AllocCString(text)
	if class := c.Mem.Global("String"); !oop.IsNil(class) {
		c.Mem.SetClass(r, class)
	}
	return r
}
