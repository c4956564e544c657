package codegen

import "fmt"

// symbolTable maps each identifier in the function currently compiling to a
// signed slot index (§3 "Symbol table", C3). Scope is per-function: a fresh
// symbolTable is created at the start of every Compile call.
type symbolTable struct {
	slots    map[string]int
	nextSlot int
}

func newSymbolTable() *symbolTable {
	return &symbolTable{slots: make(map[string]int), nextSlot: 1}
}

// define asserts name is not already bound, allocates a fresh positive
// slot, and records the mapping (§4.3 "define"). Re-definition is a
// programmer invariant violation (§7 class 2).
func (s *symbolTable) define(name string) int {
	if _, ok := s.slots[name]; ok {
		panic(&InvariantError{Msg: fmt.Sprintf("identifier %q redefined in the same scope", name)})
	}
	slot := s.freshSlot()
	s.slots[name] = slot
	return slot
}

// freshSlot allocates an unnamed temporary slot without binding an
// identifier to it, for expression scratch space and destination slots
// (§4.4's "caller pushes the destination slot").
func (s *symbolTable) freshSlot() int {
	slot := s.nextSlot
	s.nextSlot++
	return slot
}

// bindArg binds a stack-passed parameter (index >= 4) to its negative slot
// -(index+2) (§4.3 "bind_arg"), the literal formula from
// original_source/xjit/src/xjit/jit.cpp's parameter-binding loop
// ("SetIdentifierRegister(name, -(i + 2))"). displacement(slot) then lands
// index 4 (the first stack-passed parameter) at [rbp+48], index 5 at
// [rbp+56], and so on: 32 bytes past the naive [rbp+16], matching the
// 32-byte shadow space the caller's trampoline reserves before the
// stack-passed argument area (exec/call_amd64.s).
func (s *symbolTable) bindArg(name string, index int) {
	if _, ok := s.slots[name]; ok {
		panic(&InvariantError{Msg: fmt.Sprintf("identifier %q redefined in the same scope", name)})
	}
	s.slots[name] = -(index + 2)
}

// lookup returns name's slot, or raises an assertion if name is unbound
// (§4.3 "lookup", §7 class 2).
func (s *symbolTable) lookup(name string) int {
	slot, ok := s.slots[name]
	if !ok {
		panic(&InvariantError{Msg: fmt.Sprintf("identifier %q used before definition", name)})
	}
	return slot
}

// frameSize returns next_slot, the value §3's Slot entity says the
// prologue reserves (next_slot × 8 bytes, before 16-byte padding).
func (s *symbolTable) frameSize() int { return s.nextSlot }
