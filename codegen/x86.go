package codegen

// Instruction encoding helpers for the x86-64 SSE2 subset the emitter needs
// (§4.1 C1). Each helper appends one complete, byte-exact instruction;
// jump/call forms that need a later fixup return the offset of their 4-byte
// immediate instead of patching in place.
//
// Register numbering is the raw 3-bit ModRM/SIB field value; this emitter
// only ever addresses rax/rbp among general registers and xmm0-xmm3 among
// vector registers, so no REX.R/X/B extension bits are ever needed.
const (
	regRAX = 0
	regRBP = 5
)

// modrmDisp32 builds a ModRM byte selecting [rm + disp32] as the r/m operand
// (mod=10) with reg as the register operand.
func modrmDisp32(reg, rm int) byte {
	return 0x80 | byte(reg&7)<<3 | byte(rm&7)
}

// modrmReg builds a ModRM byte selecting rm as a direct register operand
// (mod=11) with reg as the register operand.
func modrmReg(reg, rm int) byte {
	return 0xC0 | byte(reg&7)<<3 | byte(rm&7)
}

// modrmIndirect builds a ModRM byte selecting [rm] with no displacement
// (mod=00); only valid when rm isn't rbp/rsp, which this emitter never
// passes here (the only indirect-through-register addressing is [rax]).
func modrmIndirect(reg, rm int) byte {
	return byte(reg&7)<<3 | byte(rm&7)
}

func (b *codeBuffer) pushRBP()    { b.pushBytes(0x55) }
func (b *codeBuffer) popRBP()     { b.pushBytes(0x5D) }
func (b *codeBuffer) movRBPRSP()  { b.pushBytes(0x48, 0x89, 0xE5) }
func (b *codeBuffer) movRSPRBP()  { b.pushBytes(0x48, 0x89, 0xEC) }
func (b *codeBuffer) ret()        { b.pushBytes(0xC3) }

// subRSPImm32 emits "sub rsp, imm32" and returns the offset of the 4-byte
// immediate, so the prologue's placeholder frame size can be patched once
// next_slot is known (§4.4 function-declaration step 6).
func (b *codeBuffer) subRSPImm32(imm uint32) int {
	b.pushBytes(0x48, 0x81, 0xEC)
	off := b.len()
	b.pushU32(imm)
	return off
}

func (b *codeBuffer) addRSPImm32(imm uint32) {
	b.pushBytes(0x48, 0x81, 0xC4)
	b.pushU32(imm)
}

// movMemXmmStore emits "movq [rbp+disp], xmmN" — used to spill a
// register-passed argument into its parameter slot (§4.4 step 2).
func (b *codeBuffer) movMemXmmStore(disp int32, xmmN int) {
	b.pushBytes(0x66, 0x0F, 0xD6, modrmDisp32(xmmN, regRBP))
	b.pushU32(uint32(disp))
}

// movabsRAX emits "movabs rax, imm64".
func (b *codeBuffer) movabsRAX(imm uint64) {
	b.pushBytes(0x48, 0xB8)
	b.pushU64(imm)
}

// movRAXIndirect emits "mov rax, [rax]" — dereferences the literal-pool
// address movabsRAX just loaded, yielding the constant's raw 8-byte bit
// pattern (§4.4 "Literal").
func (b *codeBuffer) movRAXIndirect() {
	b.pushBytes(0x48, 0x8B, modrmIndirect(regRAX, regRAX))
}

// movMemRAXStore emits "mov [rbp+disp], rax".
func (b *codeBuffer) movMemRAXStore(disp int32) {
	b.pushBytes(0x48, 0x89, modrmDisp32(regRAX, regRBP))
	b.pushU32(uint32(disp))
}

// movsdXmmMemLoad emits "movsd xmmN, [rbp+disp]".
func (b *codeBuffer) movsdXmmMemLoad(xmmN int, disp int32) {
	b.pushBytes(0xF2, 0x0F, 0x10, modrmDisp32(xmmN, regRBP))
	b.pushU32(uint32(disp))
}

// movsdMemXmmStore emits "movsd [rbp+disp], xmmN".
func (b *codeBuffer) movsdMemXmmStore(disp int32, xmmN int) {
	b.pushBytes(0xF2, 0x0F, 0x11, modrmDisp32(xmmN, regRBP))
	b.pushU32(uint32(disp))
}

// movsdXmmXmm emits "movsd dst, src", register-to-register.
func (b *codeBuffer) movsdXmmXmm(dst, src int) {
	b.pushBytes(0xF2, 0x0F, 0x10, modrmReg(dst, src))
}

// movsdXmmIndirect emits "movsd xmmN, [rax]".
func (b *codeBuffer) movsdXmmIndirect(xmmN int) {
	b.pushBytes(0xF2, 0x0F, 0x10, modrmIndirect(xmmN, regRAX))
}

// arithSD emits one of addsd/subsd/mulsd/divsd dst, src. op is the SSE
// opcode second byte from §4.4's "SSE arithmetic opcode second byte" table.
func (b *codeBuffer) arithSD(op byte, dst, src int) {
	b.pushBytes(0xF2, 0x0F, op, modrmReg(dst, src))
}

// cmpsd emits "cmpsd dst, src, predicate" using one of §4.4's "SSE
// comparison predicate bytes".
func (b *codeBuffer) cmpsd(dst, src int, predicate byte) {
	b.pushBytes(0xF2, 0x0F, 0xC2, modrmReg(dst, src), predicate)
}

func (b *codeBuffer) pand(dst, src int)  { b.pushBytes(0x66, 0x0F, 0xDB, modrmReg(dst, src)) }
func (b *codeBuffer) por(dst, src int)   { b.pushBytes(0x66, 0x0F, 0xEB, modrmReg(dst, src)) }
func (b *codeBuffer) pxor(dst, src int)  { b.pushBytes(0x66, 0x0F, 0xEF, modrmReg(dst, src)) }
func (b *codeBuffer) xorpd(dst, src int) { b.pushBytes(0x66, 0x0F, 0x57, modrmReg(dst, src)) }

// ucomisdXmmMem emits "ucomisd xmmN, [rbp+disp]" (§4.5).
func (b *codeBuffer) ucomisdXmmMem(xmmN int, disp int32) {
	b.pushBytes(0x66, 0x0F, 0x2E, modrmDisp32(xmmN, regRBP))
	b.pushU32(uint32(disp))
}

// jp emits "jp rel32" with a placeholder immediate and returns its offset.
func (b *codeBuffer) jp() int { return b.jcc(0x8A) }

// je emits "je rel32" with a placeholder immediate and returns its offset.
func (b *codeBuffer) je() int { return b.jcc(0x84) }

func (b *codeBuffer) jcc(cc byte) int {
	b.pushBytes(0x0F, cc)
	return b.placeholder32()
}

// jmpRel32Placeholder emits "jmp rel32" with a placeholder immediate and
// returns its offset, for a forward reference patched later.
func (b *codeBuffer) jmpRel32Placeholder() int {
	b.pushBytes(0xE9)
	return b.placeholder32()
}

// jmpBackTo emits "jmp rel32" to a target that is already known (a
// backward branch, e.g. a loop's back edge).
func (b *codeBuffer) jmpBackTo(target int) {
	off := b.jmpRel32Placeholder()
	b.patchJump(off, target)
}

// patchJump patches the rel32 immediate at off (the offset returned by a
// jp/je/jmpRel32Placeholder call) so the jump lands at target.
func (b *codeBuffer) patchJump(off, target int) {
	b.patchU32(off, uint32(relative32(off+4, target)))
}

// movabsRAXCallRAX emits "movabs rax, addr; call rax" (§4.7 runtime-call
// sequence).
func (b *codeBuffer) movabsRAXCallRAX(addr uint64) {
	b.movabsRAX(addr)
	b.pushBytes(0xFF, 0xD0)
}
