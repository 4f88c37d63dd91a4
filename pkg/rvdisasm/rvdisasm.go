// Package rvdisasm decodes RISC-V instructions read from the target.
package rvdisasm

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/arch/riscv64/riscv64asm"
)

// MaxInstLen is the number of bytes to read to be sure to cover one
// instruction.
const MaxInstLen = 4

// ErrShortInput is returned when fewer bytes than the instruction length
// are available.
var ErrShortInput = errors.New("not enough bytes to decode an instruction")

// Instruction is one decoded instruction.
type Instruction struct {
	PC    uint64
	Len   int
	Bytes []byte
	Text  string
}

func (inst Instruction) String() string {
	var hex strings.Builder
	for _, b := range inst.Bytes {
		fmt.Fprintf(&hex, "%02x", b)
	}
	return fmt.Sprintf("%#x:\t%-8s\t%s", inst.PC, hex.String(), inst.Text)
}

// instLen returns the length of the instruction starting with the
// halfword lo: 2 for compressed instructions, 4 otherwise.
func instLen(lo byte) int {
	if lo&0x3 != 0x3 {
		return 2
	}
	return 4
}

// Decode decodes the instruction at pc, whose bytes (in memory order) are
// in mem.
func Decode(pc uint64, mem []byte) (Instruction, error) {
	if len(mem) < 2 {
		return Instruction{}, ErrShortInput
	}
	n := instLen(mem[0])
	if len(mem) < n {
		return Instruction{}, ErrShortInput
	}
	inst, err := riscv64asm.Decode(mem[:n])
	if err != nil {
		return Instruction{PC: pc, Len: n, Bytes: mem[:n], Text: "?"}, fmt.Errorf("decoding instruction at %#x: %v", pc, err)
	}
	if inst.Len > 0 {
		n = inst.Len
	}
	return Instruction{
		PC:    pc,
		Len:   n,
		Bytes: append([]byte(nil), mem[:n]...),
		Text:  riscv64asm.GNUSyntax(inst),
	}, nil
}

// DecodeAll decodes consecutive instructions starting at pc, stopping at
// the first one that cannot be decoded or at the end of mem.
func DecodeAll(pc uint64, mem []byte) ([]Instruction, error) {
	var r []Instruction
	for len(mem) > 0 {
		inst, err := Decode(pc, mem)
		if err != nil {
			if err == ErrShortInput && len(r) > 0 {
				return r, nil
			}
			return r, err
		}
		r = append(r, inst)
		pc += uint64(inst.Len)
		mem = mem[inst.Len:]
	}
	return r, nil
}
