// Package elfwriter writes small ELF64 little endian executables, enough
// to stand in for firmware and kernel images. Section headers are not
// written.
package elfwriter

import (
	"debug/elf"
	"encoding/binary"
	"io"
)

const (
	ehsize    = 64
	phentsize = 56
)

// WriteSeeker is the union of io.Writer and io.Seeker.
type WriteSeeker interface {
	io.Writer
	io.Seeker
}

// Segment is a loadable segment.
type Segment struct {
	Vaddr uint64
	Flags elf.ProgFlag
	Data  []byte
}

// Writer writes ELF files.
type Writer struct {
	w     WriteSeeker
	Err   error
	Progs []*elf.ProgHeader

	seekProgHeader int64
	seekProgNum    int64
}

// New writes the file header and returns a Writer positioned after it.
func New(w WriteSeeker, machine elf.Machine, entry uint64) *Writer {
	r := &Writer{w: w}
	if seek, _ := w.Seek(0, io.SeekCurrent); seek != 0 {
		r.Err = errHalfway
		return r
	}

	// e_ident
	r.Write([]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT), byte(elf.ELFOSABI_NONE), 0, 0, 0, 0, 0, 0, 0, 0})

	r.u16(uint16(elf.ET_EXEC))    // e_type
	r.u16(uint16(machine))        // e_machine
	r.u32(uint32(elf.EV_CURRENT)) // e_version
	r.u64(entry)                  // e_entry
	r.seekProgHeader = r.Here()
	r.u64(0)         // e_phoff
	r.u64(0)         // e_shoff
	r.u32(0)         // e_flags
	r.u16(ehsize)    // e_ehsize
	r.u16(phentsize) // e_phentsize
	r.seekProgNum = r.Here()
	r.u16(0)                     // e_phnum
	r.u16(0)                     // e_shentsize
	r.u16(0)                     // e_shnum
	r.u16(uint16(elf.SHN_UNDEF)) // e_shstrndx

	return r
}

// WriteSegment writes the contents of s at the current location and
// records a PT_LOAD program header for it.
func (w *Writer) WriteSegment(s Segment) {
	w.Align(16)
	h := &elf.ProgHeader{
		Type:   elf.PT_LOAD,
		Flags:  s.Flags,
		Off:    uint64(w.Here()),
		Vaddr:  s.Vaddr,
		Paddr:  s.Vaddr,
		Filesz: uint64(len(s.Data)),
		Memsz:  uint64(len(s.Data)),
		Align:  16,
	}
	w.Write(s.Data)
	w.Progs = append(w.Progs, h)
}

// WriteProgramHeaders writes the program headers at the current location
// and patches the file header accordingly.
func (w *Writer) WriteProgramHeaders() {
	w.Align(8)
	phoff := w.Here()

	// Patch File Header
	w.seek(w.seekProgHeader, io.SeekStart)
	w.u64(uint64(phoff))
	w.seek(w.seekProgNum, io.SeekStart)
	w.u16(uint16(len(w.Progs)))
	w.seek(0, io.SeekEnd)

	for _, prog := range w.Progs {
		w.u32(uint32(prog.Type))
		w.u32(uint32(prog.Flags))
		w.u64(prog.Off)
		w.u64(prog.Vaddr)
		w.u64(prog.Paddr)
		w.u64(prog.Filesz)
		w.u64(prog.Memsz)
		w.u64(prog.Align)
	}
}

// WriteImage writes an executable for machine with the given entry point
// and segments.
func WriteImage(w WriteSeeker, machine elf.Machine, entry uint64, segs ...Segment) error {
	ew := New(w, machine, entry)
	for _, s := range segs {
		ew.WriteSegment(s)
	}
	ew.WriteProgramHeaders()
	return ew.Err
}

// Here returns the current seek offset from the start of the file.
func (w *Writer) Here() int64 {
	return w.seek(0, io.SeekCurrent)
}

func (w *Writer) seek(off int64, whence int) int64 {
	r, err := w.w.Seek(off, whence)
	if err != nil && w.Err == nil {
		w.Err = err
	}
	return r
}

// Align writes as many padding bytes as needed to make the current file
// offset a multiple of align.
func (w *Writer) Align(align int64) {
	off := w.Here()
	alignOff := (off + (align - 1)) &^ (align - 1)
	if alignOff-off > 0 {
		w.Write(make([]byte, alignOff-off))
	}
}

func (w *Writer) Write(buf []byte) {
	_, err := w.w.Write(buf)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) u16(n uint16) {
	err := binary.Write(w.w, binary.LittleEndian, n)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) u32(n uint32) {
	err := binary.Write(w.w, binary.LittleEndian, n)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) u64(n uint64) {
	err := binary.Write(w.w, binary.LittleEndian, n)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}
