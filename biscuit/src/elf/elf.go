// Package elf implements the ELF64 loader (§4.5), grounded on
// _examples/original_source/kernel-aarch64/elf64.c: validate the
// header and program-header table, copy each PT_LOAD segment's file
// bytes into the process's physical backing, zero-fill BSS, and report
// the entry point and loaded VA range.
package elf

import "encoding/binary"

import "golang.org/x/arch/arm64/arm64asm"

import "defs"

const (
	magic0, magic1, magic2, magic3 = 0x7f, 'E', 'L', 'F'
	classELF64                     = 2
	dataLSB                        = 1
	etExec                         = 2
	emAArch64                      = 183

	ehdrSize = 64
	phdrSize = 56

	ptLoad = 1
)

// ErrBadImage is the single error sentinel elf64_load_etexec returns on
// any validation failure (§4.5 "Fails with a single error sentinel on
// any violation").
const ErrBadImage = -defs.ENOEXEC

// Result carries what the caller (execve) needs after a successful
// load: the entry point and the [min, max) VA range actually written,
// so the I-cache can be synced over exactly that range.
type Result struct {
	Entry uint64
	MinVA uint64
	MaxVA uint64
}

type ehdr struct {
	ident     [16]byte
	typ       uint16
	machine   uint16
	version   uint32
	entry     uint64
	phoff     uint64
	shoff     uint64
	flags     uint32
	ehsize    uint16
	phentsize uint16
	phnum     uint16
	shentsize uint16
	shnum     uint16
	shstrndx  uint16
}

type phdr struct {
	typ    uint32
	flags  uint32
	offset uint64
	vaddr  uint64
	paddr  uint64
	filesz uint64
	memsz  uint64
	align  uint64
}

func parseEhdr(b []byte) (ehdr, bool) {
	var e ehdr
	if len(b) < ehdrSize {
		return e, false
	}
	copy(e.ident[:], b[:16])
	e.typ = binary.LittleEndian.Uint16(b[16:18])
	e.machine = binary.LittleEndian.Uint16(b[18:20])
	e.version = binary.LittleEndian.Uint32(b[20:24])
	e.entry = binary.LittleEndian.Uint64(b[24:32])
	e.phoff = binary.LittleEndian.Uint64(b[32:40])
	e.shoff = binary.LittleEndian.Uint64(b[40:48])
	e.flags = binary.LittleEndian.Uint32(b[48:52])
	e.ehsize = binary.LittleEndian.Uint16(b[52:54])
	e.phentsize = binary.LittleEndian.Uint16(b[54:56])
	e.phnum = binary.LittleEndian.Uint16(b[56:58])
	e.shentsize = binary.LittleEndian.Uint16(b[58:60])
	e.shnum = binary.LittleEndian.Uint16(b[60:62])
	e.shstrndx = binary.LittleEndian.Uint16(b[62:64])
	return e, true
}

func parsePhdr(b []byte) phdr {
	var p phdr
	p.typ = binary.LittleEndian.Uint32(b[0:4])
	p.flags = binary.LittleEndian.Uint32(b[4:8])
	p.offset = binary.LittleEndian.Uint64(b[8:16])
	p.vaddr = binary.LittleEndian.Uint64(b[16:24])
	p.paddr = binary.LittleEndian.Uint64(b[24:32])
	p.filesz = binary.LittleEndian.Uint64(b[32:40])
	p.memsz = binary.LittleEndian.Uint64(b[40:48])
	p.align = binary.LittleEndian.Uint64(b[48:56])
	return p
}

func rangeOK(base, size, p, n uint64) bool {
	if n == 0 {
		return true
	}
	if p < base || p >= base+size {
		return false
	}
	if p+n < p {
		return false
	}
	return p+n <= base+size
}

// LoadETExec validates img as a little-endian, 64-bit, ET_EXEC,
// AArch64 executable and copies each PT_LOAD segment's bytes into
// dstPhys, zero-filling BSS, exactly as elf64_load_etexec does. dstPhys
// must have length >= userSize; userVABase/userSize describe the
// process's user virtual window that every PT_LOAD's p_vaddr range must
// fall within.
func LoadETExec(img []byte, userVABase, userSize uint64, dstPhys []byte) (Result, defs.Err_t) {
	if len(img) < ehdrSize {
		return Result{}, ErrBadImage
	}
	eh, ok := parseEhdr(img)
	if !ok {
		return Result{}, ErrBadImage
	}
	if eh.ident[0] != magic0 || eh.ident[1] != magic1 || eh.ident[2] != magic2 || eh.ident[3] != magic3 {
		return Result{}, ErrBadImage
	}
	if eh.ident[4] != classELF64 || eh.ident[5] != dataLSB {
		return Result{}, ErrBadImage
	}
	if eh.typ != etExec || eh.machine != emAArch64 {
		return Result{}, ErrBadImage
	}
	if eh.phentsize != phdrSize || eh.phnum == 0 {
		return Result{}, ErrBadImage
	}

	phEnd := eh.phoff + uint64(eh.phnum)*uint64(eh.phentsize)
	if phEnd < eh.phoff || phEnd > uint64(len(img)) {
		return Result{}, ErrBadImage
	}

	minVA := ^uint64(0)
	maxVA := uint64(0)

	for i := uint16(0); i < eh.phnum; i++ {
		off := eh.phoff + uint64(i)*phdrSize
		if off+phdrSize > uint64(len(img)) {
			return Result{}, ErrBadImage
		}
		ph := parsePhdr(img[off : off+phdrSize])
		if ph.typ != ptLoad || ph.memsz == 0 {
			continue
		}
		if ph.memsz < ph.filesz {
			return Result{}, ErrBadImage
		}
		if ph.offset+ph.filesz < ph.offset || ph.offset+ph.filesz > uint64(len(img)) {
			return Result{}, ErrBadImage
		}
		if !rangeOK(userVABase, userSize, ph.vaddr, ph.memsz) {
			return Result{}, ErrBadImage
		}

		offInUser := ph.vaddr - userVABase
		if offInUser+ph.memsz < offInUser || offInUser+ph.memsz > userSize {
			return Result{}, ErrBadImage
		}

		dst := dstPhys[offInUser : offInUser+ph.memsz]
		copy(dst[:ph.filesz], img[ph.offset:ph.offset+ph.filesz])
		for j := ph.filesz; j < ph.memsz; j++ {
			dst[j] = 0
		}

		if ph.vaddr < minVA {
			minVA = ph.vaddr
		}
		if ph.vaddr+ph.memsz > maxVA {
			maxVA = ph.vaddr + ph.memsz
		}
	}

	if minVA == ^uint64(0) {
		return Result{}, ErrBadImage
	}

	// Sanity-decode the first instruction at the entry point: a
	// corrupt-but-structurally-valid image (e.g. entry pointing into a
	// zero-filled BSS hole) produces an undecodable opcode here, which
	// is a cheaper signal than waiting for a real trap on first fetch.
	if eh.entry >= minVA && eh.entry+4 <= maxVA {
		entryOff := eh.entry - userVABase
		if entryOff+4 <= uint64(len(dstPhys)) {
			if _, err := arm64asm.Decode(dstPhys[entryOff : entryOff+4]); err != nil {
				return Result{}, ErrBadImage
			}
		}
	}

	return Result{Entry: eh.entry, MinVA: minVA, MaxVA: maxVA}, 0
}
