package main

import "crypto/rand"
import "encoding/binary"

import "defs"
import "vm"

// userWriter abstracts writing a byte slice at a user virtual address,
// so stackLayout serves both main's boot-time load (no Vm_t exists yet;
// the region is still identity-mapped physical memory) and execve's
// post-ELF-load stack rebuild (a live Vm_t with its own physical
// backing), without duplicating the layout logic (§4.12 "execve").
type userWriter interface {
	writeAt(uva int, b []byte) defs.Err_t
}

// physWriter writes directly into an identity-mapped physical byte
// slice, used only during main's bootstrap of pid 1 before any Vm_t
// exists to route the write through.
type physWriter struct{ dst []byte }

func (w physWriter) writeAt(uva int, b []byte) defs.Err_t {
	off := uva - defs.USER_REGION_BASE
	if off < 0 || off+len(b) > len(w.dst) {
		return -defs.EFAULT
	}
	copy(w.dst[off:], b)
	return 0
}

// vmWriter writes through a process's address space, used by execve
// once a real Vm_t is in play.
type vmWriter struct{ as *vm.Vm_t }

func (w vmWriter) writeAt(uva int, b []byte) defs.Err_t { return w.as.K2user(b, uva) }

const ptrSize = 8

func align16Down(v int) int { return v &^ 15 }

// stackLayout writes argv, envp, the execfn/platform strings, 16 random
// AT_RANDOM bytes, and the auxv table below top, returning the 16-byte
// aligned stack pointer execve/pid-1 bootstrap installs into sp_el0
// (§4.12, §6 "External interfaces" auxv list). The layout, low to high
// address: argc, argv[] (NUL-terminated pointer array), envp[] (ditto),
// auxv pairs terminated by {AT_NULL, 0}, then the string/random data the
// pointers above reference.
func stackLayout(w userWriter, top int, argv, envp []string, execpath string, entry uint64) (sp int, reterr defs.Err_t) {
	cur := top

	writeStr := func(s string) int {
		b := append([]byte(s), 0)
		cur -= len(b)
		if reterr == 0 {
			if err := w.writeAt(cur, b); err != 0 {
				reterr = err
			}
		}
		return cur
	}
	writeBytes := func(b []byte) int {
		cur -= len(b)
		if reterr == 0 {
			if err := w.writeAt(cur, b); err != 0 {
				reterr = err
			}
		}
		return cur
	}

	execfnVA := writeStr(execpath)
	platformVA := writeStr("aarch64")

	var randbuf [16]byte
	rand.Read(randbuf[:])
	randomVA := writeBytes(randbuf[:])

	argvVAs := make([]int, len(argv))
	for i, s := range argv {
		argvVAs[i] = writeStr(s)
	}
	envpVAs := make([]int, len(envp))
	for i, s := range envp {
		envpVAs[i] = writeStr(s)
	}

	cur = align16Down(cur)

	type auxEnt struct{ id, val uint64 }
	auxv := []auxEnt{
		{defs.AT_PAGESZ, uint64(defs.PGSIZE)},
		{defs.AT_ENTRY, entry},
		{defs.AT_UID, 0},
		{defs.AT_EUID, 0},
		{defs.AT_GID, 0},
		{defs.AT_EGID, 0},
		{defs.AT_SECURE, 0},
		{defs.AT_RANDOM, uint64(randomVA)},
		{defs.AT_PLATFORM, uint64(platformVA)},
		{defs.AT_EXECFN, uint64(execfnVA)},
		{defs.AT_NULL, 0},
	}

	// Compute the total size of the pointer-vector block (argc + argv +
	// NUL + envp + NUL + auxv pairs) so cur can be decremented once and
	// written forward, matching how a real stack is actually laid out
	// (low addresses hold argc/argv/envp/auxv, high addresses hold the
	// string bytes they point into).
	vecWords := 1 + len(argv) + 1 + len(envp) + 1 + 2*len(auxv)
	cur -= vecWords * ptrSize
	cur = align16Down(cur)
	sp = cur

	putWord := func(v uint64) {
		var b [ptrSize]byte
		binary.LittleEndian.PutUint64(b[:], v)
		if reterr == 0 {
			if err := w.writeAt(cur, b[:]); err != 0 {
				reterr = err
			}
		}
		cur += ptrSize
	}

	putWord(uint64(len(argv)))
	for _, va := range argvVAs {
		putWord(uint64(va))
	}
	putWord(0)
	for _, va := range envpVAs {
		putWord(uint64(va))
	}
	putWord(0)
	for _, a := range auxv {
		putWord(a.id)
		putWord(a.val)
	}

	return sp, reterr
}
