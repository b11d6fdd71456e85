package vm

import "defs"

// Userbuf_t adapts a process's address space plus a (uva, len) window
// into the fdops.Userio_i a read/write syscall handler expects, so
// UART/pipe/ramfile implementations never see a raw user pointer
// directly (§9 "Pointer-to-user accesses"). Unlike the reference
// tree's version there is no page-fault path to retry: translate
// either succeeds outright (the whole 2 MiB user region is always
// resident, §4.2) or fails with EFAULT.
type Userbuf_t struct {
	as     *Vm_t
	userva int
	len    int
	off    int
}

// UbInit initializes ub to reference [uva, uva+n) in as.
func (ub *Userbuf_t) UbInit(as *Vm_t, uva, n int) {
	if n < 0 {
		panic("negative length")
	}
	ub.as = as
	ub.userva = uva
	ub.len = n
	ub.off = 0
}

// Remain returns the number of unconsumed bytes in the buffer.
func (ub *Userbuf_t) Remain() int { return ub.len - ub.off }

// Totalsz returns the buffer's total length.
func (ub *Userbuf_t) Totalsz() int { return ub.len }

// Uioread copies from user memory into dst.
func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return ub.tx(dst, false)
}

// Uiowrite copies from src into user memory.
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return ub.tx(src, true)
}

func (ub *Userbuf_t) tx(buf []uint8, write bool) (int, defs.Err_t) {
	n := len(buf)
	if left := ub.Remain(); n > left {
		n = left
	}
	if n == 0 {
		return 0, 0
	}
	uva := ub.userva + ub.off
	var err defs.Err_t
	if write {
		err = ub.as.K2user(buf[:n], uva)
	} else {
		err = ub.as.User2k(buf[:n], uva)
	}
	if err != 0 {
		return 0, err
	}
	ub.off += n
	return n, 0
}

// Fakeubuf_t implements the same Userio_i surface as Userbuf_t but
// reads/writes a plain kernel byte slice, for code that needs to treat
// a kernel buffer (e.g. a snapshot taken during execve, or a rendered
// /proc/ps page) like user memory without an address space (§11).
type Fakeubuf_t struct {
	buf []uint8
	len int
}

// FakeInit sets up the fake buffer over buf.
func (fb *Fakeubuf_t) FakeInit(buf []uint8) {
	fb.buf = buf
	fb.len = len(buf)
}

// Remain returns the number of bytes left to transfer.
func (fb *Fakeubuf_t) Remain() int { return len(fb.buf) }

// Totalsz returns the buffer's original length.
func (fb *Fakeubuf_t) Totalsz() int { return fb.len }

func (fb *Fakeubuf_t) tx(buf []uint8, tofbuf bool) (int, defs.Err_t) {
	var c int
	if tofbuf {
		c = copy(fb.buf, buf)
	} else {
		c = copy(buf, fb.buf)
	}
	fb.buf = fb.buf[c:]
	return c, 0
}

// Uioread copies from the fake buffer into dst.
func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) { return fb.tx(dst, false) }

// Uiowrite copies from src into the fake buffer.
func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) { return fb.tx(src, true) }
