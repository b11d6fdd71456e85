// Package pipe implements the kernel's pipe ring buffers (§4.7), backed
// by circbuf.Circbuf_t the same way the reference tree's UART and
// socket buffering is, with read/write end reference counts and the
// EOF/EAGAIN/EPIPE semantics from
// _examples/original_source/kernel-aarch64/pipe.c. Pipe slots are
// additionally metered through limits.Syslimit.Pipes, the same global
// resource-accounting counter the reference tree charges every pipe
// against (_examples/original_source/kernel-aarch64/limits.c).
package pipe

import "sync"

import "circbuf"
import "defs"
import "fdops"
import "limits"
import "mem"

type pipe_t struct {
	mu        sync.Mutex
	used      bool
	cb        circbuf.Circbuf_t
	readRefs  int
	writeRefs int
}

var pipes [defs.MAX_PIPES]pipe_t

// Create reserves a ring, returning its id or -ENOMEM if every slot is
// in use (§4.7 "pipe_create").
func Create() (int, defs.Err_t) {
	if !limits.Syslimit.Pipes.Take() {
		return -1, -defs.ENOMEM
	}
	for i := range pipes {
		p := &pipes[i]
		p.mu.Lock()
		if !p.used {
			p.used = true
			p.readRefs = 0
			p.writeRefs = 0
			p.cb = circbuf.Circbuf_t{}
			p.cb.Cb_init(defs.PIPE_BUF, mem.DefaultAllocator)
			p.mu.Unlock()
			return i, 0
		}
		p.mu.Unlock()
	}
	limits.Syslimit.Pipes.Give()
	return -1, -defs.ENOMEM
}

// Abort force-frees a pipe id regardless of outstanding references,
// used to unwind a failed pipe2() after one fd allocation succeeded
// but the other didn't.
func Abort(id int) {
	if id < 0 || id >= len(pipes) {
		return
	}
	p := &pipes[id]
	p.mu.Lock()
	defer p.mu.Unlock()
	p.release()
}

func (p *pipe_t) release() {
	if !p.used {
		return
	}
	p.cb.Cb_release()
	p.used = false
	p.readRefs = 0
	p.writeRefs = 0
	limits.Syslimit.Pipes.Give()
}

func (p *pipe_t) maybeFree() {
	if p.used && p.readRefs == 0 && p.writeRefs == 0 {
		p.release()
	}
}

// OnDescIncref bumps the read-end or write-end reference count for a
// newly duplicated pipe file description.
func OnDescIncref(id int, end defs.PipeEnd_t) {
	if id < 0 || id >= len(pipes) {
		return
	}
	p := &pipes[id]
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.used {
		return
	}
	switch end {
	case defs.PIPE_READ:
		p.readRefs++
	case defs.PIPE_WRITE:
		p.writeRefs++
	}
}

// OnDescDecref drops a pipe end's reference count, freeing the ring
// once both ends reach zero (§4.7).
func OnDescDecref(id int, end defs.PipeEnd_t) {
	if id < 0 || id >= len(pipes) {
		return
	}
	p := &pipes[id]
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.used {
		return
	}
	switch end {
	case defs.PIPE_READ:
		if p.readRefs > 0 {
			p.readRefs--
		}
	case defs.PIPE_WRITE:
		if p.writeRefs > 0 {
			p.writeRefs--
		}
	}
	p.maybeFree()
}

// Read copies min(dst's remaining capacity, buffered bytes) into dst.
// An empty buffer with no writers left returns (0, 0) — EOF; an empty
// buffer with writers still open returns -EAGAIN (§4.7 "pipe_read").
func Read(id int, dst fdops.Userio_i) (int, defs.Err_t) {
	if id < 0 || id >= len(pipes) {
		return 0, -defs.EBADF
	}
	p := &pipes[id]
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.used {
		return 0, -defs.EBADF
	}
	if p.cb.Empty() {
		if p.writeRefs == 0 {
			return 0, 0
		}
		return 0, -defs.EAGAIN
	}
	return p.cb.Copyout_n(dst, 0)
}

// Write copies min(src's remaining bytes, available space) from src
// into the ring. No readers left is -EPIPE; a full ring is -EAGAIN
// (§4.7 "pipe_write").
func Write(id int, src fdops.Userio_i) (int, defs.Err_t) {
	if id < 0 || id >= len(pipes) {
		return 0, -defs.EBADF
	}
	p := &pipes[id]
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.used {
		return 0, -defs.EBADF
	}
	if p.readRefs == 0 {
		return 0, -defs.EPIPE
	}
	if p.cb.Full() {
		return 0, -defs.EAGAIN
	}
	return p.cb.Copyin(src)
}

// Fd_t is the fdops.Fdops_i a PIPE-kind file description installs into
// the global fd table (fd.descTbl); its Close is what the last-ref path
// in that table calls to drop this end's pipe reference (§4.6 "also
// update kind-specific refcounts").
type Fd_t struct {
	id  int
	end defs.PipeEnd_t
}

// NewReadEnd and NewWriteEnd wrap a pipe id's two ends for installation
// via fd.AllocDesc; the caller must have already called OnDescIncref for
// the matching end (pipe2() does this once per fd it allocates).
func NewReadEnd(id int) *Fd_t  { return &Fd_t{id: id, end: defs.PIPE_READ} }
func NewWriteEnd(id int) *Fd_t { return &Fd_t{id: id, end: defs.PIPE_WRITE} }

func (f *Fd_t) Close() defs.Err_t {
	OnDescDecref(f.id, f.end)
	return 0
}

func (f *Fd_t) Fstat(st fdops.Stat_i) defs.Err_t {
	st.Wmode(defs.S_IFIFO, 0, 0)
	st.Wsize(0)
	return 0
}

func (f *Fd_t) Lseek(offset int, whence int) (int, defs.Err_t) { return 0, -defs.ESPIPE }
func (f *Fd_t) Pathi() (string, defs.Err_t)                    { return "", -defs.EINVAL }

func (f *Fd_t) Reopen() defs.Err_t {
	OnDescIncref(f.id, f.end)
	return 0
}

func (f *Fd_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if f.end != defs.PIPE_READ {
		return 0, -defs.EINVAL
	}
	return Read(f.id, dst)
}

func (f *Fd_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if f.end != defs.PIPE_WRITE {
		return 0, -defs.EINVAL
	}
	return Write(f.id, src)
}

func (f *Fd_t) Truncate(newlen uint) defs.Err_t          { return -defs.EINVAL }
func (f *Fd_t) Getdents(dst fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.ENOTDIR }
