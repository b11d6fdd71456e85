package fd

import "sync"

import "defs"

// Global file-description table (§4.6). Every process's per-FD array
// holds indices into this table rather than Fd_t values directly, so
// fork/dup can share one underlying description and its I/O state
// (pipe ring position, ramfile offset) across FD slots and processes.
var (
	descMu  sync.Mutex
	descTbl [defs.MAX_FILEDESCS]descSlot
)

type descSlot struct {
	fd     *Fd_t
	refcnt int
}

// AllocDesc finds a description slot with refcount zero, installs fd
// with refcount 1, and returns its index, or -EMFILE if the table is
// full.
func AllocDesc(fd *Fd_t) (int, defs.Err_t) {
	descMu.Lock()
	defer descMu.Unlock()
	for i := range descTbl {
		if descTbl[i].refcnt == 0 {
			descTbl[i] = descSlot{fd: fd, refcnt: 1}
			return i, 0
		}
	}
	return -1, -defs.EMFILE
}

// Desc returns the Fd_t installed at descriptor table index i, or nil
// if the slot is empty.
func Desc(i int) *Fd_t {
	descMu.Lock()
	defer descMu.Unlock()
	if i < 0 || i >= len(descTbl) || descTbl[i].refcnt == 0 {
		return nil
	}
	return descTbl[i].fd
}

// Incref bumps the description's reference count, for a process FD
// table entry that is about to point at the same description (dup,
// fork).
func Incref(i int) {
	descMu.Lock()
	defer descMu.Unlock()
	if i < 0 || i >= len(descTbl) || descTbl[i].refcnt == 0 {
		return
	}
	descTbl[i].refcnt++
}

// Decref drops the description's reference count. When it reaches
// zero, the underlying Fops is closed — which is where pipe/socket
// kinds update their own end-specific refcounts (releasing a pipe end,
// dropping a TCP conn) — and the slot is cleared.
func Decref(i int) defs.Err_t {
	descMu.Lock()
	if i < 0 || i >= len(descTbl) || descTbl[i].refcnt == 0 {
		descMu.Unlock()
		return -defs.EBADF
	}
	descTbl[i].refcnt--
	last := descTbl[i].refcnt == 0
	fd := descTbl[i].fd
	if last {
		descTbl[i] = descSlot{}
	}
	descMu.Unlock()
	if last {
		return fd.Fops.Close()
	}
	return 0
}

// Refcnt reports the current reference count of the description at i,
// used by /proc/ps-style diagnostics and tests.
func Refcnt(i int) int {
	descMu.Lock()
	defer descMu.Unlock()
	if i < 0 || i >= len(descTbl) {
		return 0
	}
	return descTbl[i].refcnt
}

// ResetTable clears every description slot; called by
// proc_init_if_needed (§4.10) on first boot and by tests.
func ResetTable() {
	descMu.Lock()
	defer descMu.Unlock()
	for i := range descTbl {
		descTbl[i] = descSlot{}
	}
}

// Procfds is a process's private view into the global description
// table: MAX_FDS slots, each either -1 (closed) or an index into the
// global table.
type Procfds struct {
	slots [defs.MAX_FDS]int
}

// NewProcfds returns a Procfds with every slot marked closed.
func NewProcfds() *Procfds {
	p := &Procfds{}
	p.Clear()
	return p
}

// Clear marks every FD slot closed, without touching the global table
// (callers must Decref any installed descriptions first).
func (p *Procfds) Clear() {
	for i := range p.slots {
		p.slots[i] = -1
	}
}

// AllocInto scans FD slots starting at min upward for the first closed
// one, installs descIdx there with an incremented reference count, and
// returns the FD number (§4.6 "fd_alloc_into").
func (p *Procfds) AllocInto(min, descIdx int) (int, defs.Err_t) {
	if min < 0 {
		min = 0
	}
	for i := min; i < len(p.slots); i++ {
		if p.slots[i] == -1 {
			Incref(descIdx)
			p.slots[i] = descIdx
			return i, 0
		}
	}
	return 0, -defs.EMFILE
}

// Install directly sets fdno to descIdx (used by dup2-style calls that
// require a specific FD number), incrementing the description's
// refcount and closing whatever was previously there.
func (p *Procfds) Install(fdno, descIdx int) defs.Err_t {
	if fdno < 0 || fdno >= len(p.slots) {
		return -defs.EBADF
	}
	if p.slots[fdno] != -1 {
		Decref(p.slots[fdno])
	}
	Incref(descIdx)
	p.slots[fdno] = descIdx
	return 0
}

// Get returns the global description index installed at fdno, or
// -EBADF if that slot is closed.
func (p *Procfds) Get(fdno int) (int, defs.Err_t) {
	if fdno < 0 || fdno >= len(p.slots) {
		return 0, -defs.EBADF
	}
	if p.slots[fdno] == -1 {
		return 0, -defs.EBADF
	}
	return p.slots[fdno], 0
}

// Close drops fdno's reference to its description (fd_close, §4.6) and
// marks the slot empty.
func (p *Procfds) Close(fdno int) defs.Err_t {
	if fdno < 0 || fdno >= len(p.slots) {
		return -defs.EBADF
	}
	idx := p.slots[fdno]
	if idx == -1 {
		return -defs.EBADF
	}
	p.slots[fdno] = -1
	return Decref(idx)
}

// Fork returns a new Procfds sharing every open description with p,
// each with its reference count bumped, for clone's FD-table
// duplication (§4.11).
func (p *Procfds) Fork() *Procfds {
	np := NewProcfds()
	for i, idx := range p.slots {
		if idx == -1 {
			continue
		}
		Incref(idx)
		np.slots[i] = idx
	}
	return np
}
