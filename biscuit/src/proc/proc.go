// Package proc implements the process table and process lifecycle
// (§4.10), grounded on _examples/original_source/kernel-aarch64/proc.c:
// a fixed-size array of process-control blocks, a free-slot scan, and
// the first-syscall bootstrap that brings up pid 1 in the identity
// address space the kernel itself booted into.
package proc

import "fmt"
import "sync"

import "accnt"
import "defs"
import "fd"
import "fdops"
import "mem"
import "vfs"
import "vm"

// State_t is a process's scheduling state (§3 "Process").
type State_t int

const (
	UNUSED State_t = iota
	RUNNABLE
	RUNNING
	SLEEPING
	WAITING
	ZOMBIE
)

func (s State_t) String() string {
	switch s {
	case UNUSED:
		return "UNUSED"
	case RUNNABLE:
		return "RUNNABLE"
	case RUNNING:
		return "RUNNING"
	case SLEEPING:
		return "SLEEPING"
	case WAITING:
		return "WAITING"
	case ZOMBIE:
		return "ZOMBIE"
	default:
		return "?"
	}
}

// Code renders the single-letter STATE column /proc/ps uses (§4.18):
// R for RUNNABLE/RUNNING, S for SLEEPING, W for WAITING, Z for ZOMBIE,
// U for UNUSED.
func (s State_t) Code() byte {
	switch s {
	case RUNNABLE, RUNNING:
		return 'R'
	case SLEEPING:
		return 'S'
	case WAITING:
		return 'W'
	case ZOMBIE:
		return 'Z'
	default:
		return 'U'
	}
}

// TrapFrame_t mirrors the AArch64 trap frame saved on every EL0
// exception entry: the 31 general registers plus the user stack
// pointer (sp_el0 is banked separately from SP_EL1, §4.16).
type TrapFrame_t struct {
	X    [31]uint64
	SpEl0 uint64
}

func tfCopy(dst, src *TrapFrame_t) { *dst = *src }
func tfZero(tf *TrapFrame_t)       { *tf = TrapFrame_t{} }

// Proc_t is one process-table slot (§3 "Process").
type Proc_t struct {
	Pid  defs.Pid_t
	Ppid defs.Pid_t
	State State_t

	Vm       vm.Vm_t
	StackLow int

	Cwd string
	Fds *fd.Procfds

	Tf  TrapFrame_t
	Elr uint64

	ExitCode int

	ClearChildTidUser uint64

	WaitTargetPid  defs.Pid_t
	WaitStatusUser uint64

	SleepDeadlineNs int64

	// Accnt holds this process's user/system time accounting. Clear
	// resets it; nothing else in this tree updates or reports it.
	Accnt accnt.Accnt_t
}

const maxProcs = defs.N_PROC

var (
	mu        sync.Mutex
	procs     [maxProcs]Proc_t
	nextPid   defs.Pid_t = 1
	CurProc   int
	LastSched int
	inited    bool
)

// Clear resets p to its just-allocated zero state (§4.10 "proc_clear").
func Clear(p *Proc_t) {
	p.Pid = 0
	p.Ppid = 0
	p.State = UNUSED
	p.Vm.Clear()
	p.StackLow = 0
	p.Cwd = "/"
	if p.Fds == nil {
		p.Fds = fd.NewProcfds()
	} else {
		p.Fds.Clear()
	}
	tfZero(&p.Tf)
	p.Elr = 0
	p.ExitCode = 0
	p.ClearChildTidUser = 0
	p.WaitTargetPid = 0
	p.WaitStatusUser = 0
	p.SleepDeadlineNs = 0
	p.Accnt = accnt.Accnt_t{}
}

// FindFreeSlot returns the index of the first UNUSED slot, or -1 if the
// table is full (§4.10 "proc_find_free_slot").
func FindFreeSlot() int {
	for i := range procs {
		if procs[i].State == UNUSED {
			return i
		}
	}
	return -1
}

// At returns the process-table slot at index i.
func At(i int) *Proc_t { return &procs[i] }

// AllocPid hands out the next process id (§4.10 "g_next_pid++"), used
// by clone to give a forked child an identity distinct from its
// parent's.
func AllocPid() defs.Pid_t {
	mu.Lock()
	defer mu.Unlock()
	pid := nextPid
	nextPid++
	return pid
}

// Current returns the currently scheduled process.
func Current() *Proc_t { return &procs[CurProc] }

// Lock/Unlock guard the whole process table; the scheduler runs
// cooperatively on a single CPU (§5), so this is a single coarse mutex
// rather than per-slot locks, matching the reference tree's posture
// that only the syscall/exception path ever touches g_procs.
func Lock()   { mu.Lock() }
func Unlock() { mu.Unlock() }

// Each calls cb with the index and slot of every non-UNUSED process, in
// slot order, used by wait4's child scan and by /proc/ps rendering.
func Each(cb func(i int, p *Proc_t)) {
	for i := range procs {
		if procs[i].State != UNUSED {
			cb(i, &procs[i])
		}
	}
}

// InitIfNeeded brings up the process/pipe/fd/VFS subsystems on the
// first syscall entry and installs pid 1 into slot 0 running in the
// identity TTBR0 the kernel booted with (§4.10 "proc_init_if_needed").
// archive is the initramfs CPIO blob (nil is valid: an empty
// filesystem under the root directory).
func InitIfNeeded(elr uint64, tf *TrapFrame_t, archive []byte, identityTTBR0 mem.Pa_t, userPABase mem.Pa_t) {
	mu.Lock()
	defer mu.Unlock()
	if inited {
		return
	}

	fd.ResetTable()
	for i := range procs {
		procs[i].Fds = nil
		Clear(&procs[i])
	}
	vfs.Init(archive)

	CurProc = 0
	LastSched = 0
	p := &procs[0]
	Clear(p)
	p.Pid = nextPid
	nextPid++
	p.Ppid = 0
	p.State = RUNNABLE
	p.Vm.Init(userPABase, identityTTBR0)
	p.StackLow = int(tf.SpEl0)
	tfCopy(&p.Tf, tf)
	p.Elr = elr

	// A single UART description is shared at fds 0/1/2 (stdin/stdout/
	// stderr); refs start at 1 for the allocation itself, each of the
	// three installs adds one, and the allocation's ref is then dropped,
	// net 3.
	descIdx, err := fd.AllocDesc(uartFdops())
	if err == 0 {
		// AllocDesc starts refcnt at 1; each Install below adds its own
		// incref, leaving one decref needed to land at exactly 3 (one
		// per installed fd), matching the reference tree's balancing.
		for i := 0; i < 3; i++ {
			p.Fds.Install(i, descIdx)
		}
		fd.Decref(descIdx)
	}

	inited = true
}

// uartFdopsHook lets cmd/kernel register the concrete UART Fdops_i
// implementation without proc importing the uart package, which would
// create a proc -> uart -> fd -> proc layering cycle; cmd/kernel wires
// it once at boot, before the first syscall triggers InitIfNeeded.
var uartFdopsHook func() *fd.Fd_t

// SetUartFdops installs the constructor for the UART file description
// shared at fds 0/1/2 during bootstrap.
func SetUartFdops(mk func() *fd.Fd_t) { uartFdopsHook = mk }

func uartFdops() *fd.Fd_t {
	if uartFdopsHook != nil {
		return uartFdopsHook()
	}
	return &fd.Fd_t{Fops: nullFdops{}, Perms: fd.FD_READ | fd.FD_WRITE}
}

// nullFdops is installed at fds 0/1/2 only if cmd/kernel never called
// SetUartFdops (e.g. a unit test exercising InitIfNeeded in isolation);
// it discards writes and returns EOF on read rather than leaving a nil
// Fops that would panic on first use.
type nullFdops struct{}

func (nullFdops) Close() defs.Err_t  { return 0 }
func (nullFdops) Fstat(st fdops.Stat_i) defs.Err_t {
	st.Wmode(uint(defs.S_IFCHR), 0, 0)
	return 0
}
func (nullFdops) Lseek(offset int, whence int) (int, defs.Err_t) { return 0, -defs.ESPIPE }
func (nullFdops) Pathi() (string, defs.Err_t)                    { return "", -defs.EINVAL }
func (nullFdops) Reopen() defs.Err_t                             { return 0 }
func (nullFdops) Read(dst fdops.Userio_i) (int, defs.Err_t)      { return 0, 0 }
func (nullFdops) Write(src fdops.Userio_i) (int, defs.Err_t)     { return src.Remain(), 0 }
func (nullFdops) Truncate(newlen uint) defs.Err_t                { return -defs.EINVAL }
func (nullFdops) Getdents(dst fdops.Userio_i) (int, defs.Err_t)  { return 0, -defs.ENOTDIR }

// PsFd_t implements the DESC_PROC file description backing /proc/ps
// (§3, §4.18): each Read re-renders the live process table from
// scratch rather than caching the page across calls, so a second
// short read genuinely reflects the table's current state.
type PsFd_t struct {
	off int
}

func (f *PsFd_t) Close() defs.Err_t  { return 0 }
func (f *PsFd_t) Reopen() defs.Err_t { return 0 }
func (f *PsFd_t) Pathi() (string, defs.Err_t)               { return "/proc/ps", 0 }
func (f *PsFd_t) Write(src fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.EROFS }
func (f *PsFd_t) Truncate(newlen uint) defs.Err_t            { return -defs.EINVAL }
func (f *PsFd_t) Getdents(dst fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.ENOTDIR }
func (f *PsFd_t) Lseek(offset int, whence int) (int, defs.Err_t) {
	if whence != defs.SEEK_SET {
		return 0, -defs.EINVAL
	}
	f.off = offset
	return offset, 0
}

func (f *PsFd_t) Fstat(st fdops.Stat_i) defs.Err_t {
	st.Wmode(uint(defs.S_IFREG|0444), 0, 0)
	st.Wsize(0)
	return 0
}

func (f *PsFd_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	page := renderPs()
	if f.off >= len(page) {
		return 0, 0
	}
	n, err := dst.Uiowrite([]byte(page[f.off:]))
	f.off += n
	return n, err
}

func renderPs() string {
	Lock()
	defer Unlock()
	var out string
	Each(func(i int, p *Proc_t) {
		out += fmt.Sprintf("%d %d %c %s\n", p.Pid, p.Ppid, p.State.Code(), p.Cwd)
	})
	return out
}
