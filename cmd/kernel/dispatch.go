package main

import "vm"

import "defs"
import "power"
import "proc"
import "sched"

// Dispatch is the full syscall entry point a real synchronous-exception
// handler would call once per svc trap (§4.16): it reads the syscall
// number from tf.X[8] (AArch64 SVC convention) and the first six
// arguments from tf.X[0..5], dispatches to the matching handler, and
// writes the result (or -errno) back into tf.X[0] unless the handler
// already performed a context switch (defs.SYSCALL_SWITCHED, §4.13/
// §4.19 "blocking handler park/retry").
//
// clockNs supplies the caller's notion of current monotonic time,
// threaded through to sched.MaybeSwitch and nanosleep/wait4's blocking
// paths so tests can drive the clock deterministically.
func Dispatch(p *proc.Proc_t, tf *proc.TrapFrame_t, clockNs func() int64) (switched bool) {
	nr := tf.X[8]
	a0, a1, a2, a3, a4, a5 := tf.X[0], tf.X[1], tf.X[2], tf.X[3], tf.X[4], tf.X[5]

	var val uint64
	var err defs.Err_t

	switch nr {
	// Process lifecycle (§4.11-§4.14).
	case defs.SYS_CLONE:
		val, err = sysClone(p, tf, a0, a1, a2, a3, a4, a5)
	case defs.SYS_EXECVE:
		val, err = sysExecve(p, tf, a0, a1, a2)
	case defs.SYS_WAIT4:
		val, err = sysWait4(p, tf, clockNs, int64(a0), a1, a2, a3)
	case defs.SYS_EXIT, defs.SYS_EXIT_GROUP:
		val, err = sysExitGroup(p, tf, clockNs, a0)
	case defs.SYS_KILL:
		val, err = sysKill(p, tf, clockNs, int64(a0), a1)

	// Memory (§4.17).
	case defs.SYS_BRK:
		val = uint64(p.Vm.SysBrk(int(a0), p.StackLow))
	case defs.SYS_MMAP:
		r, e := p.Vm.SysMmap(int(a1), int(a2), int(a3), int(int64(int32(a4))), int(a0))
		val, err = uint64(r), e
	case defs.SYS_MUNMAP:
		err = p.Vm.SysMunmap(int(a0), int(a1))

	// File I/O (§4.18).
	case defs.SYS_OPENAT:
		val, err = sysOpenat(p, int64(a0), a1, a2, a3)
	case defs.SYS_CLOSE:
		err = sysClose(p, a0)
	case defs.SYS_READ:
		val, err = sysRead(p, clockNs, tf, a0, a1, a2)
	case defs.SYS_WRITE:
		val, err = sysWrite(p, a0, a1, a2)
	case defs.SYS_LSEEK:
		val, err = sysLseek(p, a0, int(a1), int(a2))
	case defs.SYS_GETDENTS64:
		val, err = sysGetdents64(p, a0, a1, a2)
	case defs.SYS_PIPE2:
		val, err = sysPipe2(p, a0, a1)
	case defs.SYS_DUP3:
		val, err = sysDup3(p, a0, a1, a2)
	case defs.SYS_NEWFSTATAT:
		val, err = sysNewfstatat(p, int64(a0), a1, a2, a3)
	case defs.SYS_MKDIRAT:
		err = sysMkdirat(p, int64(a0), a1, a2)
	case defs.SYS_UNLINKAT:
		err = sysUnlinkat(p, int64(a0), a1, a2)
	case defs.SYS_LINKAT:
		err = sysLinkat(p, int64(a0), a1, int64(a2), a3, a4)
	case defs.SYS_SYMLINKAT:
		err = sysSymlinkat(p, a0, int64(a1), a2)
	case defs.SYS_FCHMODAT:
		err = sysFchmodat(p, int64(a0), a1, a2)
	case defs.SYS_CHDIR:
		err = sysChdir(p, a0)
	case defs.SYS_GETCWD:
		val, err = sysGetcwd(p, a0, a1)
	case defs.SYS_READLINKAT:
		val, err = sysReadlinkat(p, int64(a0), a1, a2, a3)
	case defs.SYS_IOCTL:
		val, err = sysIoctl(p, a0, a1, a2)

	// Identity/misc (§6).
	case defs.SYS_GETPID:
		val = uint64(p.Pid)
	case defs.SYS_GETPPID:
		val = uint64(p.Ppid)
	case defs.SYS_GETTID:
		val = uint64(p.Pid)
	case defs.SYS_GETUID, defs.SYS_GETEUID, defs.SYS_GETGID, defs.SYS_GETEGID:
		val = 0
	case defs.SYS_UNAME:
		err = sysUname(p, a0)
	case defs.SYS_CLOCK_GETTIME:
		err = sysClockGettime(clockNs, a0, a1)
	case defs.SYS_NANOSLEEP:
		val, err = sysNanosleep(p, tf, clockNs, a0, a1)
	case defs.SYS_GETRANDOM:
		val, err = sysGetrandom(p, a0, a1)
	case defs.SYS_SET_TID_ADDRESS:
		val = sysSetTidAddress(p, a0)
	case defs.SYS_SET_ROBUST_LIST:
		val = 0
	case defs.SYS_RT_SIGACTION:
		err = sysRtSigaction(a2, a3)
	case defs.SYS_RT_SIGPROCMASK:
		err = sysRtSigprocmask(p, a1, a2, a3)
	case defs.SYS_REBOOT:
		err = power.Reboot(a0, a1, a2, a3)
	case defs.SYS_MONA_DMESG:
		val, err = sysMonaDmesg(p, a0, a1)
	case defs.SYS_MONA_PING6:
		err = -defs.ENOSYS

	default:
		err = -defs.ENOSYS
	}

	if err != defs.SYSCALL_SWITCHED {
		if err != 0 {
			tf.X[0] = uint64(int64(err))
		} else {
			tf.X[0] = val
		}
	}
	// A blocking handler already saved p.Tf (including the syscall number
	// in X[8], so a later resumption redelivers the same call) and
	// marked p not RUNNING; MaybeSwitch below picks the next runnable
	// process only when p is no longer RUNNING or RUNNABLE, so a call
	// that did not block leaves p on the CPU.
	sched.MaybeSwitch(tf, clockNs)
	return err == defs.SYSCALL_SWITCHED
}

// userbuf builds a vm.Userbuf_t over p's address space for [uva, uva+n).
func userbuf(p *proc.Proc_t, uva, n int) *vm.Userbuf_t {
	var ub vm.Userbuf_t
	ub.UbInit(&p.Vm, uva, n)
	return &ub
}
