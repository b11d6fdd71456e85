package main

import "crypto/rand"
import "encoding/binary"

import "golang.org/x/sys/unix"

import "defs"
import "klog"
import "proc"

// sysUname reports a fixed, short identity (§4.14 "sys_uname"): most
// userland only probes for presence, not for any real host detail, and
// there is no real hardware underneath this hosted harness to report
// honestly anyway.
//
// The wire layout is borrowed from golang.org/x/sys/unix's Utsname —
// six 65-byte fixed fields — rather than hand-describing the same
// struct a second time, even though the syscall that normally fills it
// is never invoked here.
func sysUname(p *proc.Proc_t, bufUva uint64) defs.Err_t {
	var u unix.Utsname
	putField(u.Sysname[:], "Linux")
	putField(u.Nodename[:], "mona")
	putField(u.Release[:], "0.0")
	putField(u.Version[:], "mona-rpzero")
	putField(u.Machine[:], "aarch64")
	putField(u.Domainname[:], "")

	buf := make([]byte, 0, 6*len(u.Sysname))
	buf = append(buf, u.Sysname[:]...)
	buf = append(buf, u.Nodename[:]...)
	buf = append(buf, u.Release[:]...)
	buf = append(buf, u.Version[:]...)
	buf = append(buf, u.Machine[:]...)
	buf = append(buf, u.Domainname[:]...)

	return p.Vm.K2user(buf, int(bufUva))
}

// putField copies s into dst, NUL-terminated, truncating if dst is too
// small (it never is, for the fixed short strings sysUname uses).
func putField(dst []byte, s string) {
	n := copy(dst, s)
	if n < len(dst) {
		dst[n] = 0
	}
}

// sysClockGettime implements clock_gettime(2) restricted to
// CLOCK_REALTIME(0) and CLOCK_MONOTONIC(1) (§4.14): both report the
// caller's clockNs as whole seconds/nanoseconds, there being a single
// shared notion of time in this harness rather than a real wall clock
// separate from a monotonic one.
func sysClockGettime(clockNs func() int64, clockid, tpUva uint64) defs.Err_t {
	if clockid != 0 && clockid != 1 {
		return -defs.EINVAL
	}
	now := clockNs()
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], uint64(now/1000000000))
	binary.LittleEndian.PutUint64(b[8:16], uint64(now%1000000000))
	return proc.Current().Vm.K2user(b[:], int(tpUva))
}

// sysNanosleep implements nanosleep(2) (§4.14 "sys_nanosleep") as a
// genuine blocking park rather than the reference's immediate-return
// stub: req is validated, then the caller is put to SLEEPING with a
// deadline sched.WakeSleepers/PickNextRunnable already know how to
// drain, matching the blocking-handler park/retry convention every
// other blocking syscall in this port uses.
func sysNanosleep(p *proc.Proc_t, tf *proc.TrapFrame_t, clockNs func() int64, reqUva, remUva uint64) (uint64, defs.Err_t) {
	if reqUva == 0 {
		return 0, -defs.EFAULT
	}
	sec, serr := p.Vm.Userreadn(int(reqUva), 8)
	if serr != 0 {
		return 0, serr
	}
	nsec, nerr := p.Vm.Userreadn(int(reqUva)+8, 8)
	if nerr != 0 {
		return 0, nerr
	}
	if nsec < 0 || nsec >= 1000000000 {
		return 0, -defs.EINVAL
	}

	if remUva != 0 {
		var z [16]byte
		if err := p.Vm.K2user(z[:], int(remUva)); err != 0 {
			return 0, err
		}
	}

	deadline := clockNs() + int64(sec)*1000000000 + int64(nsec)
	p.Tf = *tf
	p.State = proc.SLEEPING
	p.SleepDeadlineNs = deadline
	return 0, defs.SYSCALL_SWITCHED
}

// sysGetrandom implements getrandom(2) (§4.14 "sys_getrandom") backed
// by crypto/rand rather than the reference's seeded xorshift64*: this
// port has a real source of entropy available (the host's), so there
// is no reason to imitate the reference's placeholder PRNG the way
// stack.go's AT_RANDOM construction already chose not to.
func sysGetrandom(p *proc.Proc_t, bufUva, length uint64) (uint64, defs.Err_t) {
	if length == 0 {
		return 0, 0
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return 0, -defs.EINVAL
	}
	if werr := p.Vm.K2user(buf, int(bufUva)); werr != 0 {
		return 0, werr
	}
	return length, 0
}

// sysSetTidAddress implements set_tid_address(2) (§4.14): records the
// user address *ClearChildTidUser that exit_group zeroes on exit, the
// single piece of the thread-library ABI userland's libc startup code
// expects to succeed.
func sysSetTidAddress(p *proc.Proc_t, tidptrUva uint64) uint64 {
	p.ClearChildTidUser = tidptrUva
	return uint64(p.Pid)
}

// sysRtSigaction implements rt_sigaction(2) as a best-effort no-op
// (§4.14): there is no signal-delivery machinery in this port (kill
// only supports the unconditionally fatal SIGKILL/SIGTERM, §4.13), so
// every registration trivially succeeds and any requested old action is
// reported as empty/default.
func sysRtSigaction(oldactUva, sigsetsize uint64) defs.Err_t {
	if sigsetsize == 0 || sigsetsize > 128 {
		return -defs.EINVAL
	}
	if oldactUva != 0 {
		need := 24 + int(sigsetsize)
		zero := make([]byte, need)
		return proc.Current().Vm.K2user(zero, int(oldactUva))
	}
	return 0
}

// sysRtSigprocmask implements rt_sigprocmask(2) as a best-effort no-op
// reporting an always-empty mask, for the same reason sysRtSigaction
// does (§4.14).
func sysRtSigprocmask(p *proc.Proc_t, setUva, oldsetUva, sigsetsize uint64) defs.Err_t {
	if sigsetsize == 0 || sigsetsize > 128 {
		return -defs.EINVAL
	}
	if oldsetUva != 0 {
		zero := make([]byte, sigsetsize)
		return p.Vm.K2user(zero, int(oldsetUva))
	}
	return 0
}

// sysMonaDmesg implements this port's kernel-log-export syscall
// (§4.14 "sys_mona_dmesg", §4.20 "klog"): buf==0 queries the log's
// current length without copying anything out, otherwise up to len
// bytes of the ring buffer are copied into the caller.
func sysMonaDmesg(p *proc.Proc_t, bufUva, length uint64) (uint64, defs.Err_t) {
	snap := klog.Snapshot()
	if bufUva == 0 {
		return uint64(len(snap)), 0
	}
	if length == 0 {
		return 0, 0
	}
	n := uint64(len(snap))
	if n > length {
		n = length
	}
	if err := p.Vm.K2user(snap[:n], int(bufUva)); err != 0 {
		return 0, err
	}
	return n, 0
}
