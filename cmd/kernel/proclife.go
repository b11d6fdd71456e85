package main

import "defs"
import "elf"
import "fdops"
import "mem"
import "power"
import "proc"
import "sched"
import "vfs"
import "vm"

// sysClone implements a fork-style clone(2) (§4.11 "sys_clone"),
// grounded on the reference tree's refusal of every flag above the
// low exit-signal byte: only plain fork semantics are supported, no
// shared address space or shared FD table.
func sysClone(p *proc.Proc_t, tf *proc.TrapFrame_t, flags, childStack, ptid, ctid, tls, elr uint64) (uint64, defs.Err_t) {
	if flags&^0xff != 0 {
		return 0, -defs.ENOSYS
	}

	slot := proc.FindFreeSlot()
	if slot < 0 {
		return 0, -defs.EMFILE
	}

	childPA := mem.Alloc_2mib_aligned()
	if childPA == 0 {
		return 0, -defs.EMFILE
	}
	childTTBR0 := vm.TTBR0CreateWithUserPA(childPA)
	if childTTBR0 == 0 {
		mem.Free_2mib_aligned(childPA)
		return 0, -defs.EMFILE
	}

	srcRegion := mem.RamBytes(p.Vm.UserPA, defs.USER_REGION_SIZE)
	dstRegion := mem.RamBytes(childPA, defs.USER_REGION_SIZE)
	copy(dstRegion, srcRegion)

	child := proc.At(slot)
	proc.Clear(child)
	forked := p.Vm.Fork()
	forked.UserPA = childPA
	forked.Pmap = childTTBR0
	child.Vm = *forked
	child.Pid = proc.AllocPid()
	child.Ppid = p.Pid
	child.State = proc.RUNNABLE
	child.StackLow = p.StackLow
	child.Tf = *tf
	child.Elr = elr
	child.Cwd = p.Cwd
	child.Fds = p.Fds.Fork()

	child.Tf.X[0] = 0
	return uint64(child.Pid), 0
}

// sysExecve implements execve(2) (§4.12 "sys_execve"): argv/envp are
// snapshotted out of the *current* image before the new one is loaded
// (loading overwrites the same physical window this process reads
// from), the target must be an initramfs/overlay regular file, and the
// new image's entry point and stack replace the live trap frame in
// place — execve never switches processes.
func sysExecve(p *proc.Proc_t, tf *proc.TrapFrame_t, pathnameUva, argvUva, envpUva uint64) (uint64, defs.Err_t) {
	argv, aerr := snapshotStrVec(p, argvUva)
	if aerr != 0 {
		return 0, aerr
	}
	envp, eerr := snapshotStrVec(p, envpUva)
	if eerr != 0 {
		return 0, eerr
	}

	path, perr := resolvePath(p, pathnameUva)
	if perr != 0 {
		return 0, perr
	}

	if len(argv) == 0 {
		name := path
		for i := len(name) - 1; i >= 0; i-- {
			if name[i] == '/' {
				name = name[i+1:]
				break
			}
		}
		argv = []string{name}
	}

	mode, size, lerr := vfs.LookupAbs(path)
	if lerr != 0 {
		return 0, -defs.ENOENT
	}
	if mode&defs.S_IFMT == defs.S_IFDIR {
		return 0, -defs.EISDIR
	}
	fops, operr := vfs.Open(path)
	if operr != 0 {
		return 0, operr
	}
	img, rerr := readWholeFd(fops, size)
	if rerr != 0 {
		return 0, rerr
	}

	dstPhys := mem.RamBytes(p.Vm.UserPA, defs.USER_REGION_SIZE)
	res, lderr := elf.LoadETExec(img, defs.USER_REGION_BASE, defs.USER_REGION_SIZE, dstPhys)
	if lderr != 0 {
		return 0, lderr
	}

	p.Vm.Init(p.Vm.UserPA, p.Vm.Pmap)

	sp, serr := stackLayout(vmWriter{as: &p.Vm}, defs.USER_REGION_BASE+defs.USER_REGION_SIZE-defs.STACK_GUARD,
		argv, envp, path, res.Entry)
	if serr != 0 {
		return 0, serr
	}

	tf.SpEl0 = uint64(sp)
	tf.X[0] = uint64(len(argv))

	p.Elr = res.Entry
	p.StackLow = defs.USER_REGION_BASE + defs.USER_REGION_SIZE - defs.STACK_GUARD

	vm.CleanInvalidateAll()
	vm.IcacheSyncRange(uintptr(res.MinVA), uintptr(res.MaxVA-res.MinVA))

	return 0, 0
}

const (
	execMaxArgs = 32
	execMaxStr  = 256
)

// snapshotStrVec reads a NUL-terminated array of user pointers
// starting at uva (0 meaning "absent", yielding an empty vector),
// copying out each pointed-to C string before the image backing them
// is overwritten (§4.12 "sys_execve" argv/envp snapshot).
func snapshotStrVec(p *proc.Proc_t, uva uint64) ([]string, defs.Err_t) {
	if uva == 0 {
		return nil, 0
	}
	var out []string
	for i := 0; i < execMaxArgs; i++ {
		ptr, err := p.Vm.Userreadn(int(uva)+i*8, 8)
		if err != 0 {
			return nil, err
		}
		if ptr == 0 {
			return out, 0
		}
		s, serr := p.Vm.Userstr(ptr, execMaxStr-1)
		if serr != 0 {
			return nil, serr
		}
		out = append(out, s)
	}
	return nil, -defs.E2BIG
}

// readWholeFd reads an already-open fdops.Fdops_i to EOF into a
// freshly allocated buffer sized n, the kernel-side counterpart of the
// reference tree's straight-line initramfs copy for execve (§4.12);
// size comes from vfs.LookupAbs rather than a live fstat since the
// description was only just opened.
func readWholeFd(fops fdops.Fdops_i, n int) ([]byte, defs.Err_t) {
	buf := make([]byte, n)
	var fb vm.Fakeubuf_t
	fb.FakeInit(buf)
	for fb.Remain() > 0 {
		got, err := fops.Read(&fb)
		if err != 0 {
			return nil, err
		}
		if got == 0 {
			break
		}
	}
	return buf[:n-fb.Remain()], 0
}

// closeAllFds closes every open FD slot, the fdt teardown every exit
// path (wait4's reap, exit_group, kill) performs before freeing a
// process's other resources (§4.13 "proc_close_all_fds").
func closeAllFds(p *proc.Proc_t) {
	for i := 0; i < defs.MAX_FDS; i++ {
		p.Fds.Close(i)
	}
}

// freeUserRegion releases a process's 2 MiB backing region, except pid
// 1's, which was never allocated via pmm_alloc_2mib_aligned and so is
// never freed (§4.10).
func freeUserRegion(p *proc.Proc_t) {
	if p.Vm.UserPA != 0 && p.Vm.UserPA != mem.USER_REGION_BASE_PA() {
		mem.Free_2mib_aligned(p.Vm.UserPA)
	}
}

// sysWait4 implements wait4(2) (§4.13 "sys_wait4"): reaps an already-
// ZOMBIE child outright, else blocks the caller until one appears,
// unless no other runnable process exists to hand the CPU to, in which
// case it reports -EAGAIN rather than block forever (there is no timer
// interrupt in this cooperative single-CPU harness to ever revisit the
// wait).
func sysWait4(p *proc.Proc_t, tf *proc.TrapFrame_t, clockNs func() int64, pidReq int64, wstatusUva, options, rusageUva uint64) (uint64, defs.Err_t) {
	const WNOHANG = 1

	found := -1
	proc.Each(func(i int, pp *proc.Proc_t) {
		if found >= 0 {
			return
		}
		if pp.State != proc.ZOMBIE {
			return
		}
		if pp.Ppid != p.Pid {
			return
		}
		if pidReq > 0 && pp.Pid != defs.Pid_t(pidReq) {
			return
		}
		found = i
	})

	if found >= 0 {
		child := proc.At(found)
		cpid := child.Pid
		if wstatusUva != 0 {
			var b [4]byte
			st := uint32(child.ExitCode&0xff) << 8
			b[0] = byte(st)
			b[1] = byte(st >> 8)
			b[2] = byte(st >> 16)
			b[3] = byte(st >> 24)
			if err := p.Vm.K2user(b[:], int(wstatusUva)); err != 0 {
				return 0, err
			}
		}
		closeAllFds(child)
		freeUserRegion(child)
		proc.Clear(child)
		return uint64(cpid), 0
	}

	anyChild := false
	proc.Each(func(i int, pp *proc.Proc_t) {
		if pp.Ppid == p.Pid {
			anyChild = true
		}
	})
	if !anyChild {
		return 0, -defs.ECHILD
	}

	if options&WNOHANG != 0 {
		return 0, 0
	}

	next := sched.PickNextRunnable(clockNs)
	if next < 0 || next == proc.CurProc {
		return 0, -defs.EAGAIN
	}

	p.State = proc.WAITING
	p.WaitTargetPid = defs.Pid_t(pidReq)
	p.WaitStatusUser = wstatusUva
	p.Tf = *tf
	return 0, defs.SYSCALL_SWITCHED
}

// wakeWaitingParent looks for a process WAITING on exiting's pid
// (§4.13/§4.14 "handle_exit_and_maybe_switch" parent-wake loop): if the
// first WAITING process matching exiting's ppid has a wait_target_pid
// that does not match exiting's own pid, the scan stops right there
// rather than searching further for a different waiting parent — an
// exact-match-or-stop rule mirrored here deliberately. When a match is
// found, the parent's saved trap frame is woken and its zombie child
// reaped immediately, since the parent was already blocked on it.
func wakeWaitingParent(exiting *proc.Proc_t, code uint64) {
	cpid := exiting.Pid
	ppid := exiting.Ppid
	proc.Each(func(i int, parent *proc.Proc_t) {
		if parent.State != proc.WAITING {
			return
		}
		if parent.Pid != ppid {
			return
		}
		want := parent.WaitTargetPid
		if want > 0 && want != cpid {
			return
		}

		if parent.WaitStatusUser != 0 {
			var b [4]byte
			st := uint32(code&0xff) << 8
			b[0] = byte(st)
			b[1] = byte(st >> 8)
			b[2] = byte(st >> 16)
			b[3] = byte(st >> 24)
			parent.Vm.K2user(b[:], int(parent.WaitStatusUser))
		}

		parent.State = proc.RUNNABLE
		parent.WaitTargetPid = 0
		parent.WaitStatusUser = 0
		parent.Tf.X[0] = uint64(cpid)

		freeUserRegion(exiting)
		proc.Clear(exiting)
	})
}

// exitCurrent implements the shared tail of exit_group and self-kill
// (§4.13 "handle_exit_and_maybe_switch"): pid 1 exiting powers the
// machine off outright; otherwise the caller is zombified, its parent
// woken if one is waiting, and the scheduler left to pick whatever
// runs next.
func exitCurrent(p *proc.Proc_t, tf *proc.TrapFrame_t, code uint64) defs.Err_t {
	if p.Pid == 1 {
		power.PoweroffWithCode(uint8(code & 0xff))
		return 0
	}

	closeAllFds(p)
	if p.ClearChildTidUser != 0 {
		var z [4]byte
		p.Vm.K2user(z[:], int(p.ClearChildTidUser))
	}
	p.State = proc.ZOMBIE
	p.ExitCode = int(code)
	p.Tf = *tf

	wakeWaitingParent(p, code)

	return defs.SYSCALL_SWITCHED
}

// sysExitGroup implements exit_group(2)/exit(2) (§4.13).
func sysExitGroup(p *proc.Proc_t, tf *proc.TrapFrame_t, clockNs func() int64, code uint64) (uint64, defs.Err_t) {
	return 0, exitCurrent(p, tf, code)
}

// sysKill implements kill(2) restricted to existence checks and
// SIGKILL/SIGTERM (§4.14 "sys_kill"): delivering either recognized
// signal to a live target is fatal and unconditional, there being no
// signal-handling machinery to intercept it.
func sysKill(p *proc.Proc_t, tf *proc.TrapFrame_t, clockNs func() int64, pid int64, sig uint64) (uint64, defs.Err_t) {
	if pid <= 0 {
		return 0, -defs.EINVAL
	}
	if sig != 0 && sig != 9 && sig != 15 {
		return 0, -defs.ENOSYS
	}

	idx := -1
	proc.Each(func(i int, pp *proc.Proc_t) {
		if idx < 0 && pp.Pid == defs.Pid_t(pid) {
			idx = i
		}
	})
	if idx < 0 {
		return 0, -defs.ESRCH
	}
	target := proc.At(idx)

	if sig == 0 {
		return 0, 0
	}
	if target.State == proc.ZOMBIE {
		return 0, 0
	}

	code := uint64(128 + (sig & 0xff))

	if idx == proc.CurProc {
		return 0, exitCurrent(p, tf, code)
	}

	closeAllFds(target)
	if target.ClearChildTidUser != 0 {
		var z [4]byte
		target.Vm.K2user(z[:], int(target.ClearChildTidUser))
	}
	target.State = proc.ZOMBIE
	target.ExitCode = int(code)

	wakeWaitingParent(target, code)

	return 0, 0
}
