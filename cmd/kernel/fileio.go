package main

import "encoding/binary"

import "defs"
import "fd"
import "fdops"
import "pipe"
import "proc"
import "stat"
import "uart"
import "vfs"

// installFd allocates a global description for fops and installs it at
// the lowest free per-process FD slot at or above 3 (§4.6 "fd_alloc_into"),
// leaving the description's refcount at exactly one reference.
func installFd(p *proc.Proc_t, fops fdops.Fdops_i, perms int) (uint64, defs.Err_t) {
	descIdx, err := fd.AllocDesc(&fd.Fd_t{Fops: fops, Perms: perms})
	if err != 0 {
		return 0, err
	}
	fdno, aerr := p.Fds.AllocInto(3, descIdx)
	fd.Decref(descIdx)
	if aerr != 0 {
		return 0, aerr
	}
	return uint64(fdno), 0
}

func lookupFd(p *proc.Proc_t, fdno uint64) (*fd.Fd_t, defs.Err_t) {
	descIdx, err := p.Fds.Get(int(fdno))
	if err != 0 {
		return nil, err
	}
	f := fd.Desc(descIdx)
	if f == nil {
		return nil, -defs.EBADF
	}
	return f, 0
}

// sysOpenat implements openat(2) (§4.18 "openat"), restricted like the
// reference tree to dirfd==AT_FDCWD: a ramfile that already exists at
// the resolved path opens directly; a path missing from both the
// overlay and initramfs is created as a new ramfile only when O_CREAT
// is set and the parent directory exists (refusing creation inside a
// pure-initramfs directory per vfs.IsInitramfsOnlyDir, §9 Open
// Question); otherwise the existing initramfs/overlay entry opens,
// rejecting write access to a read-only initramfs regular file.
func sysOpenat(p *proc.Proc_t, dirfd int64, pathUva, flags, mode uint64) (uint64, defs.Err_t) {
	if dirfd != defs.AT_FDCWD {
		return 0, -defs.ENOSYS
	}
	path, err := resolvePath(p, pathUva)
	if err != 0 {
		return 0, err
	}
	if path == "/proc/ps" {
		return installFd(p, &proc.PsFd_t{}, fd.FD_READ)
	}

	const accMask = 0x3
	acc := flags & accMask

	fmode, _, lerr := vfs.LookupAbs(path)
	if lerr != 0 {
		if flags&defs.O_CREAT == 0 {
			return 0, -defs.ENOENT
		}
		if path == "/" {
			return 0, -defs.EISDIR
		}
		parent, name := splitParent(path)
		if name == "" {
			return 0, -defs.EISDIR
		}
		if vfs.IsInitramfsOnlyDir(parent) {
			return 0, -defs.EROFS
		}
		if pmode, _, perr := vfs.LookupAbs(parent); perr != 0 || pmode&defs.S_IFMT != defs.S_IFDIR {
			if perr != 0 {
				return 0, -defs.ENOENT
			}
			return 0, -defs.ENOTDIR
		}
		if cerr := vfs.RamfileCreate(path, defs.S_IFREG|uint32(mode&0777)); cerr != 0 {
			return 0, cerr
		}
		fops, operr := vfs.Open(path)
		if operr != 0 {
			return 0, operr
		}
		return installFd(p, fops, fd.FD_READ|fd.FD_WRITE)
	}

	if flags&defs.O_CREAT != 0 && flags&0x80 != 0 {
		return 0, -defs.EEXIST // O_EXCL
	}
	if fmode&defs.S_IFMT == defs.S_IFDIR && acc != defs.O_RDONLY {
		return 0, -defs.EISDIR
	}
	if flags&defs.O_TRUNC != 0 {
		vfs.RamfileSetSize(path, 0)
	}
	fops, operr := vfs.Open(path)
	if operr != 0 {
		return 0, operr
	}
	perms := fd.FD_READ
	if acc == defs.O_WRONLY || acc == defs.O_RDWR {
		perms |= fd.FD_WRITE
	}
	return installFd(p, fops, perms)
}

func sysClose(p *proc.Proc_t, fdno uint64) defs.Err_t {
	return p.Fds.Close(int(fdno))
}

// sysRead implements read(2) (§4.18 "read"). A UART console description
// that has nothing queued parks the calling process rather than
// spinning (uart.Fd_t.Read's documented contract): it saves the live
// trap frame (syscall args included, so a later resumption redelivers
// this same read) and reports SYSCALL_SWITCHED.
func sysRead(p *proc.Proc_t, clockNs func() int64, tf *proc.TrapFrame_t, fdno, bufUva, length uint64) (uint64, defs.Err_t) {
	f, err := lookupFd(p, fdno)
	if err != 0 {
		return 0, err
	}
	if length == 0 {
		return 0, 0
	}
	ub := userbuf(p, int(bufUva), int(length))
	n, rerr := f.Fops.Read(ub)
	if rerr != 0 {
		return 0, rerr
	}
	if n == 0 {
		if _, isUart := f.Fops.(uart.Fd_t); isUart {
			p.Tf = *tf
			p.State = proc.SLEEPING
			p.SleepDeadlineNs = clockNs()
			return 0, defs.SYSCALL_SWITCHED
		}
	}
	return uint64(n), 0
}

func sysWrite(p *proc.Proc_t, fdno, bufUva, length uint64) (uint64, defs.Err_t) {
	f, err := lookupFd(p, fdno)
	if err != 0 {
		return 0, err
	}
	if length == 0 {
		return 0, 0
	}
	ub := userbuf(p, int(bufUva), int(length))
	n, werr := f.Fops.Write(ub)
	if werr != 0 {
		return 0, werr
	}
	return uint64(n), 0
}

func sysLseek(p *proc.Proc_t, fdno uint64, offset, whence int) (uint64, defs.Err_t) {
	f, err := lookupFd(p, fdno)
	if err != 0 {
		return 0, err
	}
	n, lerr := f.Fops.Lseek(offset, whence)
	if lerr != 0 {
		return 0, lerr
	}
	return uint64(n), 0
}

func sysGetdents64(p *proc.Proc_t, fdno, bufUva, length uint64) (uint64, defs.Err_t) {
	f, err := lookupFd(p, fdno)
	if err != 0 {
		return 0, err
	}
	ub := userbuf(p, int(bufUva), int(length))
	n, gerr := f.Fops.Getdents(ub)
	if gerr != 0 {
		return 0, gerr
	}
	return uint64(n), 0
}

// sysPipe2 implements pipe2(2) (§4.7 "pipe2"): both ends are installed
// at the lowest two free FD slots, unwinding the pipe entirely if the
// second installation fails.
func sysPipe2(p *proc.Proc_t, fdsUva, flags uint64) (uint64, defs.Err_t) {
	if flags != 0 {
		return 0, -defs.ENOSYS
	}
	id, cerr := pipe.Create()
	if cerr != 0 {
		return 0, cerr
	}
	perms := fd.FD_READ | fd.FD_WRITE
	pipe.OnDescIncref(id, defs.PIPE_READ)
	rfd, rerr := installFd(p, pipe.NewReadEnd(id), perms)
	if rerr != 0 {
		pipe.Abort(id)
		return 0, rerr
	}
	pipe.OnDescIncref(id, defs.PIPE_WRITE)
	wfd, werr := installFd(p, pipe.NewWriteEnd(id), perms)
	if werr != 0 {
		p.Fds.Close(int(rfd))
		pipe.Abort(id)
		return 0, werr
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rfd))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(wfd))
	if werr := p.Vm.K2user(buf[:], int(fdsUva)); werr != 0 {
		p.Fds.Close(int(rfd))
		p.Fds.Close(int(wfd))
		return 0, werr
	}
	return 0, 0
}

func sysDup3(p *proc.Proc_t, oldfd, newfd, flags uint64) (uint64, defs.Err_t) {
	if flags != 0 {
		return 0, -defs.EINVAL
	}
	if oldfd >= defs.MAX_FDS || newfd >= defs.MAX_FDS {
		return 0, -defs.EBADF
	}
	descIdx, err := p.Fds.Get(int(oldfd))
	if err != 0 {
		return 0, err
	}
	if oldfd == newfd {
		return newfd, 0
	}
	if ierr := p.Fds.Install(int(newfd), descIdx); ierr != 0 {
		return 0, ierr
	}
	return newfd, 0
}

func sysNewfstatat(p *proc.Proc_t, dirfd int64, pathUva, statUva, flags uint64) (uint64, defs.Err_t) {
	if dirfd != defs.AT_FDCWD {
		return 0, -defs.ENOSYS
	}
	path, err := resolvePath(p, pathUva)
	if err != 0 {
		return 0, err
	}
	var st stat.Stat_t
	switch path {
	case "/proc":
		st.Wmode(uint(defs.S_IFDIR|0555), 0, 0)
	case "/proc/ps":
		st.Wmode(uint(defs.S_IFREG|0444), 0, 0)
	default:
		mode, size, lerr := vfs.LookupAbs(path)
		if lerr != 0 {
			return 0, lerr
		}
		st.Wmode(uint(mode), 0, 0)
		st.Wsize(uint(size))
	}
	st.Wnlink(1)
	if werr := p.Vm.K2user(st.Bytes(), int(statUva)); werr != 0 {
		return 0, werr
	}
	return 0, 0
}

func sysMkdirat(p *proc.Proc_t, dirfd int64, pathUva, mode uint64) defs.Err_t {
	if dirfd != defs.AT_FDCWD {
		return -defs.ENOSYS
	}
	path, err := resolvePath(p, pathUva)
	if err != 0 {
		return err
	}
	if path == "/" {
		return -defs.EEXIST
	}
	return vfs.RamdirCreate(path, defs.S_IFDIR|uint32(mode&0777))
}

// sysUnlinkat implements unlinkat(2) (§4.18 "unlinkat"): AT_REMOVEDIR
// removes an overlay ramdir (ENOTEMPTY/ENOENT propagate as-is from
// vfs.RamdirRemove; an existing non-directory there is ENOTDIR, a
// directory that fails for any other reason is EROFS — it must be
// initramfs-backed); otherwise an overlay ramfile is unlinked, and
// anything else that exists (a directory, or a read-only initramfs
// file) is rejected with EISDIR/EROFS rather than silently ignored.
func sysUnlinkat(p *proc.Proc_t, dirfd int64, pathUva, flags uint64) defs.Err_t {
	if dirfd != defs.AT_FDCWD {
		return -defs.ENOSYS
	}
	if flags != 0 && flags != defs.AT_REMOVEDIR {
		return -defs.ENOSYS
	}
	path, err := resolvePath(p, pathUva)
	if err != 0 {
		return err
	}
	if path == "/" {
		return -defs.EISDIR
	}

	if flags&defs.AT_REMOVEDIR != 0 {
		if rerr := vfs.RamdirRemove(path); rerr == 0 || rerr == -defs.ENOTEMPTY {
			return rerr
		}
		if mode, _, lerr := vfs.LookupAbs(path); lerr == 0 {
			if mode&defs.S_IFMT != defs.S_IFDIR {
				return -defs.ENOTDIR
			}
			return -defs.EROFS
		}
		return -defs.ENOENT
	}

	if rerr := vfs.RamfileRemove(path); rerr == 0 {
		return 0
	}
	if mode, _, lerr := vfs.LookupAbs(path); lerr == 0 {
		if mode&defs.S_IFMT == defs.S_IFDIR {
			return -defs.EISDIR
		}
		return -defs.EROFS
	}
	return -defs.ENOENT
}

func sysLinkat(p *proc.Proc_t, olddirfd int64, oldPathUva uint64, newdirfd int64, newPathUva, flags uint64) defs.Err_t {
	if olddirfd != defs.AT_FDCWD || newdirfd != defs.AT_FDCWD || flags != 0 {
		return -defs.EINVAL
	}
	oldPath, err := resolvePath(p, oldPathUva)
	if err != 0 {
		return err
	}
	newPath, err := resolvePath(p, newPathUva)
	if err != 0 {
		return err
	}
	if oldPath == "/" || newPath == "/" {
		return -defs.EPERM
	}
	return vfs.RamfileLink(oldPath, newPath)
}

// sysSymlinkat is not implemented: this kernel's overlay VFS (§4.8) has
// no symlink-kind entry, only ramdirs and growable ramfiles, matching
// the reference tree's posture of treating symlinks as out of scope.
func sysSymlinkat(p *proc.Proc_t, targetUva uint64, newdirfd int64, linkpathUva uint64) defs.Err_t {
	return -defs.ENOSYS
}

func sysFchmodat(p *proc.Proc_t, dirfd int64, pathUva, mode uint64) defs.Err_t {
	if dirfd != defs.AT_FDCWD {
		return -defs.ENOSYS
	}
	_, err := resolvePath(p, pathUva)
	if err != 0 {
		return err
	}
	return 0
}

func sysChdir(p *proc.Proc_t, pathUva uint64) defs.Err_t {
	path, err := resolvePath(p, pathUva)
	if err != 0 {
		return err
	}
	mode, _, lerr := vfs.LookupAbs(path)
	if lerr != 0 {
		return lerr
	}
	if mode&defs.S_IFMT != defs.S_IFDIR {
		return -defs.ENOTDIR
	}
	p.Cwd = path
	return 0
}

func sysGetcwd(p *proc.Proc_t, bufUva, size uint64) (uint64, defs.Err_t) {
	if size == 0 {
		return 0, -defs.EINVAL
	}
	n := uint64(len(p.Cwd))
	if n+1 > size {
		return 0, -defs.ERANGE
	}
	b := append([]byte(p.Cwd), 0)
	if err := p.Vm.K2user(b, int(bufUva)); err != 0 {
		return 0, err
	}
	return bufUva, 0
}

// sysReadlinkat is not implemented for the same reason as symlinkat:
// there is nothing in the overlay that resolves as a symlink.
func sysReadlinkat(p *proc.Proc_t, dirfd int64, pathUva, bufUva, bufsz uint64) (uint64, defs.Err_t) {
	return 0, -defs.EINVAL
}

// sysIoctl answers only the handful of TTY probe requests a shell
// issues against the console description (isatty, window size,
// foreground process group); every other fd or request is ENOTTY
// (§6 "ioctl").
func sysIoctl(p *proc.Proc_t, fdno, req, argUva uint64) (uint64, defs.Err_t) {
	f, err := lookupFd(p, fdno)
	if err != 0 {
		return 0, err
	}
	if _, isUart := f.Fops.(uart.Fd_t); !isUart {
		return 0, -defs.ENOTTY
	}
	switch req {
	case defs.TCGETS:
		var zero [60]byte
		return 0, p.Vm.K2user(zero[:], int(argUva))
	case defs.TIOCGWINSZ:
		var ws [8]byte
		binary.LittleEndian.PutUint16(ws[0:2], 24)
		binary.LittleEndian.PutUint16(ws[2:4], 80)
		return 0, p.Vm.K2user(ws[:], int(argUva))
	case defs.TIOCGPGRP:
		var pg [4]byte
		binary.LittleEndian.PutUint32(pg[:], uint32(p.Pid))
		return 0, p.Vm.K2user(pg[:], int(argUva))
	default:
		return 0, -defs.ENOTTY
	}
}
