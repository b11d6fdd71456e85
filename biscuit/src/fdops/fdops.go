// Package fdops defines the narrow interface every file description
// variant (§3 "File description") implements, letting the FD layer and
// syscall handlers operate on UART/INITRAMFS/PIPE/RAMFILE/PROC/UDP6/TCP6
// descriptions uniformly. Socket-only operations live on the separate
// Socket_i interface so the common five kinds this kernel fully
// implements don't have to stub out accept/connect/listen.
package fdops

import "defs"

/// Userio_i abstracts a source or destination for a byte transfer so
/// read/write handlers never see raw user pointers directly (§9
/// "Pointer-to-user accesses"); vm.Userbuf_t and vm.Fakeubuf_t both
/// satisfy it.
type Userio_i interface {
	Uioread(dst []uint8) (int, defs.Err_t)
	Uiowrite(src []uint8) (int, defs.Err_t)
	Remain() int
	Totalsz() int
}

/// Stat_i is the subset of stat-layout access Fstat needs to fill in;
/// kept as an interface here (rather than importing the stat package
/// directly) to avoid a dependency cycle between fdops and stat.
type Stat_i interface {
	Wmode(mode, major, minor uint)
	Wsize(sz uint)
	Wrdev(maj, min uint)
}

/// Fdops_i is the operation set every file description kind implements.
/// Kinds that don't support an operation (e.g. Lseek on a pipe) return
/// -ENOTTY/-ESPIPE-flavored errors rather than omitting the method.
type Fdops_i interface {
	Close() defs.Err_t
	Fstat(Stat_i) defs.Err_t
	Lseek(offset int, whence int) (int, defs.Err_t)
	Pathi() (string, defs.Err_t)
	Read(dst Userio_i) (int, defs.Err_t)
	Reopen() defs.Err_t
	Write(src Userio_i) (int, defs.Err_t)
	Truncate(newlen uint) defs.Err_t
	Getdents(dst Userio_i) (int, defs.Err_t)
}

/// Socket_i is implemented additionally by UDP6/TCP6 descriptions; the
/// core syscall layer type-asserts for it only when dispatching a
/// socket-family syscall; everything else treats sockets as a plain
/// Fdops_i.
type Socket_i interface {
	Fdops_i
	Connect(addr []byte, port int) defs.Err_t
	Bind(addr []byte, port int) defs.Err_t
	Sendto(src Userio_i, addr []byte, port int) (int, defs.Err_t)
	Recvfrom(dst Userio_i) (int, []byte, int, defs.Err_t)
}
