// Package defs holds the constants and small shared types every other
// kernel package depends on: error codes, syscall numbers, auxv tags, and
// the handful of scalar types (Pid_t, Tid_t, Err_t) that would otherwise
// create import cycles if they lived next to the code that uses them.
package defs

/// Err_t is a negative errno, or zero on success. It is returned directly
/// by syscall handlers and written into a trap frame's x[0] unchanged.
type Err_t int

/// Pid_t identifies a process table slot's externally visible pid.
type Pid_t int

/// Tid_t identifies a thread of control within a process. This port does
/// not support multiple threads per process, so Tid_t always equals the
/// owning Pid_t, but the distinct type keeps call sites self-documenting.
type Tid_t int

// Errno values used by this kernel (Linux numbering).
const (
	EPERM        Err_t = 1
	ENOENT       Err_t = 2
	ESRCH        Err_t = 3
	EIO          Err_t = 5
	E2BIG        Err_t = 7
	ENOEXEC      Err_t = 8
	EBADF        Err_t = 9
	ECHILD       Err_t = 10
	EAGAIN       Err_t = 11
	ENOMEM       Err_t = 12
	EFAULT       Err_t = 14
	EBUSY        Err_t = 16
	EEXIST       Err_t = 17
	ENODEV       Err_t = 19
	ENOTDIR      Err_t = 20
	EISDIR       Err_t = 21
	EINVAL       Err_t = 22
	EMFILE       Err_t = 24
	ENOTTY       Err_t = 25
	EROFS        Err_t = 30
	ESPIPE       Err_t = 29
	EPIPE        Err_t = 32
	ERANGE       Err_t = 34
	ENAMETOOLONG Err_t = 36
	ENOSYS       Err_t = 38
	ENOTEMPTY    Err_t = 39
	EMSGSIZE     Err_t = 90
	EAFNOSUPPORT Err_t = 97
	EADDRINUSE   Err_t = 98
	ENETUNREACH  Err_t = 101
	ETIMEDOUT    Err_t = 110

	// ENOHEAP is an internal-only sentinel (never crosses the syscall ABI)
	// used by the user-access layer when a bounded copy runs out of budget.
	ENOHEAP Err_t = 1000
)

/// SYSCALL_SWITCHED is returned by a blocking handler (wait4, nanosleep,
/// blocking UART read) to tell the dispatcher that a context switch
/// already happened and x[0] must not be overwritten with this value.
const SYSCALL_SWITCHED Err_t = -1

// Linux AArch64 syscall numbers this kernel implements.
const (
	SYS_IOCTL           = 29
	SYS_UNLINKAT        = 35
	SYS_SYMLINKAT       = 36
	SYS_LINKAT          = 37
	SYS_CHDIR           = 49
	SYS_OPENAT          = 56
	SYS_CLOSE           = 57
	SYS_PIPE2           = 59
	SYS_GETDENTS64      = 61
	SYS_LSEEK           = 62
	SYS_READ            = 63
	SYS_WRITE           = 64
	SYS_READLINKAT      = 78
	SYS_NEWFSTATAT      = 79
	SYS_FCHMODAT        = 53
	SYS_MKDIRAT         = 34
	SYS_GETCWD          = 17
	SYS_DUP3            = 24
	SYS_NANOSLEEP       = 101
	SYS_GETPID          = 172
	SYS_GETPPID         = 173
	SYS_GETUID          = 174
	SYS_GETEUID         = 175
	SYS_GETGID          = 176
	SYS_GETEGID         = 177
	SYS_GETTID          = 178
	SYS_SYSINFO         = 179
	SYS_GETRANDOM       = 278
	SYS_BRK             = 214
	SYS_MUNMAP          = 215
	SYS_CLONE           = 220
	SYS_EXECVE          = 221
	SYS_MMAP            = 222
	SYS_WAIT4           = 260
	SYS_KILL            = 129
	SYS_UNAME           = 160
	SYS_CLOCK_GETTIME   = 113
	SYS_EXIT            = 93
	SYS_EXIT_GROUP      = 94
	SYS_SET_TID_ADDRESS = 96
	SYS_SET_ROBUST_LIST = 99
	SYS_RT_SIGACTION    = 134
	SYS_RT_SIGPROCMASK  = 135
	SYS_REBOOT          = 142

	// Non-Linux extensions specific to this kernel.
	SYS_MONA_DMESG = 2000
	SYS_MONA_PING6 = 2001
)

// ELF auxv entry ids pushed onto the initial user stack by execve.
const (
	AT_NULL     = 0
	AT_PHDR     = 3
	AT_PHENT    = 4
	AT_PHNUM    = 5
	AT_PAGESZ   = 6
	AT_ENTRY    = 9
	AT_UID      = 11
	AT_EUID     = 12
	AT_GID      = 13
	AT_EGID     = 14
	AT_PLATFORM = 15
	AT_SECURE   = 23
	AT_RANDOM   = 25
	AT_EXECFN   = 31
)

// Kernel-wide tunables (§10.3). A single source of truth, referenced by
// every other package, mirroring the reference tree's limits.Syslimit_t
// posture of "one struct/const block of capacity numbers".
const (
	N_PROC          = 16   // max concurrent processes
	MAX_FDS         = 32   // per-process FD table capacity
	MAX_FILEDESCS   = 64   // global file-description table capacity
	MAX_PIPES       = 16   // global pipe table capacity
	PIPE_BUF        = 1024 // pipe ring-buffer capacity in bytes
	MAX_VMAS        = 16   // per-process anonymous VMA capacity
	MAX_ARGS        = 32   // execve argv capacity
	MAX_ENVP        = 32   // execve envp capacity
	MAX_STR         = 256  // execve per-string capacity, including NUL

	MAX_RAMDIRS  = 64 // overlay VFS directory-table capacity
	MAX_RAMFILES = 64 // overlay VFS ramfile-table capacity
	MAX_PATH     = 256 // normalized-path byte capacity

	USER_REGION_BASE = 0x00400000
	USER_REGION_SIZE = 2 << 20 // 2 MiB

	PGSIZE = 4096

	MMAP_GUARD = 64 << 10  // heap/mmap separation guard (§9 open question)
	STACK_GUARD = 256 << 10 // brk ceiling below stack_low
)

// ioctl request codes this kernel recognizes as TTY probes/sets.
const (
	TCGETS      = 0x5401
	TCSETS      = 0x5402
	TCSETSW     = 0x5403
	TCSETSF     = 0x5404
	TIOCGWINSZ  = 0x5413
	TIOCSWINSZ  = 0x5414
	TIOCGPGRP   = 0x540F
)

// mmap/open flag bits this kernel understands; others are rejected.
const (
	O_RDONLY   = 0x0
	O_WRONLY   = 0x1
	O_RDWR     = 0x2
	O_CREAT    = 0x40
	O_TRUNC    = 0x200
	O_DIRECTORY = 0x10000
	O_CLOEXEC  = 0x80000

	AT_FDCWD       = -100
	AT_REMOVEDIR   = 0x200
	AT_SYMLINK_NOFOLLOW = 0x100

	MAP_SHARED    = 0x1
	MAP_PRIVATE   = 0x2
	MAP_ANONYMOUS = 0x20

	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2

	WNOHANG = 1
)

// S_IF* file-type bits used in st_mode / getdents64 d_type derivation.
const (
	S_IFMT   = 0170000
	S_IFREG  = 0100000
	S_IFDIR  = 0040000
	S_IFLNK  = 0120000
	S_IFCHR  = 0020000
	S_IFIFO  = 0010000
)
