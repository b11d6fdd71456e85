// Package uart drives the PL011 console and implements the DESC_UART
// file description (§3, §4.18), grounded on
// _examples/original_source/kernel-aarch64/uart_pl011.c and
// console_in.c: a transmit path that mirrors every byte into klog, and
// an input ring fed by polling the receive side, translating '\r' to
// '\n' the same way console_in_poll does.
//
// The reference tree drives real PL011 registers (DR/FR/IBRD/...) over
// MMIO. This hosted port runs as an ordinary Go program with no real
// peripheral address space to map (see vm/mmu.go, vm/cache.go for the
// same posture applied to the MMU and cache maintenance), so putcHW
// and tryGetcHW stand in for the register accesses: Init/SetBase still
// exist and record what a real boot would use to map the UART, but the
// actual byte transport here is host stdio, which is the only "wire"
// a process hosted this way actually has (see DESIGN.md).
package uart

import "fmt"
import "sync"

import "defs"
import "fdops"
import "klog"

// base records the PL011 MMIO base address a real boot would map the
// UART at (from the DTB), preserved for parity with the reference
// tree's uart_pl011.h constant even though this port never dereferences
// it.
var base uintptr

// SetBase records the PL011 MMIO base address discovered from the DTB.
func SetBase(pa uintptr) { base = pa }

// Init brings the UART up; on real hardware this would zero CR, clear
// pending interrupts, select 8N1, and enable UART+TX+RX (uart_init).
// Hosted, there is nothing to program.
func Init() {}

func putcHW(c byte) {
	fmt.Print(string(c))
}

// Putc writes one byte to the console, translating '\n' to "\r\n" on
// the wire while storing a single '\n' in klog (uart_putc).
func Putc(c byte) {
	if c == '\n' {
		putcHW('\r')
		putcHW('\n')
		klog.Putc('\n')
		return
	}
	putcHW(c)
	klog.Putc(c)
}

// Write sends s byte by byte through Putc (uart_write).
func Write(s string) {
	for i := 0; i < len(s); i++ {
		Putc(s[i])
	}
}

const ringSize = 1024

var (
	mu           sync.Mutex
	ring         [ringSize]byte
	ringR, ringW int
)

func ringNext(i int) int {
	i++
	if i >= ringSize {
		i = 0
	}
	return i
}

// InjectChar feeds one byte into the input ring as if it had arrived
// over the wire, translating '\r' to '\n' (console_in_inject_char +
// the translation console_in_poll normally applies); this is the
// hosted port's only input source, standing in for uart_try_getc
// draining a real RX FIFO.
func InjectChar(c byte) {
	mu.Lock()
	defer mu.Unlock()
	if c == '\r' {
		c = '\n'
	}
	next := ringNext(ringW)
	if next == ringR {
		return // full: drop newest, matching console_in.c
	}
	ring[ringW] = c
	ringW = next
}

// TryGetc pops one byte from the input ring if available
// (console_in_try_getc).
func TryGetc() (byte, bool) {
	mu.Lock()
	defer mu.Unlock()
	if ringR == ringW {
		return 0, false
	}
	c := ring[ringR]
	ringR = ringNext(ringR)
	return c, true
}

// Fd_t implements fdops.Fdops_i for the shared console description
// installed at fds 0/1/2 during process bootstrap (§4.10).
type Fd_t struct{}

func (Fd_t) Close() defs.Err_t  { return 0 }
func (Fd_t) Reopen() defs.Err_t { return 0 }
func (Fd_t) Pathi() (string, defs.Err_t)                    { return "", -defs.EINVAL }
func (Fd_t) Lseek(offset int, whence int) (int, defs.Err_t) { return 0, -defs.ESPIPE }
func (Fd_t) Truncate(newlen uint) defs.Err_t                { return -defs.EINVAL }
func (Fd_t) Getdents(dst fdops.Userio_i) (int, defs.Err_t)  { return 0, -defs.ENOTDIR }

func (Fd_t) Fstat(st fdops.Stat_i) defs.Err_t {
	st.Wmode(uint(defs.S_IFCHR), 5, 1) // tty-class major/minor, arbitrary but stable
	st.Wsize(0)
	return 0
}

// Write copies src to the console.
func (Fd_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	Write(string(buf[:n]))
	return n, 0
}

// Read copies whatever is currently queued in the input ring into dst
// without blocking, returning 0 if nothing is queued. The syscall
// dispatcher is responsible for the actual blocking behavior (§4.19):
// on 0 bytes it parks the calling process and retries on the next
// scheduling pass, rather than this method spinning the single CPU.
func (Fd_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	var out []byte
	for len(out) < dst.Remain() {
		c, ok := TryGetc()
		if !ok {
			break
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return 0, 0
	}
	return dst.Uiowrite(out)
}
