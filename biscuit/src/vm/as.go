package vm

import "sync"
import "time"

import "defs"
import "mem"
import "util"

// Vma_t is one anonymous mapping created by mmap, tracked purely as an
// address range: this port gives every process exactly one 2 MiB
// physical region (§3 "Process"), identity-backed and fully RW-mapped
// up front, so mmap/munmap only need range bookkeeping, never page
// faults, COW, or demand paging (Non-goals, §1).
type Vma_t struct {
	Start int
	Len   int
}

// Vm_t is a process's address space: the physical region backing its
// fixed user VA window, the root translation table cloned for it, and
// the brk/mmap bookkeeping that divides that window up (§4.17).
type Vm_t struct {
	mu sync.Mutex

	UserPA mem.Pa_t // physical base of this process's 2 MiB region
	Pmap   mem.Pa_t // TTBR0 value (L1 table physical address) for this process

	brk       int // current break, 0 before first SysBrk call
	highWater int // current low end of the mmap region, 0 before first mmap
	vmas      []Vma_t
}

// Init wires a freshly created or forked address space to its backing
// physical region and root table. Callers (clone, proc_init_if_needed)
// are responsible for actually populating UserPA's bytes.
func (as *Vm_t) Init(userPA, pmap mem.Pa_t) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.UserPA = userPA
	as.Pmap = pmap
	as.brk = 0
	as.highWater = 0
	as.vmas = nil
}

// Fork returns a new Vm_t sharing no state with as but starting from
// the same brk/mmap bookkeeping, for clone's byte-for-byte child
// address space (§4.11). The caller installs the child's own UserPA and
// Pmap afterward.
func (as *Vm_t) Fork() *Vm_t {
	as.mu.Lock()
	defer as.mu.Unlock()
	child := &Vm_t{brk: as.brk, highWater: as.highWater}
	child.vmas = append([]Vma_t(nil), as.vmas...)
	return child
}

// userRangeOK reports whether [va, va+n) lies entirely within this
// process's fixed user VA window.
func userRangeOK(va, n int) bool {
	if n < 0 || va < defs.USER_REGION_BASE {
		return false
	}
	end := va + n
	return end >= va && end <= defs.USER_REGION_BASE+defs.USER_REGION_SIZE
}

// translate returns the simulated-RAM byte slice backing [uva, uva+n)
// in this address space, or an EFAULT if any part of the range falls
// outside the user window. There is no page fault path to take: the
// entire 2 MiB region is always resident (§4.2).
func (as *Vm_t) translate(uva, n int) ([]byte, defs.Err_t) {
	if !userRangeOK(uva, n) {
		return nil, -defs.EFAULT
	}
	off := uva - defs.USER_REGION_BASE
	return mem.RamBytes(as.UserPA+mem.Pa_t(off), n), 0
}

// Userstr copies a NUL-terminated string from user memory starting at
// uva, up to lenmax bytes (exclusive of the terminator). Returns
// ENAMETOOLONG if no NUL is found in time.
func (as *Vm_t) Userstr(uva, lenmax int) (string, defs.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if lenmax < 0 {
		return "", 0
	}
	buf, err := as.translate(uva, defs.USER_REGION_SIZE-(uva-defs.USER_REGION_BASE))
	if err != 0 {
		return "", err
	}
	for i, c := range buf {
		if c == 0 {
			if i > lenmax {
				return "", -defs.ENAMETOOLONG
			}
			return string(buf[:i]), 0
		}
		if i+1 > lenmax {
			return "", -defs.ENAMETOOLONG
		}
	}
	return "", -defs.ENAMETOOLONG
}

// User2k copies len(dst) bytes from user memory at uva into dst.
func (as *Vm_t) User2k(dst []uint8, uva int) defs.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()
	src, err := as.translate(uva, len(dst))
	if err != 0 {
		return err
	}
	copy(dst, src)
	return 0
}

// K2user copies src into user memory starting at uva.
func (as *Vm_t) K2user(src []uint8, uva int) defs.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()
	dst, err := as.translate(uva, len(src))
	if err != 0 {
		return err
	}
	copy(dst, src)
	return 0
}

// Userreadn reads an n-byte (n<=8) little-endian integer from user
// memory at va.
func (as *Vm_t) Userreadn(va, n int) (int, defs.Err_t) {
	if n > 8 {
		panic("large n")
	}
	var buf [8]uint8
	if err := as.User2k(buf[:n], va); err != 0 {
		return 0, err
	}
	return util.Readn(buf[:n], n, 0), 0
}

// Userwriten writes the low n bytes (n<=8) of val to user memory at va.
func (as *Vm_t) Userwriten(va, n, val int) defs.Err_t {
	if n > 8 {
		panic("large n")
	}
	var buf [8]uint8
	util.Writen(buf[:n], n, 0, val)
	return as.K2user(buf[:n], va)
}

// Usertimespec reads a {sec, nsec} timespec pair from user memory at
// va, used by nanosleep (§6).
func (as *Vm_t) Usertimespec(va int) (time.Duration, defs.Err_t) {
	secs, err := as.Userreadn(va, 8)
	if err != 0 {
		return 0, err
	}
	nsecs, err := as.Userreadn(va+8, 8)
	if err != 0 {
		return 0, err
	}
	if secs < 0 || nsecs < 0 {
		return 0, -defs.EINVAL
	}
	tot := time.Duration(secs)*time.Second + time.Duration(nsecs)*time.Nanosecond
	return tot, 0
}

// heapCeiling is the byte immediately past the highest address brk may
// grow to, clamped below whatever the current stack pointer has
// reached (§4.17 "brk").
func heapCeiling(stackLow int) int {
	lim := stackLow - defs.STACK_GUARD
	if lim > defs.USER_REGION_BASE+defs.USER_REGION_SIZE {
		lim = defs.USER_REGION_BASE + defs.USER_REGION_SIZE
	}
	return lim
}

// SysBrk lazily initializes the heap at USER_REGION_BASE (16-byte
// aligned) on the first call, then grows or shrinks it to newbrk,
// 16-byte aligned, refusing to cross heapCeiling(stackLow) or to come
// within MMAP_GUARD bytes of the lowest mmap region. It always
// returns the resulting break; a request that can't be satisfied
// leaves the break unchanged and returns the current value, matching
// the reference tree's "brk never fails, it just doesn't move".
func (as *Vm_t) SysBrk(newbrk, stackLow int) int {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.brk == 0 {
		as.brk = util.Roundup(defs.USER_REGION_BASE, 16)
	}
	if newbrk == 0 {
		return as.brk
	}
	aligned := util.Roundup(newbrk, 16)
	ceil := heapCeiling(stackLow)
	if aligned < defs.USER_REGION_BASE || aligned > ceil {
		return as.brk
	}
	if as.highWater != 0 && aligned+defs.MMAP_GUARD > as.highWater {
		return as.brk
	}
	as.brk = aligned
	return as.brk
}

// SysMmap implements the restricted anonymous-only mmap this kernel
// supports (§4.17): only MAP_PRIVATE|MAP_ANONYMOUS with fd=-1, addr=0
// is accepted. The mapping is placed downward from the current high
// watermark (page-aligned), skipping any existing VMA, and must stay
// at least MMAP_GUARD bytes above the heap's current break.
func (as *Vm_t) SysMmap(length, prot, flags, fd, addr int) (int, defs.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if addr != 0 || fd != -1 {
		return 0, -defs.ENOSYS
	}
	if flags&(defs.MAP_PRIVATE|defs.MAP_ANONYMOUS) != (defs.MAP_PRIVATE | defs.MAP_ANONYMOUS) {
		return 0, -defs.EINVAL
	}
	if length <= 0 {
		return 0, -defs.EINVAL
	}
	plen := util.Roundup(length, mem.PGSIZE)

	top := as.highWater
	if top == 0 {
		top = defs.USER_REGION_BASE + defs.USER_REGION_SIZE
	}
	floor := as.brk + defs.MMAP_GUARD

	cand := top - plen
	for {
		if cand < floor {
			return 0, -defs.ENOMEM
		}
		if !as.overlaps(cand, plen) {
			break
		}
		cand -= mem.PGSIZE
	}

	as.vmas = append(as.vmas, Vma_t{Start: cand, Len: plen})
	if cand < as.highWater || as.highWater == 0 {
		as.highWater = cand
	}
	return cand, 0
}

func (as *Vm_t) overlaps(start, n int) bool {
	end := start + n
	for _, v := range as.vmas {
		if start < v.Start+v.Len && end > v.Start {
			return true
		}
	}
	return false
}

// SysMunmap removes the VMA matching (addr, length) exactly, after
// page-rounding length up, and recomputes the high watermark as the
// longest run of contiguous VMAs ending at the top (§4.17).
func (as *Vm_t) SysMunmap(addr, length int) defs.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()
	plen := util.Roundup(length, mem.PGSIZE)
	idx := -1
	for i, v := range as.vmas {
		if v.Start == addr && v.Len == plen {
			idx = i
			break
		}
	}
	if idx == -1 {
		return -defs.EINVAL
	}
	as.vmas = append(as.vmas[:idx], as.vmas[idx+1:]...)
	as.recomputeHighWater()
	return 0
}

func (as *Vm_t) recomputeHighWater() {
	top := defs.USER_REGION_BASE + defs.USER_REGION_SIZE
	for {
		found := false
		for _, v := range as.vmas {
			if v.Start+v.Len == top {
				top = v.Start
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	as.highWater = top
}

// Clear drops all brk/mmap bookkeeping, used when a process slot is
// reclaimed (§4.10 "clear").
func (as *Vm_t) Clear() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.brk = 0
	as.highWater = 0
	as.vmas = nil
}
