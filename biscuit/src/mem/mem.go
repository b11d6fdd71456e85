// Package mem defines the physical-address vocabulary and backing RAM
// store shared by the PMM and MMU, plus the physical page manager (PMM,
// §4.1) itself.
//
// This port hosts the kernel as an ordinary Go program rather than on
// bare metal, so "physical memory" is a single Go byte slice (Ram) that
// Pa_t indexes into; there is no modified runtime and no per-CPU free
// lists (the system is single-CPU by spec, §5). The reference tree's
// Pa_t/Bytepg_t vocabulary and Dmap-style direct-access helper are kept
// because the rest of the kernel is written against them, but the
// multi-level/per-CPU pml4 bookkeeping that doesn't apply to a 2-level,
// single-CPU, no-ASID design has been dropped (see DESIGN.md).
package mem

import "fmt"
import "sync"
import "unsafe"

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

// Block-descriptor attribute bits used by the MMU's 2 MiB block entries
// (§4.2). These are a simplified AArch64 analogue of the reference
// tree's x86 PTE_* bits: valid+block, access flag, EL0 access, and
// writable, plus the address-extraction mask.
const (
	PTE_P  Pa_t = 1 << 0 // valid block/table descriptor
	PTE_AF Pa_t = 1 << 10 // access flag
	PTE_U  Pa_t = 1 << 6  // AP[1]: EL0 accessible
	PTE_W  Pa_t = 1 << 7  // AP[2]==0 means writable; bit set here means read-only
	PTE_PXN Pa_t = 1 << 53
	PTE_UXN Pa_t = 1 << 54
	PTE_ADDR Pa_t = PGMASK
)

/// Pa_t represents a physical address (an offset into Ram).
type Pa_t uintptr

/// Bytepg_t is a byte-addressed page.
type Bytepg_t [PGSIZE]uint8

/// Pg_t is a generic page of words, used by table-walking code that
/// prefers fixed-width slots over raw bytes.
type Pg_t [512]uint64

/// Pmap_t is a 2-level block-descriptor table page (512 entries).
type Pmap_t [512]Pa_t

/// Page_i abstracts physical page allocation for callers (e.g. circbuf)
/// that only need alloc/free/refcount, not the full PMM surface.
type Page_i interface {
	Refpg_new() (*Pg_t, Pa_t, bool)
	Refpg_new_nozero() (*Pg_t, Pa_t, bool)
	Refcnt(Pa_t) int
	Dmap(Pa_t) *Pg_t
	Refup(Pa_t)
	Refdown(Pa_t) bool
}

/// Pg2bytes reinterprets a word page as a byte page.
func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

/// Bytepg2pg reinterprets a byte page as a word page.
func Bytepg2pg(pg *Bytepg_t) *Pg_t {
	return (*Pg_t)(unsafe.Pointer(pg))
}

/// Ram backs all of "physical memory". Pa_t 0 corresponds to Ram[0].
/// RamBase is the simulated physical base address handed to callers that
/// need an absolute Pa_t (e.g. the DTB-reported RAM base).
var (
	Ram     []Bytepg_t
	RamBase Pa_t
	ramMu   sync.Mutex
)

/// RamInit allocates the backing store for `npages` simulated physical
/// pages starting at physical address `base`. It must be called exactly
/// once during boot, before Phys_init.
func RamInit(base Pa_t, npages int) {
	ramMu.Lock()
	defer ramMu.Unlock()
	Ram = make([]Bytepg_t, npages)
	RamBase = base
	fmt.Printf("mem: simulated RAM %d pages (%d MiB) at 0x%x\n", npages, npages*PGSIZE>>20, uintptr(base))
}

/// pageIndex converts a physical address into an index into Ram,
/// panicking if it falls outside the simulated RAM window. It is a
/// programming error for the caller to offer an address that was not
/// returned by the PMM.
func pageIndex(p Pa_t) int {
	if p < RamBase {
		panic("mem: address below RAM base")
	}
	off := p - RamBase
	idx := int(off >> PGSHIFT)
	if idx < 0 || idx >= len(Ram) {
		panic("mem: address outside simulated RAM")
	}
	return idx
}

/// Dmap returns the page backing physical address p, analogous to the
/// reference tree's direct map / this port's higher-half alias (§4.2).
func Dmap(p Pa_t) *Bytepg_t {
	return &Ram[pageIndex(p)]
}

/// Dmap8 returns a byte slice starting at the exact offset within its
/// page that p designates.
func Dmap8(p Pa_t) []uint8 {
	pg := Dmap(p)
	off := p & PGOFFSET
	return pg[off:]
}

/// PageBytes returns the full page-aligned byte slice containing p.
func PageBytes(p Pa_t) []byte {
	pg := Dmap(p)
	return pg[:]
}

/// RamBytes returns a contiguous slice of n bytes starting at physical
/// address p, spanning page boundaries. Unlike Dmap8 (which stops at the
/// end of p's page), this lets callers that know a physical region is
/// backed by simulated RAM (e.g. a process's 2 MiB user window) address
/// it as one flat slice. Panics if the range falls outside Ram.
func RamBytes(p Pa_t, n int) []byte {
	if n < 0 {
		panic("mem: negative length")
	}
	idx := pageIndex(p)
	off := int(p & PGOFFSET)
	start := idx*PGSIZE + off
	total := len(Ram) * PGSIZE
	if start+n > total {
		panic("mem: range outside simulated RAM")
	}
	base := (*byte)(unsafe.Pointer(&Ram[0]))
	return unsafe.Slice(base, total)[start : start+n]
}
