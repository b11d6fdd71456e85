package mem

import "fmt"
import "sync"

import "oommsg"
import "util"

/// Info_t is a point-in-time snapshot of the PMM's bookkeeping, the Go
/// analogue of the reference C kernel's pmm_info_t.
type Info_t struct {
	Base       Pa_t
	Size       uint64
	PageSize   uint64
	TotalPages uint64
	FreePages  uint64
}

/// pmm_t is a bitmap-based first-fit physical page allocator over a
/// single contiguous RAM range (§4.1). One bit per page: 0 = free, 1 =
/// used.
type pmm_t struct {
	sync.Mutex
	bitmap []byte
	refcnt []uint8
	info   Info_t
}

var thePMM pmm_t

/// DefaultAllocator satisfies Page_i over the global PMM, letting
/// packages that only need alloc/free/refcount (e.g. circbuf) depend on
/// the narrower interface instead of every PMM function.
var DefaultAllocator Page_i = &thePMM

func (p *pmm_t) bitSet(idx uint64)   { p.bitmap[idx>>3] |= 1 << (idx & 7) }
func (p *pmm_t) bitClear(idx uint64) { p.bitmap[idx>>3] &^= 1 << (idx & 7) }
func (p *pmm_t) bitTest(idx uint64) bool {
	return p.bitmap[idx>>3]&(1<<(idx&7)) != 0
}

/// reserveRange marks every page overlapping [start, end) as used,
/// clamped to the managed range. Used by Phys_init to carve out the
/// kernel image, DTB window, and initial reservations (§3 PMM
/// invariants).
func (p *pmm_t) reserveRange(start, end Pa_t) {
	base := p.info.Base
	limit := base + Pa_t(p.info.Size)
	if start < base {
		start = base
	}
	if end > limit {
		end = limit
	}
	if end <= start {
		return
	}
	s := util.Rounddown(int(start), PGSIZE)
	e := util.Roundup(int(end), PGSIZE)
	for pa := s; pa < e; pa += PGSIZE {
		idx := uint64(Pa_t(pa)-base) / uint64(PGSIZE)
		if idx >= p.info.TotalPages {
			break
		}
		if !p.bitTest(idx) {
			p.bitSet(idx)
			if p.info.FreePages > 0 {
				p.info.FreePages--
			}
		}
	}
}

/// Phys_init initializes the global PMM over the simulated RAM installed
/// by mem.RamInit, reserving the kernel image, the DTB staging window,
/// the first 2 MiB of RAM, and the initial user region, matching the
/// reference kernel's pmm_init reservation order.
func Phys_init(kernelStart, kernelEnd, dtbPtr Pa_t) *Info_t {
	p := &thePMM
	p.Lock()
	defer p.Unlock()

	total := uint64(len(Ram))
	p.bitmap = make([]byte, (total+7)/8)
	p.refcnt = make([]uint8, total)
	p.info = Info_t{
		Base:       RamBase,
		Size:       total * uint64(PGSIZE),
		PageSize:   uint64(PGSIZE),
		TotalPages: total,
		FreePages:  total,
	}

	p.reserveRange(RamBase, RamBase+2<<20)
	p.reserveRange(kernelStart, kernelEnd)
	if dtbPtr != 0 {
		p.reserveRange(dtbPtr, dtbPtr+0x10000)
	}
	p.reserveRange(USER_REGION_BASE_PA(), USER_REGION_BASE_PA()+2<<20)

	fmt.Printf("pmm: base=0x%x size=0x%x pages=%d free=%d\n",
		uintptr(p.info.Base), p.info.Size, p.info.TotalPages, p.info.FreePages)
	return &p.info
}

// USER_REGION_BASE_PA is the physical reservation mirroring the fixed
// EL0 user virtual window (§3); the identity-mapped bring-up image lives
// at the same numeric address physically and virtually before any
// per-process remapping happens.
func USER_REGION_BASE_PA() Pa_t { return Pa_t(0x00400000) }

/// Alloc_page finds the first free page via linear bitmap scan and marks
/// it used, returning its physical address or 0 on exhaustion.
func Alloc_page() Pa_t {
	p := &thePMM
	p.Lock()
	defer p.Unlock()
	if p.info.FreePages == 0 || p.info.TotalPages == 0 {
		p.Unlock()
		notifyOOM(PGSIZE)
		p.Lock()
		return 0
	}
	for idx := uint64(0); idx < p.info.TotalPages; idx++ {
		if !p.bitTest(idx) {
			p.bitSet(idx)
			p.info.FreePages--
			return p.info.Base + Pa_t(idx)*Pa_t(PGSIZE)
		}
	}
	return 0
}

/// Free_page releases a previously allocated page. Freeing an
/// out-of-range, misaligned, or already-free page is a silent no-op
/// (§4.1).
func Free_page(pa Pa_t) {
	p := &thePMM
	p.Lock()
	defer p.Unlock()
	if p.info.TotalPages == 0 {
		return
	}
	if pa < p.info.Base || pa >= p.info.Base+Pa_t(p.info.Size) {
		return
	}
	if pa&Pa_t(PGSIZE-1) != 0 {
		return
	}
	idx := uint64(pa-p.info.Base) / uint64(PGSIZE)
	if idx >= p.info.TotalPages {
		return
	}
	if p.bitTest(idx) {
		p.bitClear(idx)
		p.info.FreePages++
	}
}

/// Alloc_2mib_aligned finds a 2 MiB-aligned run of 512 contiguous free
/// pages, advancing the candidate start by aligning up to the next 512
/// page boundary and skipping over any run containing a used page
/// (§4.1). Returns 0 if no such run exists.
func Alloc_2mib_aligned() Pa_t {
	const pages = 512
	p := &thePMM
	p.Lock()
	defer p.Unlock()
	if p.info.FreePages < pages || p.info.TotalPages == 0 {
		p.Unlock()
		notifyOOM(pages * PGSIZE)
		p.Lock()
		return 0
	}
	start := uint64(0)
	for start+pages <= p.info.TotalPages {
		aligned := (start + (pages - 1)) &^ (pages - 1)
		start = aligned
		if start+pages > p.info.TotalPages {
			break
		}
		ok := true
		for i := uint64(0); i < pages; i++ {
			if p.bitTest(start + i) {
				ok = false
				break
			}
		}
		if ok {
			for i := uint64(0); i < pages; i++ {
				p.bitSet(start + i)
			}
			p.info.FreePages -= pages
			return p.info.Base + Pa_t(start)*Pa_t(PGSIZE)
		}
		start += pages
	}
	return 0
}

/// Free_2mib_aligned releases a 512-page block previously returned by
/// Alloc_2mib_aligned. A zero or misaligned base is a no-op.
func Free_2mib_aligned(base Pa_t) {
	if base == 0 {
		return
	}
	if base&(2<<20-1) != 0 {
		return
	}
	for i := Pa_t(0); i < 512; i++ {
		Free_page(base + i*Pa_t(PGSIZE))
	}
}

/// PMMInfo returns a snapshot of the PMM's current bookkeeping, exposed
/// through mona_dmesg/diagnostics.
func PMMInfo() Info_t {
	p := &thePMM
	p.Lock()
	defer p.Unlock()
	return p.info
}

// notifyOOM posts on oommsg.OomCh the way the reference tree's memory
// allocator signals an out-of-memory condition to any listener (nothing
// in this tree receives on it); it never blocks so allocation failure
// paths stay non-blocking.
func notifyOOM(need int) {
	select {
	case oommsg.OomCh <- oommsg.Oommsg_t{Need: need, Resume: make(chan bool, 1)}:
	default:
	}
}

// refIndex is reserveRange/Alloc_page's index arithmetic, reused by the
// refcounting calls below so they stay consistent with the bitmap.
func (p *pmm_t) refIndex(pa Pa_t) uint64 {
	return uint64(pa-p.info.Base) / uint64(PGSIZE)
}

/// Refpg_new allocates a page, zeroes it, and sets its refcount to 1,
/// satisfying Page_i for callers (circbuf, vm) that hand pages to
/// multiple owners.
func (p *pmm_t) Refpg_new() (*Pg_t, Pa_t, bool) {
	pg, pa, ok := p.Refpg_new_nozero()
	if !ok {
		return nil, 0, false
	}
	for i := range pg {
		pg[i] = 0
	}
	return pg, pa, true
}

/// Refpg_new_nozero is Refpg_new without the zero-fill, for callers about
/// to overwrite the whole page anyway (circbuf's lazy buffer allocation).
func (p *pmm_t) Refpg_new_nozero() (*Pg_t, Pa_t, bool) {
	pa := Alloc_page()
	if pa == 0 {
		return nil, 0, false
	}
	p.Lock()
	idx := p.refIndex(pa)
	p.refcnt[idx] = 1
	p.Unlock()
	return Bytepg2pg(Dmap(pa)), pa, true
}

/// Refcnt returns the current reference count of the page at pa, or 0 if
/// it is not currently allocated.
func (p *pmm_t) Refcnt(pa Pa_t) int {
	p.Lock()
	defer p.Unlock()
	idx := p.refIndex(pa)
	if idx >= uint64(len(p.refcnt)) {
		return 0
	}
	return int(p.refcnt[idx])
}

/// Dmap returns the page at pa reinterpreted as a word page, matching
/// Page_i's signature (the package-level Dmap returns a byte page).
func (p *pmm_t) Dmap(pa Pa_t) *Pg_t {
	return Bytepg2pg(Dmap(pa))
}

/// Refup increments the refcount of an already-allocated page.
func (p *pmm_t) Refup(pa Pa_t) {
	p.Lock()
	defer p.Unlock()
	idx := p.refIndex(pa)
	if idx >= uint64(len(p.refcnt)) {
		return
	}
	p.refcnt[idx]++
}

/// Refdown decrements the refcount of pa, freeing it and returning true
/// when the count reaches zero.
func (p *pmm_t) Refdown(pa Pa_t) bool {
	p.Lock()
	idx := p.refIndex(pa)
	if idx >= uint64(len(p.refcnt)) {
		p.Unlock()
		return false
	}
	if p.refcnt[idx] > 0 {
		p.refcnt[idx]--
	}
	freed := p.refcnt[idx] == 0
	p.Unlock()
	if freed {
		Free_page(pa)
	}
	return freed
}
