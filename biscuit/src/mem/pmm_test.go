package mem

import "testing"

func setupRAM(t *testing.T, npages int) {
	t.Helper()
	RamInit(0x40000000, npages)
	Phys_init(0x40000000, 0x40000000+0x100000, 0)
}

func TestAllocPageFirstFit(t *testing.T) {
	setupRAM(t, 1024)
	a := Alloc_page()
	if a == 0 {
		t.Fatal("expected non-zero allocation")
	}
	b := Alloc_page()
	if b == 0 || b == a {
		t.Fatalf("expected distinct allocation, got %x and %x", a, b)
	}
	Free_page(a)
	c := Alloc_page()
	if c != a {
		t.Fatalf("expected first-fit to reuse freed page %x, got %x", a, c)
	}
}

func TestFreePageIdempotentOnUnowned(t *testing.T) {
	setupRAM(t, 1024)
	before := PMMInfo().FreePages
	Free_page(RamBase + 9999*Pa_t(PGSIZE))
	after := PMMInfo().FreePages
	if before != after {
		t.Fatalf("freeing an out-of-range page changed free count: %d -> %d", before, after)
	}
}

func TestAlloc2MiBAligned(t *testing.T) {
	setupRAM(t, 2048)
	base := Alloc_2mib_aligned()
	if base == 0 {
		t.Fatal("expected a 2MiB block")
	}
	if base%(2<<20) != 0 {
		t.Fatalf("block %x is not 2MiB aligned", base)
	}
	for i := Pa_t(0); i < 512; i++ {
		p := base + i*Pa_t(PGSIZE)
		// every page in the block must now be taken: a single extra
		// Alloc_page must not return one from inside the block.
		a := Alloc_page()
		if a >= base && a < base+512*Pa_t(PGSIZE) {
			t.Fatalf("alloc_page returned a page %x inside the reserved 2MiB block %x", a, base)
		}
		_ = p
		Free_page(a)
	}
}

func TestAlloc2MiBExhaustion(t *testing.T) {
	setupRAM(t, 256) // fewer than 512 pages available
	if b := Alloc_2mib_aligned(); b != 0 {
		t.Fatalf("expected exhaustion to return 0, got %x", b)
	}
}

func TestFree2MiBReleasesWholeBlock(t *testing.T) {
	setupRAM(t, 2048)
	base := Alloc_2mib_aligned()
	if base == 0 {
		t.Fatal("expected a 2MiB block")
	}
	freeBefore := PMMInfo().FreePages
	Free_2mib_aligned(base)
	freeAfter := PMMInfo().FreePages
	if freeAfter != freeBefore+512 {
		t.Fatalf("expected 512 pages freed, got delta %d", freeAfter-freeBefore)
	}
}
