package vm

import "testing"

import "defs"
import "mem"

func setupAS(t *testing.T) *Vm_t {
	t.Helper()
	mem.RamInit(0, 4096)
	mem.Phys_init(0, 0x100000, 0)
	pa := mem.USER_REGION_BASE_PA()
	as := &Vm_t{}
	as.Init(pa, 0)
	return as
}

func TestUserReadWriteRoundtrip(t *testing.T) {
	as := setupAS(t)
	va := defs.USER_REGION_BASE + 128
	if err := as.Userwriten(va, 8, 0x1122334455667788); err != 0 {
		t.Fatalf("write failed: %d", err)
	}
	got, err := as.Userreadn(va, 8)
	if err != 0 {
		t.Fatalf("read failed: %d", err)
	}
	if got != 0x1122334455667788 {
		t.Fatalf("roundtrip mismatch: got %x", got)
	}
}

func TestUserAccessOutOfRangeFaults(t *testing.T) {
	as := setupAS(t)
	if _, err := as.Userreadn(defs.USER_REGION_BASE+defs.USER_REGION_SIZE, 8); err != -defs.EFAULT {
		t.Fatalf("expected EFAULT, got %d", err)
	}
}

func TestSysBrkLazyInitAndGrowth(t *testing.T) {
	as := setupAS(t)
	stackLow := defs.USER_REGION_BASE + defs.USER_REGION_SIZE
	b0 := as.SysBrk(0, stackLow)
	if b0 != defs.USER_REGION_BASE {
		t.Fatalf("expected lazy brk at region base, got %x", b0)
	}
	b1 := as.SysBrk(b0+100, stackLow)
	if b1 <= b0 || b1%16 != 0 {
		t.Fatalf("expected 16-byte aligned growth, got %x", b1)
	}
}

func TestSysBrkRefusesPastCeiling(t *testing.T) {
	as := setupAS(t)
	stackLow := defs.USER_REGION_BASE + defs.USER_REGION_SIZE
	ceil := heapCeiling(stackLow)
	b := as.SysBrk(ceil+1<<20, stackLow)
	if b > ceil {
		t.Fatalf("brk grew past ceiling: %x > %x", b, ceil)
	}
}

func TestSysMmapThenMunmap(t *testing.T) {
	as := setupAS(t)
	stackLow := defs.USER_REGION_BASE + defs.USER_REGION_SIZE
	as.SysBrk(0, stackLow)

	addr, err := as.SysMmap(4096, 0, defs.MAP_PRIVATE|defs.MAP_ANONYMOUS, -1, 0)
	if err != 0 {
		t.Fatalf("mmap failed: %d", err)
	}
	if addr%mem.PGSIZE != 0 {
		t.Fatalf("mmap address not page aligned: %x", addr)
	}
	addr2, err := as.SysMmap(4096, 0, defs.MAP_PRIVATE|defs.MAP_ANONYMOUS, -1, 0)
	if err != 0 {
		t.Fatalf("second mmap failed: %d", err)
	}
	if addr2 == addr {
		t.Fatalf("expected distinct mmap regions")
	}
	if err := as.SysMunmap(addr2, 4096); err != 0 {
		t.Fatalf("munmap failed: %d", err)
	}
	if err := as.SysMunmap(addr2, 4096); err == 0 {
		t.Fatalf("expected second munmap of same region to fail")
	}
}

func TestSysMmapRejectsNonAnonymous(t *testing.T) {
	as := setupAS(t)
	if _, err := as.SysMmap(4096, 0, defs.MAP_SHARED, -1, 0); err != -defs.EINVAL {
		t.Fatalf("expected EINVAL for non-private mapping, got %d", err)
	}
	if _, err := as.SysMmap(4096, 0, defs.MAP_PRIVATE|defs.MAP_ANONYMOUS, 3, 0); err != -defs.ENOSYS {
		t.Fatalf("expected ENOSYS for fd!=-1, got %d", err)
	}
}
