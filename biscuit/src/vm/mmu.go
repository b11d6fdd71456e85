// Package vm builds and maintains the AArch64 translation tables this
// kernel installs at boot and clones per process (§4.2 "MMU"), the cache
// and TLB maintenance this port issues around MMU enable and context
// switch (§4.3), and the user-memory access helpers syscall handlers use
// to move bytes to and from a process's fixed user window (§9
// "Pointer-to-user accesses").
//
// This port hosts the kernel as an ordinary Go program, so there are no
// real system registers to read or write and no real cache to flush;
// the table-building and range arithmetic below is kept faithful to the
// reference tree so the data it produces (and the bookkeeping it does)
// is correct, but sctlrEnabled stands in for SCTLR_EL1.M and the cache
// maintenance calls in cache.go are range-checked no-ops rather than
// DC/IC instructions (see DESIGN.md).
package vm

import "unsafe"

import "defs"
import "mem"

// Descriptor type and attribute bits (§4.2), named after the reference
// tree's mmu.c rather than generic PTE_* so a reader can match this file
// against it directly.
const (
	descValid Pa = 1 << 0
	descTable Pa = 1 << 1 // combined with descValid: table descriptor (0b11)
	// a block descriptor leaves bit 1 clear (0b01 with descValid)

	pteAF Pa = 1 << 10

	pteSHNone  Pa = 0 << 8
	pteSHInner Pa = 3 << 8

	pteAPRW_EL1 Pa = 0 << 6
	pteAPRW_EL0 Pa = 1 << 6

	attrNormal = 0
	attrDevice = 1

	ptePXN Pa = 1 << 53
	pteUXN Pa = 1 << 54

	blockAddrMask Pa = 0x0000FFFFFFE00000
	tableAddrMask Pa = 0x0000FFFFFFFFF000
)

// Pa is a physical address, kept as a distinct name in this package so
// table-building code reads like the reference tree's uint64_t math
// without importing mem for every literal.
type Pa = mem.Pa_t

const tableEntries = 512
const blockSize = 2 << 20

// periphBase/periphEnd bound the BCM2836/BCM2710 peripheral and "local
// peripherals" windows that must be mapped Device-nGnRE, EL1-only,
// execute-never (§4.2).
const (
	periphBase = 0x3F000000
	periphEnd  = 0x40001000
)

var (
	l2Template0 []Pa
	l2Template1 []Pa
	sctlrEnabled bool
)

func alignDown(v, a uint64) uint64 { return v &^ (a - 1) }
func alignUp(v, a uint64) uint64   { return (v + a - 1) &^ (a - 1) }

// allocTablePage allocates and zeroes a page-sized translation table,
// returning its physical address and a []Pa view over it.
func allocTablePage() (Pa, []Pa) {
	pa := mem.Alloc_page()
	if pa == 0 {
		return 0, nil
	}
	pg := mem.Bytepg2pg(mem.Dmap(pa))
	tbl := (*[tableEntries]Pa)(unsafe.Pointer(pg))[:]
	for i := range tbl {
		tbl[i] = 0
	}
	return pa, tbl
}

func makeTableDesc(nextTablePA Pa) Pa {
	return (nextTablePA & tableAddrMask) | descTable | descValid
}

func makeBlockDesc(outPA Pa, attrIndex int, ap Pa, isDevice bool) Pa {
	desc := outPA & blockAddrMask
	desc |= descValid // block descriptor: bit1 clear
	desc |= pteAF
	desc |= ap
	desc |= Pa(attrIndex) << 2
	if isDevice {
		desc |= pteSHNone
		desc |= ptePXN | pteUXN
	} else {
		desc |= pteSHInner
	}
	return desc
}

// IsEnabled reports whether MMUInitIdentity has run.
func IsEnabled() bool { return sctlrEnabled }

// MMUInitIdentity builds the kernel's boot-time identity map: two
// level-1 tables (low/high) and two level-2 tables covering
// [0, 2 GiB) in 2 MiB blocks, carves out the peripheral windows as
// Device-nGnRE EL1-only execute-never, tags the single block at
// USER_REGION_BASE EL0-RW, aliases the same level-2 tables at the
// higher-half base, and remembers the templates so
// TTBR0CreateWithUserPA can clone them per process (§4.2).
//
// Enable order matches the reference tree: install tables and enable
// translation with caches off, run cache maintenance, then mark caches
// on.
func MMUInitIdentity(ramBase mem.Pa_t, ramSize uint64) defs.Err_t {
	if sctlrEnabled {
		return 0
	}

	ramStart := alignDown(uint64(ramBase), blockSize)
	ramEnd := alignUp(uint64(ramBase)+ramSize, blockSize)
	if ramEnd <= ramStart {
		return -defs.EINVAL
	}

	l1LowPA, l1Low := allocTablePage()
	_, l1High := allocTablePage()
	l2_0PA, l2_0 := allocTablePage()
	l2_1PA, l2_1 := allocTablePage()
	if l1Low == nil || l1High == nil || l2_0 == nil || l2_1 == nil {
		return -defs.ENOMEM
	}

	l1Low[0] = makeTableDesc(l2_0PA)
	l1Low[1] = makeTableDesc(l2_1PA)
	// higher-half alias: index 256/257 for a 39-bit VA T1SZ=25 split,
	// unused by this single-address-space-per-process design but built
	// for parity with the reference tree.
	l1High[256] = makeTableDesc(l2_0PA)
	l1High[257] = makeTableDesc(l2_1PA)

	for i := 0; i < tableEntries; i++ {
		va := uint64(i) * blockSize
		isDev := va >= periphBase && va < periphEnd
		attr := attrNormal
		if isDev {
			attr = attrDevice
		}
		ap := pteAPRW_EL1
		if !isDev && va == defs.USER_REGION_BASE {
			ap = pteAPRW_EL0
		}
		l2_0[i] = makeBlockDesc(Pa(va), attr, ap, isDev)
	}
	for i := 0; i < tableEntries; i++ {
		va := uint64(0x40000000) + uint64(i)*blockSize
		isDev := va >= periphBase && va < periphEnd
		attr := attrNormal
		if isDev {
			attr = attrDevice
		}
		l2_1[i] = makeBlockDesc(Pa(va), attr, pteAPRW_EL1, isDev)
	}

	l2Template0 = l2_0
	l2Template1 = l2_1
	identityL1PA = l1LowPA

	CleanInvalidateAll()
	sctlrEnabled = true
	return 0
}

// identityL1PA is the physical address of the boot-time identity L1
// table (l1Low above), the table pid 1 keeps using instead of a cloned
// per-process TTBR0 (§4.10: pid 1 runs with user_pa_base ==
// USER_REGION_BASE, physical==virtual, so it has no need for the
// TTBR0CreateWithUserPA clone every later process gets).
var identityL1PA mem.Pa_t

// IdentityTTBR0 returns the boot-time identity map's L1 physical
// address, the value proc.InitIfNeeded installs as pid 1's TTBR0.
// Zero before MMUInitIdentity has run.
func IdentityTTBR0() mem.Pa_t { return identityL1PA }

// userIdx is the level-2 slot index covering USER_REGION_BASE.
func userIdx() int {
	return int((uint64(defs.USER_REGION_BASE) >> 21) & 0x1FF)
}

// TTBR0CreateWithUserPA allocates a fresh L1/L2/L2 table triple, clones
// the boot-time templates, and overrides the slot covering
// USER_REGION_BASE to map userPABase EL0-RW, returning the new L1's
// physical address or 0 on misalignment or OOM (§4.2).
func TTBR0CreateWithUserPA(userPABase mem.Pa_t) mem.Pa_t {
	if l2Template0 == nil {
		return 0
	}
	if uint64(userPABase)&(blockSize-1) != 0 {
		return 0
	}

	l1PA, l1 := allocTablePage()
	l2_0PA, l2_0 := allocTablePage()
	l2_1PA, l2_1 := allocTablePage()
	if l1 == nil || l2_0 == nil || l2_1 == nil {
		return 0
	}

	copy(l2_0, l2Template0)
	if l2Template1 != nil {
		copy(l2_1, l2Template1)
	}

	l2_0[userIdx()] = makeBlockDesc(Pa(userPABase), attrNormal, pteAPRW_EL0, false)

	l1[0] = makeTableDesc(l2_0PA)
	l1[1] = makeTableDesc(l2_1PA)
	return l1PA
}

// TTBR0Write installs pa as the running TTBR0 and invalidates the TLB;
// on this hosted port that reduces to recording which table is
// "current" for diagnostics, since no real translation hardware exists
// to reprogram.
func TTBR0Write(pa mem.Pa_t) {
	currentTTBR0 = pa
	tlbInvalidateAll()
}

var currentTTBR0 mem.Pa_t

// CurrentTTBR0 returns the table most recently installed by TTBR0Write.
func CurrentTTBR0() mem.Pa_t { return currentTTBR0 }
