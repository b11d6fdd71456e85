// Command kernel boots the AArch64 port: it brings up the simulated RAM
// and PMM, builds the identity MMU tables, installs pid 1 by loading
// /init out of the initramfs CPIO blob, and wires the syscall
// dispatcher every subsequent trap would call (§4.10 "proc_init_if_needed",
// §4.16).
//
// This port hosts the whole kernel as an ordinary Go program (see
// vm/mmu.go, vm/cache.go, uart.go for the same posture elsewhere in the
// tree): there is no real exception vector table and no real AArch64
// core decoding and retiring /init's instructions one at a time. What
// this command can and does do faithfully is everything up to that
// point — RAM/PMM/MMU bring-up, ELF loading, process-table and
// file-description bootstrap, initial user-stack/auxv construction —
// and it exposes Dispatch (dispatch.go) as the fully-implemented,
// directly-testable unit a real synchronous-exception handler would
// call once per svc trap. See DESIGN.md for the boundary this draws.
package main

import "flag"
import "fmt"
import "log"
import "os"

import "cpio"
import "defs"
import "dtb"
import "elf"
import "fd"
import "mem"
import "proc"
import "uart"
import "vm"

// defaultRAMBase/defaultRAMSize describe the simulated RAM window used
// when no DTB blob is supplied: 64 MiB starting at physical 0, large
// enough to hold the reserved kernel/user windows Phys_init carves out
// plus a working PMM pool.
const (
	defaultRAMBase = 0
	defaultRAMSize = 64 << 20
)

func main() {
	initramfsPath := flag.String("initramfs", "", "path to a CPIO-newc initramfs image")
	dtbPath := flag.String("dtb", "", "path to a flattened device tree blob (optional)")
	flag.Parse()

	archive := loadInitramfs(*initramfsPath)
	ramBase, ramSize := ramGeometry(*dtbPath)

	mem.RamInit(mem.Pa_t(ramBase), int(ramSize)/mem.PGSIZE)
	mem.Phys_init(0, 0, 0)
	if err := vm.MMUInitIdentity(mem.Pa_t(ramBase), ramSize); err != 0 {
		log.Fatalf("kernel: MMUInitIdentity failed: %d", err)
	}

	uart.Init()
	installUartFdops()

	entry, argv, err := loadInitProgram(archive)
	if err != 0 {
		log.Fatalf("kernel: failed to load /init: %d", err)
	}

	dstPhys := mem.RamBytes(mem.USER_REGION_BASE_PA(), defs.USER_REGION_SIZE)
	sp, err := stackLayout(physWriter{dst: dstPhys}, defs.USER_REGION_BASE+defs.USER_REGION_SIZE-defs.STACK_GUARD,
		argv, nil, argv[0], entry)
	if err != 0 {
		log.Fatalf("kernel: failed to build initial user stack: %d", err)
	}

	var tf proc.TrapFrame_t
	tf.X[0] = uint64(len(argv))
	tf.SpEl0 = uint64(sp)

	vm.CleanInvalidateAll()
	vm.IcacheSyncRange(0, uintptr(defs.USER_REGION_SIZE))

	proc.InitIfNeeded(entry, &tf, archive, vm.IdentityTTBR0(), defs.USER_REGION_BASE)

	fmt.Printf("kernel: pid 1 ready at entry=0x%x sp=0x%x argv=%v\n", entry, sp, argv)
	fmt.Println("kernel: no trap source is wired in this hosted harness; see DESIGN.md. " +
		"Use Dispatch directly to exercise the syscall surface.")
}

// installUartFdops registers the shared console file description
// proc.InitIfNeeded installs at fds 0/1/2, so pid 1's stdin/stdout/
// stderr reach the real PL011-backed console instead of proc's
// discard-everything fallback (proc.nullFdops).
func installUartFdops() {
	proc.SetUartFdops(func() *fd.Fd_t {
		return &fd.Fd_t{Fops: uart.Fd_t{}, Perms: fd.FD_READ | fd.FD_WRITE}
	})
}

// loadInitramfs reads path into memory, or returns nil (an empty
// filesystem under the root directory, per proc.InitIfNeeded's doc) if
// path is empty.
func loadInitramfs(path string) []byte {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("kernel: reading initramfs %q: %v", path, err)
	}
	return b
}

// ramGeometry consults a DTB blob for /memory's reg property if one was
// supplied, otherwise falls back to the default simulated window
// (dtb.ReadInfo, §6 "External interfaces").
func ramGeometry(path string) (base uint64, size uint64) {
	if path == "" {
		return defaultRAMBase, defaultRAMSize
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("kernel: reading dtb %q: %v", path, err)
	}
	info, derr := dtb.ReadInfo(blob)
	if derr != nil || !info.HasMem {
		fmt.Printf("kernel: dtb present but no usable /memory node, using defaults\n")
		return defaultRAMBase, defaultRAMSize
	}
	return info.MemBase, info.MemSize
}

// loadInitProgram reads "/init" straight out of the CPIO archive (the
// VFS overlay isn't up yet — proc.InitIfNeeded is what calls vfs.Init)
// and loads it into the identity-mapped user physical region.
func loadInitProgram(archive []byte) (entry uint64, argv []string, err defs.Err_t) {
	if len(archive) == 0 {
		return 0, nil, -defs.ENOENT
	}
	e, cerr := cpio.Find(archive, "init")
	if cerr != nil {
		return 0, nil, -defs.ENOENT
	}
	dstPhys := mem.RamBytes(mem.USER_REGION_BASE_PA(), defs.USER_REGION_SIZE)
	res, lerr := elf.LoadETExec(e.Data, defs.USER_REGION_BASE, defs.USER_REGION_SIZE, dstPhys)
	if lerr != 0 {
		return 0, nil, lerr
	}
	return res.Entry, []string{"/init"}, 0
}
