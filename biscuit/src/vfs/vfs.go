// Package vfs implements the overlay-over-initramfs namespace (§4.8):
// a read-only CPIO-newc initramfs blob underneath a small in-memory
// overlay of directories and growable "ramfiles", grounded on
// _examples/original_source/kernel-aarch64/vfs.c and initramfs.c.
// Lookup checks the overlay first, then falls through to initramfs;
// listing unions both, de-duplicating by name.
package vfs

import "sort"
import "strings"
import "sync"

import "cpio"
import "defs"
import "fdops"

const rootMode = defs.S_IFDIR | 0755

var mu sync.Mutex

var archive []byte

type dirSlot struct {
	used bool
	mode uint32
	path string // normalized, no leading or trailing slash ("" reserved, root is implicit)
}

var ramdirs [defs.MAX_RAMDIRS]dirSlot

type ramfileSlot struct {
	used bool
	mode uint32
	path string
	data []byte
}

var ramfiles [defs.MAX_RAMFILES]ramfileSlot

// Init installs the initramfs CPIO blob and clears the overlay, used by
// proc_init_if_needed (§4.10) on first boot.
func Init(cpioArchive []byte) {
	mu.Lock()
	defer mu.Unlock()
	archive = cpioArchive
	for i := range ramdirs {
		ramdirs[i] = dirSlot{}
	}
	for i := range ramfiles {
		ramfiles[i] = ramfileSlot{}
	}
}

func stripSlashes(p string) string { return strings.TrimLeft(p, "/") }

func ramdirFind(noSlash string) int {
	for i := range ramdirs {
		if ramdirs[i].used && ramdirs[i].path == noSlash {
			return i
		}
	}
	return -1
}

func ramdirAlloc() int {
	for i := range ramdirs {
		if !ramdirs[i].used {
			return i
		}
	}
	return -1
}

func ramfileFind(noSlash string) int {
	for i := range ramfiles {
		if ramfiles[i].used && ramfiles[i].path == noSlash {
			return i
		}
	}
	return -1
}

func ramfileAlloc() int {
	for i := range ramfiles {
		if !ramfiles[i].used {
			return i
		}
	}
	return -1
}

func initramfsLookup(noSlash string) (data []byte, mode uint32, size int, ok bool) {
	if len(archive) == 0 {
		return nil, 0, 0, false
	}
	if noSlash == "" {
		return nil, rootMode, 0, true
	}
	e, err := cpio.Find(archive, noSlash)
	if err != nil {
		// A name that only appears as a prefix of other entries ("bin"
		// for "bin/sh") is a directory the archive implies.
		implied := false
		cpio.ForEach(archive, func(ce cpio.Entry) error {
			if strings.HasPrefix(ce.Name, noSlash+"/") {
				implied = true
			}
			return nil
		})
		if implied {
			return nil, rootMode, 0, true
		}
		return nil, 0, 0, false
	}
	return e.Data, e.Mode, len(e.Data), true
}

// LookupAbs resolves an absolute, already-normalized path (§4.9) to its
// mode and size. It never returns file data directly; Open does that
// for the kind actually found (§4.8 "lookup_abs").
func LookupAbs(absPath string) (mode uint32, size int, err defs.Err_t) {
	mu.Lock()
	defer mu.Unlock()
	if absPath == "/" {
		return rootMode, 0, 0
	}
	noSlash := stripSlashes(absPath)
	if noSlash == "" {
		return rootMode, 0, 0
	}
	if idx := ramdirFind(noSlash); idx >= 0 {
		return ramdirs[idx].mode, 0, 0
	}
	if idx := ramfileFind(noSlash); idx >= 0 {
		return ramfiles[idx].mode, len(ramfiles[idx].data), 0
	}
	if _, mode, size, ok := initramfsLookup(noSlash); ok {
		return mode, size, 0
	}
	return 0, 0, -defs.ENOENT
}

// DirEnt is one immediate child returned by ListDir.
type DirEnt struct {
	Name string
	Mode uint32
}

// ListDir enumerates the immediate children of dirPath (absolute),
// unioning initramfs and overlay entries; overlay entries take
// precedence on name collision since they supply the most current mode
// (§4.8 "list_dir"). Returns ENOTDIR if dirPath does not resolve to a
// directory, ENOENT if it does not resolve at all.
func ListDir(dirPath string) ([]DirEnt, defs.Err_t) {
	mu.Lock()
	defer mu.Unlock()

	mode, _, err := lookupAbsLocked(dirPath)
	if err != 0 {
		return nil, err
	}
	if mode&defs.S_IFMT != defs.S_IFDIR {
		return nil, -defs.ENOTDIR
	}

	prefix := stripSlashes(dirPath)
	seen := map[string]DirEnt{}
	order := []string{}
	add := func(name string, m uint32) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; !ok {
			order = append(order, name)
		}
		seen[name] = DirEnt{Name: name, Mode: m}
	}

	if len(archive) > 0 {
		cpio.ForEach(archive, func(e cpio.Entry) error {
			name := e.Name
			if prefix != "" {
				if !strings.HasPrefix(name, prefix+"/") {
					return nil
				}
				name = name[len(prefix)+1:]
			}
			if name == "" {
				return nil
			}
			childIsDir := false
			if idx := strings.IndexByte(name, '/'); idx >= 0 {
				name = name[:idx]
				childIsDir = true
			}
			m := e.Mode
			if childIsDir {
				m = rootMode
			}
			add(name, m)
			return nil
		})
	}

	for i := range ramdirs {
		if !ramdirs[i].used {
			continue
		}
		child := childUnder(prefix, ramdirs[i].path)
		if child != "" {
			add(child, ramdirs[i].mode)
		}
	}
	for i := range ramfiles {
		if !ramfiles[i].used {
			continue
		}
		child := childUnder(prefix, ramfiles[i].path)
		if child != "" {
			add(child, ramfiles[i].mode)
		}
	}

	out := make([]DirEnt, 0, len(order))
	for _, n := range order {
		out = append(out, seen[n])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, 0
}

// childUnder returns the first path component of full below prefix, or
// "" if full is not strictly under prefix.
func childUnder(prefix, full string) string {
	rest := full
	if prefix != "" {
		if !strings.HasPrefix(full, prefix+"/") {
			return ""
		}
		rest = full[len(prefix)+1:]
	}
	if rest == "" {
		return ""
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

func lookupAbsLocked(absPath string) (mode uint32, size int, err defs.Err_t) {
	if absPath == "/" {
		return rootMode, 0, 0
	}
	noSlash := stripSlashes(absPath)
	if noSlash == "" {
		return rootMode, 0, 0
	}
	if idx := ramdirFind(noSlash); idx >= 0 {
		return ramdirs[idx].mode, 0, 0
	}
	if idx := ramfileFind(noSlash); idx >= 0 {
		return ramfiles[idx].mode, len(ramfiles[idx].data), 0
	}
	if _, mode, size, ok := initramfsLookup(noSlash); ok {
		return mode, size, 0
	}
	return 0, 0, -defs.ENOENT
}

func parentExists(noSlash string) bool {
	idx := strings.LastIndexByte(noSlash, '/')
	if idx < 0 {
		return true // parent is root
	}
	parent := noSlash[:idx]
	if ramdirFind(parent) >= 0 {
		return true
	}
	if _, mode, _, ok := initramfsLookup(parent); ok && mode&defs.S_IFMT == defs.S_IFDIR {
		return true
	}
	return false
}

// RamdirCreate adds an overlay directory at path (absolute), refusing
// duplicates and requiring the parent directory to already resolve
// (§4.8 "ramdir_create").
func RamdirCreate(absPath string, mode uint32) defs.Err_t {
	mu.Lock()
	defer mu.Unlock()
	noSlash := stripSlashes(absPath)
	if noSlash == "" {
		return -defs.ENOENT
	}
	if ramdirFind(noSlash) >= 0 || ramfileFind(noSlash) >= 0 {
		return -defs.EEXIST
	}
	if !parentExists(noSlash) {
		return -defs.ENOENT
	}
	slot := ramdirAlloc()
	if slot < 0 {
		return -defs.ENOMEM
	}
	if len(noSlash)+1 > defs.MAX_PATH {
		return -defs.ENAMETOOLONG
	}
	ramdirs[slot] = dirSlot{used: true, mode: mode, path: noSlash}
	return 0
}

// RamdirRemove deletes an overlay directory, requiring it to be empty
// of both overlay and initramfs children.
func RamdirRemove(absPath string) defs.Err_t {
	mu.Lock()
	defer mu.Unlock()
	noSlash := stripSlashes(absPath)
	idx := ramdirFind(noSlash)
	if idx < 0 {
		return -defs.ENOENT
	}
	for i := range ramdirs {
		if i != idx && ramdirs[i].used && childUnder(noSlash, ramdirs[i].path) != "" {
			return -defs.ENOTEMPTY
		}
	}
	for i := range ramfiles {
		if ramfiles[i].used && childUnder(noSlash, ramfiles[i].path) != "" {
			return -defs.ENOTEMPTY
		}
	}
	if len(archive) > 0 {
		empty := true
		cpio.ForEach(archive, func(e cpio.Entry) error {
			if childUnder(noSlash, e.Name) != "" {
				empty = false
			}
			return nil
		})
		if !empty {
			return -defs.ENOTEMPTY
		}
	}
	ramdirs[idx] = dirSlot{}
	return 0
}

// RamfileCreate allocates a fresh, zero-length ramfile at path, growable
// on write (§4.8 "ramfile_create").
func RamfileCreate(absPath string, mode uint32) defs.Err_t {
	mu.Lock()
	defer mu.Unlock()
	noSlash := stripSlashes(absPath)
	if noSlash == "" {
		return -defs.ENOENT
	}
	if ramdirFind(noSlash) >= 0 || ramfileFind(noSlash) >= 0 {
		return -defs.EEXIST
	}
	if !parentExists(noSlash) {
		return -defs.ENOENT
	}
	slot := ramfileAlloc()
	if slot < 0 {
		return -defs.ENOMEM
	}
	ramfiles[slot] = ramfileSlot{used: true, mode: mode, path: noSlash}
	return 0
}

// RamfileSetSize grows or shrinks a ramfile's backing buffer in place.
func RamfileSetSize(absPath string, n int) defs.Err_t {
	mu.Lock()
	defer mu.Unlock()
	idx := ramfileFind(stripSlashes(absPath))
	if idx < 0 {
		return -defs.ENOENT
	}
	cur := ramfiles[idx].data
	if n <= len(cur) {
		ramfiles[idx].data = cur[:n]
		return 0
	}
	grown := make([]byte, n)
	copy(grown, cur)
	ramfiles[idx].data = grown
	return 0
}

// RamfileLink creates a second path referencing the same ramfile
// storage as src (§4.8 "ramfile_link"): both paths' data slices alias
// the same backing array, so writes through either are visible via the
// other up to the shared length.
func RamfileLink(src, dst string) defs.Err_t {
	mu.Lock()
	defer mu.Unlock()
	srcIdx := ramfileFind(stripSlashes(src))
	if srcIdx < 0 {
		return -defs.ENOENT
	}
	dstNoSlash := stripSlashes(dst)
	if ramdirFind(dstNoSlash) >= 0 || ramfileFind(dstNoSlash) >= 0 {
		return -defs.EEXIST
	}
	if !parentExists(dstNoSlash) {
		return -defs.ENOENT
	}
	slot := ramfileAlloc()
	if slot < 0 {
		return -defs.ENOMEM
	}
	ramfiles[slot] = ramfileSlot{used: true, mode: ramfiles[srcIdx].mode, path: dstNoSlash, data: ramfiles[srcIdx].data}
	return 0
}

// RamfileRemove deletes an overlay ramfile (§4.18 "unlinkat"), mirroring
// vfs_ramfile_unlink: ENOENT if absPath does not name a ramfile at all,
// leaving initramfs-backed entries (read-only) and overlay directories
// to be rejected by the caller with their own distinct errno.
func RamfileRemove(absPath string) defs.Err_t {
	mu.Lock()
	defer mu.Unlock()
	idx := ramfileFind(stripSlashes(absPath))
	if idx < 0 {
		return -defs.ENOENT
	}
	ramfiles[idx] = ramfileSlot{}
	return 0
}

func ramfileData(noSlash string) ([]byte, bool) {
	if idx := ramfileFind(noSlash); idx >= 0 {
		return ramfiles[idx].data, true
	}
	return nil, false
}

func ramfileWrite(noSlash string, off int, b []byte) (int, defs.Err_t) {
	idx := ramfileFind(noSlash)
	if idx < 0 {
		return 0, -defs.ENOENT
	}
	end := off + len(b)
	if end > len(ramfiles[idx].data) {
		return 0, -defs.EINVAL
	}
	n := copy(ramfiles[idx].data[off:end], b)
	return n, 0
}

// IsInitramfsOnlyDir reports whether absPath names a directory backed
// solely by the read-only initramfs, with no overlay ramdir shadowing
// it — the case openat(..., O_CREAT) refuses a new file inside (§9
// Open Question: "openat O_CREAT inside an initramfs directory",
// decided against allowing it, preserving the reference C behavior).
// The root directory is always overlay-writable even though it has no
// explicit ramdirs slot.
func IsInitramfsOnlyDir(absPath string) bool {
	mu.Lock()
	defer mu.Unlock()
	noSlash := stripSlashes(absPath)
	if noSlash == "" {
		return false
	}
	if ramdirFind(noSlash) >= 0 {
		return false
	}
	_, mode, _, ok := initramfsLookup(noSlash)
	return ok && mode&defs.S_IFMT == defs.S_IFDIR
}

// Open resolves absPath and returns the fdops.Fdops_i wrapper for
// whichever kind backs it: a directory (listable, not readable/writable
// as bytes), a ramfile (read/write/grow), or an initramfs entry
// (read-only). §4.8/§4.18.
func Open(absPath string) (fdops.Fdops_i, defs.Err_t) {
	mode, _, err := LookupAbs(absPath)
	if err != 0 {
		return nil, err
	}
	noSlash := stripSlashes(absPath)
	if mode&defs.S_IFMT == defs.S_IFDIR {
		return &DirFd_t{path: noSlash}, 0
	}
	if _, ok := ramfileData(noSlash); ok {
		return &RamfileFd_t{path: noSlash}, 0
	}
	return &InitramfsFd_t{path: noSlash}, 0
}

func modeToStat(st fdops.Stat_i, mode uint32, size int) {
	major, minor := uint(0), uint(0)
	st.Wmode(uint(mode), major, minor)
	st.Wsize(uint(size))
}

// InitramfsFd_t is a read-only file description backed by one CPIO
// entry in the boot initramfs (§3 "INITRAMFS").
type InitramfsFd_t struct {
	path string
	off  int
}

func (f *InitramfsFd_t) Close() defs.Err_t  { return 0 }
func (f *InitramfsFd_t) Reopen() defs.Err_t { return 0 }
func (f *InitramfsFd_t) Pathi() (string, defs.Err_t) { return "/" + f.path, 0 }
func (f *InitramfsFd_t) Truncate(newlen uint) defs.Err_t { return -defs.EROFS }
func (f *InitramfsFd_t) Getdents(dst fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.ENOTDIR }
func (f *InitramfsFd_t) Write(src fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.EROFS }

func (f *InitramfsFd_t) Fstat(st fdops.Stat_i) defs.Err_t {
	mu.Lock()
	_, mode, size, ok := initramfsLookup(f.path)
	mu.Unlock()
	if !ok {
		return -defs.ENOENT
	}
	modeToStat(st, mode, size)
	return 0
}

func (f *InitramfsFd_t) Lseek(offset int, whence int) (int, defs.Err_t) {
	mu.Lock()
	_, _, size, ok := initramfsLookup(f.path)
	mu.Unlock()
	if !ok {
		return 0, -defs.ENOENT
	}
	n, err := seekTo(f.off, size, offset, whence)
	if err == 0 {
		f.off = n
	}
	return n, err
}

func (f *InitramfsFd_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	mu.Lock()
	data, _, _, ok := initramfsLookup(f.path)
	mu.Unlock()
	if !ok {
		return 0, -defs.ENOENT
	}
	if f.off >= len(data) {
		return 0, 0
	}
	n, err := dst.Uiowrite(data[f.off:])
	f.off += n
	return n, err
}

// RamfileFd_t is a read/write file description backed by an overlay
// ramfile, growable via write past the current length (§4.18).
type RamfileFd_t struct {
	path string
	off  int
}

func (f *RamfileFd_t) Close() defs.Err_t  { return 0 }
func (f *RamfileFd_t) Reopen() defs.Err_t { return 0 }
func (f *RamfileFd_t) Pathi() (string, defs.Err_t) { return "/" + f.path, 0 }
func (f *RamfileFd_t) Getdents(dst fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.ENOTDIR }

func (f *RamfileFd_t) Fstat(st fdops.Stat_i) defs.Err_t {
	mu.Lock()
	idx := ramfileFind(f.path)
	if idx < 0 {
		mu.Unlock()
		return -defs.ENOENT
	}
	mode, size := ramfiles[idx].mode, len(ramfiles[idx].data)
	mu.Unlock()
	modeToStat(st, mode, size)
	return 0
}

func (f *RamfileFd_t) Lseek(offset int, whence int) (int, defs.Err_t) {
	mu.Lock()
	idx := ramfileFind(f.path)
	if idx < 0 {
		mu.Unlock()
		return 0, -defs.ENOENT
	}
	size := len(ramfiles[idx].data)
	mu.Unlock()
	n, err := seekTo(f.off, size, offset, whence)
	if err == 0 {
		f.off = n
	}
	return n, err
}

func (f *RamfileFd_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	mu.Lock()
	data, ok := ramfileData(f.path)
	mu.Unlock()
	if !ok {
		return 0, -defs.ENOENT
	}
	if f.off >= len(data) {
		return 0, 0
	}
	n, err := dst.Uiowrite(data[f.off:])
	f.off += n
	return n, err
}

func (f *RamfileFd_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	buf = buf[:n]

	mu.Lock()
	idx := ramfileFind(f.path)
	if idx < 0 {
		mu.Unlock()
		return 0, -defs.ENOENT
	}
	need := f.off + n
	if need > len(ramfiles[idx].data) {
		grown := make([]byte, need)
		copy(grown, ramfiles[idx].data)
		ramfiles[idx].data = grown
	}
	copy(ramfiles[idx].data[f.off:need], buf)
	mu.Unlock()

	f.off += n
	return n, 0
}

func (f *RamfileFd_t) Truncate(newlen uint) defs.Err_t {
	return RamfileSetSize("/"+f.path, int(newlen))
}

// DirFd_t is a directory file description; it supports Getdents only.
type DirFd_t struct {
	path string
	off  int // number of entries already emitted, for getdents64 resumption
}

func (f *DirFd_t) Close() defs.Err_t  { return 0 }
func (f *DirFd_t) Reopen() defs.Err_t { return 0 }
func (f *DirFd_t) Pathi() (string, defs.Err_t) { return "/" + f.path, 0 }
func (f *DirFd_t) Read(dst fdops.Userio_i) (int, defs.Err_t)   { return 0, -defs.EISDIR }
func (f *DirFd_t) Write(src fdops.Userio_i) (int, defs.Err_t)  { return 0, -defs.EISDIR }
func (f *DirFd_t) Truncate(newlen uint) defs.Err_t             { return -defs.EISDIR }
func (f *DirFd_t) Lseek(offset int, whence int) (int, defs.Err_t) { return 0, -defs.EISDIR }

func (f *DirFd_t) Fstat(st fdops.Stat_i) defs.Err_t {
	mode, _, err := LookupAbs("/" + f.path)
	if err != 0 {
		return err
	}
	modeToStat(st, mode, 0)
	return 0
}

// Getdents renders the directory's remaining entries as Linux dirent64
// records into dst, advancing f.off (a resumable entry cursor, not a
// byte offset) by however many whole records fit (§4.18 "getdents64").
// d_ino is always 1 (this filesystem has no real inode numbers);
// d_off is the 1-based index of the next entry, letting a second call
// resume exactly where the first left off.
func (f *DirFd_t) Getdents(dst fdops.Userio_i) (int, defs.Err_t) {
	ents, err := ListDir("/" + f.path)
	if err != 0 {
		return 0, err
	}
	total := 0
	for f.off < len(ents) {
		e := ents[f.off]
		rec := direntBytes(e, f.off+1)
		if len(rec) > dst.Remain()-total {
			break
		}
		n, werr := dst.Uiowrite(rec)
		if werr != 0 {
			return total, werr
		}
		total += n
		f.off++
	}
	return total, 0
}

func dtypeFor(mode uint32) byte {
	switch mode & defs.S_IFMT {
	case defs.S_IFDIR:
		return 4 // DT_DIR
	case defs.S_IFLNK:
		return 10 // DT_LNK
	case defs.S_IFCHR:
		return 2 // DT_CHR
	case defs.S_IFIFO:
		return 1 // DT_FIFO
	default:
		return 8 // DT_REG
	}
}

func direntBytes(e DirEnt, nextOff int) []byte {
	namez := e.Name + "\x00"
	reclen := (19 + len(namez) + 7) &^ 7 // 8+8+2+1 fixed fields, 8-byte aligned
	buf := make([]byte, reclen)
	putU64 := func(off int, v uint64) {
		for i := 0; i < 8; i++ {
			buf[off+i] = byte(v >> (8 * i))
		}
	}
	putU64(0, 1)                  // d_ino
	putU64(8, uint64(nextOff))     // d_off
	buf[16] = byte(reclen)         // d_reclen (low byte; reclen always small)
	buf[17] = byte(reclen >> 8)
	buf[18] = dtypeFor(e.Mode)     // d_type
	copy(buf[19:], namez)
	return buf
}

func seekTo(cur, size, offset, whence int) (int, defs.Err_t) {
	var base int
	switch whence {
	case defs.SEEK_SET:
		base = 0
	case defs.SEEK_CUR:
		base = cur
	case defs.SEEK_END:
		base = size
	default:
		return 0, -defs.EINVAL
	}
	n := base + offset
	if n < 0 {
		return 0, -defs.EINVAL
	}
	return n, 0
}
