// Package stat implements the Linux AArch64 `struct stat` layout used by
// newfstatat (§6 "ABI constants"), glibc-compatible: 3 uint64 fields, a
// packed mode/uid/gid/pad block, rdev/size/blksize/blocks, three
// timespec pairs, and reserved padding.
package stat

import "unsafe"

/// Stat_t mirrors the on-the-wire Linux AArch64 stat64 structure
/// byte-for-byte so Bytes() can be copied straight to user memory.
type Stat_t struct {
	dev    uint64
	ino    uint64
	nlink  uint64
	mode   uint32
	uid    uint32
	gid    uint32
	pad0   uint32
	rdev   uint64
	size   int64
	blksize int64
	blocks  int64
	atimeSec  int64
	atimeNsec int64
	mtimeSec  int64
	mtimeNsec int64
	ctimeSec  int64
	ctimeNsec int64
	reserved [3]int64
}

/// Wdev stores the device ID.
func (st *Stat_t) Wdev(v uint) { st.dev = uint64(v) }

/// Wino stores the inode number.
func (st *Stat_t) Wino(v uint) { st.ino = uint64(v) }

/// Wnlink stores the link count.
func (st *Stat_t) Wnlink(v uint) { st.nlink = uint64(v) }

/// Wmode records the file mode (S_IFREG|perm, etc); major/minor are
/// folded into Wrdev for device nodes, not Wmode, matching the ABI.
func (st *Stat_t) Wmode(mode, major, minor uint) {
	st.mode = uint32(mode)
	if major != 0 || minor != 0 {
		st.Wrdev(major, minor)
	}
}

/// Wsize records the file size.
func (st *Stat_t) Wsize(sz uint) {
	st.size = int64(sz)
	st.blocks = (st.size + 511) / 512
	st.blksize = 4096
}

/// Wrdev stores the rdev field, encoding major/minor as glibc does:
/// (major << 8) | minor, for the low bits, with room for a wider
/// encoding above that this kernel never populates.
func (st *Stat_t) Wrdev(maj, min uint) {
	st.rdev = uint64(maj)<<8 | uint64(min&0xff)
}

/// Mode returns the stored mode value.
func (st *Stat_t) Mode() uint { return uint(st.mode) }

/// Size returns the stored size.
func (st *Stat_t) Size() uint { return uint(st.size) }

/// Rdev returns the stored rdev.
func (st *Stat_t) Rdev() uint { return uint(st.rdev) }

/// Rino returns the stored inode number.
func (st *Stat_t) Rino() uint { return uint(st.ino) }

/// Bytes exposes the raw little-endian bytes of the structure in ABI
/// order, ready to copy into a user-supplied stat buffer.
func (st *Stat_t) Bytes() []uint8 {
	const sz = unsafe.Sizeof(*st)
	sl := (*[sz]uint8)(unsafe.Pointer(&st.dev))
	return sl[:]
}

/// Size_bytes is the wire size of Stat_t; newfstatat validates the user
/// buffer against it before writing.
const Size_bytes = int(unsafe.Sizeof(Stat_t{}))
