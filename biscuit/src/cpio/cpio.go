// Package cpio reads the "newc" CPIO archive format this kernel's
// initramfs blob is packaged in (§4.4), grounded on
// _examples/original_source/kernel-aarch64/cpio_newc.c: a 110-byte
// ASCII-hex header, a NUL-terminated name, 4-byte-aligned padding
// around both the name and the data, terminated by an entry named
// "TRAILER!!!".
package cpio

import "errors"

const headerSize = 110
const magic = "070701"

// ErrCorrupt is returned for any malformed header, truncated field, or
// an archive that runs out of bytes before a name/data region it
// claims to have.
var ErrCorrupt = errors.New("cpio: corrupt archive")

// Entry is one decoded CPIO record: name (with leading slashes already
// meaningful — this format stores paths without a leading "/", the
// kernel's initramfs layer re-adds it), the mode word (includes the
// S_IFMT file-type bits), and a view into the archive's data bytes (no
// copy).
type Entry struct {
	Name string
	Mode uint32
	Data []byte
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexDigit(c byte) uint32 {
	switch {
	case c >= '0' && c <= '9':
		return uint32(c - '0')
	case c >= 'a' && c <= 'f':
		return uint32(10 + c - 'a')
	default:
		return uint32(10 + c - 'A')
	}
}

func hex8(p []byte) uint32 {
	var v uint32
	for i := 0; i < 8; i++ {
		v = v<<4 | hexDigit(p[i])
	}
	return v
}

func pad4(n int) int { return (4 - (n & 3)) & 3 }

// parseOne decodes the entry starting at archive[off] and returns it
// along with the offset of the next entry.
func parseOne(archive []byte, off int) (Entry, int, error) {
	if len(archive)-off < headerSize {
		return Entry{}, 0, ErrCorrupt
	}
	h := archive[off : off+headerSize]
	if string(h[0:6]) != magic {
		return Entry{}, 0, ErrCorrupt
	}
	for i := 6; i < headerSize; i++ {
		if !isHex(h[i]) {
			return Entry{}, 0, ErrCorrupt
		}
	}

	mode := hex8(h[14:22])
	filesize := int(hex8(h[54:62]))
	namesize := int(hex8(h[94:102]))

	p := off + headerSize
	if len(archive)-p < namesize || namesize == 0 {
		return Entry{}, 0, ErrCorrupt
	}
	nameBytes := archive[p : p+namesize]
	if nameBytes[namesize-1] != 0 {
		return Entry{}, 0, ErrCorrupt
	}
	name := string(nameBytes[:namesize-1])

	p += namesize
	p += pad4(headerSize + namesize)

	if len(archive)-p < filesize {
		return Entry{}, 0, ErrCorrupt
	}
	data := archive[p : p+filesize]
	p += filesize
	p += pad4(filesize)

	return Entry{Name: name, Mode: mode, Data: data}, p, nil
}

// Find scans archive for an entry whose name equals name exactly,
// stopping at the TRAILER!!! sentinel.
func Find(archive []byte, name string) (Entry, error) {
	off := 0
	for {
		e, next, err := parseOne(archive, off)
		if err != nil {
			return Entry{}, err
		}
		if e.Name == "TRAILER!!!" {
			return Entry{}, ErrCorrupt
		}
		if e.Name == name {
			return e, nil
		}
		if next >= len(archive) {
			return Entry{}, ErrCorrupt
		}
		off = next
	}
}

// ForEach streams every entry in archive order to cb, stopping at
// TRAILER!!! (success) or the first cb error (propagated to the
// caller) or a decode failure (ErrCorrupt).
func ForEach(archive []byte, cb func(Entry) error) error {
	off := 0
	for {
		e, next, err := parseOne(archive, off)
		if err != nil {
			return err
		}
		if e.Name == "TRAILER!!!" {
			return nil
		}
		if err := cb(e); err != nil {
			return err
		}
		if next >= len(archive) {
			return ErrCorrupt
		}
		off = next
	}
}
