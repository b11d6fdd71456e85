package elf

import "encoding/binary"
import "testing"

import "defs"

// buildImage assembles a minimal ET_EXEC AArch64 ELF64 image with one
// PT_LOAD segment. When corruptEntry is set, the entry point is moved
// past a leading NOP to four bytes of an unallocated encoding, so the
// entry-point sanity decode fails; otherwise entry is the NOP itself.
func buildImage(vaBase uint64, bssLen int, corruptEntry bool) []byte {
	code := []byte{0x1f, 0x20, 0x03, 0xd5, 0xff, 0xff, 0xff, 0xff}
	codeLen := len(code)
	filesz := uint64(codeLen)
	memsz := uint64(codeLen + bssLen)

	phOff := ehdrSize
	codeOff := phOff + phdrSize

	buf := make([]byte, codeOff+codeLen)
	buf[0], buf[1], buf[2], buf[3] = magic0, magic1, magic2, magic3
	buf[4] = classELF64
	buf[5] = dataLSB
	binary.LittleEndian.PutUint16(buf[16:18], etExec)
	binary.LittleEndian.PutUint16(buf[18:20], emAArch64)
	entry := vaBase
	if corruptEntry {
		entry = vaBase + 4
	}
	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], uint64(phOff))
	binary.LittleEndian.PutUint16(buf[54:56], phdrSize)
	binary.LittleEndian.PutUint16(buf[56:58], 1)

	ph := buf[phOff : phOff+phdrSize]
	binary.LittleEndian.PutUint32(ph[0:4], ptLoad)
	binary.LittleEndian.PutUint64(ph[8:16], uint64(codeOff))
	binary.LittleEndian.PutUint64(ph[16:24], vaBase)
	binary.LittleEndian.PutUint64(ph[32:40], filesz)
	binary.LittleEndian.PutUint64(ph[40:48], memsz)

	copy(buf[codeOff:], code)
	return buf
}

func TestLoadETExecValidImage(t *testing.T) {
	const vaBase = 0x1000
	img := buildImage(vaBase, 0x1000, false)
	dst := make([]byte, 0x2000)

	res, err := LoadETExec(img, vaBase, 0x2000, dst)
	if err != 0 {
		t.Fatalf("load failed: %d", err)
	}
	if res.Entry != vaBase {
		t.Fatalf("entry = %#x, want %#x", res.Entry, vaBase)
	}
	if res.MinVA != vaBase || res.MaxVA != vaBase+8+0x1000 {
		t.Fatalf("unexpected VA range [%#x, %#x)", res.MinVA, res.MaxVA)
	}
	if dst[0] != 0x1f || dst[1] != 0x20 {
		t.Fatalf("code not copied")
	}
	if dst[8] != 0 {
		t.Fatalf("bss not zeroed")
	}
}

func TestLoadETExecRejectsBadMagic(t *testing.T) {
	img := buildImage(0x1000, 0, false)
	img[0] = 0
	_, err := LoadETExec(img, 0x1000, 0x2000, make([]byte, 0x2000))
	if err != ErrBadImage {
		t.Fatalf("expected ErrBadImage, got %d", err)
	}
}

func TestLoadETExecRejectsVARangeOutsideWindow(t *testing.T) {
	img := buildImage(0x1000, 0x1000, false)
	_, err := LoadETExec(img, 0x1000, 0x800, make([]byte, 0x800))
	if err != ErrBadImage {
		t.Fatalf("expected ErrBadImage for out-of-window segment, got %d", err)
	}
}

func TestLoadETExecRejectsMemszLessThanFilesz(t *testing.T) {
	img := buildImage(0x1000, 0, false)
	ph := img[ehdrSize : ehdrSize+phdrSize]
	binary.LittleEndian.PutUint64(ph[40:48], 2)
	_, err := LoadETExec(img, 0x1000, 0x2000, make([]byte, 0x2000))
	if err != ErrBadImage {
		t.Fatalf("expected ErrBadImage, got %d", err)
	}
}

func TestLoadETExecRejectsUndecodableEntry(t *testing.T) {
	img := buildImage(0x1000, 0x1000, true)
	_, err := LoadETExec(img, 0x1000, 0x2000, make([]byte, 0x2000))
	if err != ErrBadImage {
		t.Fatalf("expected ErrBadImage for undecodable entry, got %d", err)
	}
}

func TestErrBadImageIsENOEXEC(t *testing.T) {
	if ErrBadImage != -defs.ENOEXEC {
		t.Fatalf("ErrBadImage should be -ENOEXEC")
	}
}
