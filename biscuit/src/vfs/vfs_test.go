package vfs

import "testing"

import "defs"

func buildTestArchive(records [][2]string) []byte {
	var buf []byte
	put := func(name string, data []byte, mode uint32) {
		namez := name + "\x00"
		hdr := make([]byte, headerSizeForTest)
		copy(hdr, "070701")
		for i := 6; i < headerSizeForTest; i++ {
			hdr[i] = '0'
		}
		putHex := func(off int, v uint32) {
			const digits = "0123456789abcdef"
			for i := 7; i >= 0; i-- {
				hdr[off+i] = digits[v&0xf]
				v >>= 4
			}
		}
		putHex(14, mode)
		putHex(54, uint32(len(data)))
		putHex(94, uint32(len(namez)))
		buf = append(buf, hdr...)
		buf = append(buf, namez...)
		for len(buf)%4 != 0 {
			buf = append(buf, 0)
		}
		buf = append(buf, data...)
		for len(buf)%4 != 0 {
			buf = append(buf, 0)
		}
	}
	for _, r := range records {
		put(r[0], []byte(r[1]), 0100644)
	}
	put("TRAILER!!!", nil, 0)
	return buf
}

const headerSizeForTest = 110

func TestLookupAbsRoot(t *testing.T) {
	Init(nil)
	mode, _, err := LookupAbs("/")
	if err != 0 || mode&defs.S_IFMT != defs.S_IFDIR {
		t.Fatalf("root lookup failed: mode=%o err=%d", mode, err)
	}
}

func TestLookupAbsInitramfsEntry(t *testing.T) {
	arc := buildTestArchive([][2]string{{"etc/motd", "hello"}})
	Init(arc)
	mode, size, err := LookupAbs("/etc/motd")
	if err != 0 {
		t.Fatalf("lookup failed: %d", err)
	}
	if size != 5 || mode&defs.S_IFMT != defs.S_IFREG {
		t.Fatalf("unexpected: mode=%o size=%d", mode, size)
	}
}

func TestRamdirOverlayAndListDirDedup(t *testing.T) {
	arc := buildTestArchive([][2]string{{"bin/sh", "x"}, {"bin/ls", "y"}})
	Init(arc)
	if err := RamdirCreate("/bin/overlaydir", defs.S_IFDIR|0755); err != 0 {
		t.Fatalf("ramdir create failed: %d", err)
	}
	if err := RamfileCreate("/bin/sh", defs.S_IFREG|0755); err != 0 {
		t.Fatalf("overlay shadow create failed: %d", err)
	}
	ents, err := ListDir("/bin")
	if err != 0 {
		t.Fatalf("list dir failed: %d", err)
	}
	names := map[string]bool{}
	for _, e := range ents {
		names[e.Name] = true
	}
	for _, want := range []string{"sh", "ls", "overlaydir"} {
		if !names[want] {
			t.Fatalf("missing %q in %v", want, ents)
		}
	}
	if len(ents) != 3 {
		t.Fatalf("expected 3 deduplicated entries, got %v", ents)
	}
}

func TestRamfileCreateWriteReadGrow(t *testing.T) {
	Init(nil)
	if err := RamdirCreate("/tmp", defs.S_IFDIR|0755); err != 0 {
		t.Fatalf("mkdir /tmp: %d", err)
	}
	if err := RamfileCreate("/tmp/f", defs.S_IFREG|0644); err != 0 {
		t.Fatalf("create: %d", err)
	}
	fd, err := Open("/tmp/f")
	if err != 0 {
		t.Fatalf("open: %d", err)
	}
	rf := fd.(*RamfileFd_t)
	var fb fakeUio
	fb.data = []byte("hello world")
	n, werr := rf.Write(&fb)
	if werr != 0 || n != 11 {
		t.Fatalf("write: n=%d err=%d", n, werr)
	}
	rf2, _ := Open("/tmp/f")
	rfr := rf2.(*RamfileFd_t)
	var rb fakeUio
	rb.cap = 100
	n, rerr := rfr.Read(&rb)
	if rerr != 0 || string(rb.written) != "hello world" || n != 11 {
		t.Fatalf("read back mismatch: %q n=%d err=%d", rb.written, n, rerr)
	}
}

func TestRamdirRemoveRequiresEmpty(t *testing.T) {
	Init(nil)
	RamdirCreate("/a", defs.S_IFDIR|0755)
	RamfileCreate("/a/f", defs.S_IFREG|0644)
	if err := RamdirRemove("/a"); err != -defs.ENOTEMPTY {
		t.Fatalf("expected ENOTEMPTY, got %d", err)
	}
}

// fakeUio is a minimal fdops.Userio_i for tests, avoiding a dependency
// on the vm package (which would create an import cycle risk here).
type fakeUio struct {
	data    []byte // source for reads-from-user (Uioread)
	written []byte // sink for writes-to-user (Uiowrite)
	cap     int
}

func (f *fakeUio) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, f.data)
	f.data = f.data[n:]
	return n, 0
}
func (f *fakeUio) Uiowrite(src []uint8) (int, defs.Err_t) {
	f.written = append(f.written, src...)
	return len(src), 0
}
func (f *fakeUio) Remain() int {
	if f.data != nil {
		return len(f.data)
	}
	return f.cap - len(f.written)
}
func (f *fakeUio) Totalsz() int { return f.cap }
