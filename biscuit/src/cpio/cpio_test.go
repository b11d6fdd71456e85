package cpio

import "testing"

// buildArchive assembles a minimal newc archive with the given
// (name, mode, data) records plus the mandatory trailer.
func buildArchive(t *testing.T, records [][3]any) []byte {
	t.Helper()
	var buf []byte
	put := func(name string, mode uint32, data []byte) {
		namez := name + "\x00"
		hdr := make([]byte, headerSize)
		copy(hdr, magic)
		for i := 6; i < headerSize; i++ {
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
		for pad4(headerSize+len(namez)) > 0 && len(buf)%4 != 0 {
			buf = append(buf, 0)
		}
		buf = append(buf, data...)
		for len(buf)%4 != 0 {
			buf = append(buf, 0)
		}
	}
	for _, r := range records {
		put(r[0].(string), r[1].(uint32), r[2].([]byte))
	}
	put("TRAILER!!!", 0, nil)
	return buf
}

func TestFindLocatesEntry(t *testing.T) {
	arc := buildArchive(t, [][3]any{
		{"bin/true", uint32(0100755), []byte("xx")},
		{"bin/false", uint32(0100755), []byte("yyy")},
	})
	e, err := Find(arc, "bin/false")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if string(e.Data) != "yyy" || e.Mode != 0100755 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestFindMissingReturnsErr(t *testing.T) {
	arc := buildArchive(t, [][3]any{{"bin/true", uint32(0100755), []byte("x")}})
	if _, err := Find(arc, "bin/nope"); err == nil {
		t.Fatalf("expected error for missing entry")
	}
}

func TestForEachVisitsAllButTrailer(t *testing.T) {
	arc := buildArchive(t, [][3]any{
		{"a", uint32(0100644), []byte("1")},
		{"b", uint32(0100644), []byte("22")},
	})
	var names []string
	err := ForEach(arc, func(e Entry) error {
		names = append(names, e.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("foreach failed: %v", err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestCorruptMagicIsRejected(t *testing.T) {
	arc := buildArchive(t, [][3]any{{"a", uint32(0100644), []byte("1")}})
	arc[0] = 'X'
	if _, err := Find(arc, "a"); err != ErrCorrupt {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}
