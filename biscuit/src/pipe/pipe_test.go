package pipe

import "testing"

import "defs"
import "mem"

type bufio struct{ b []byte }

func (u *bufio) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, u.b)
	u.b = u.b[n:]
	return n, 0
}
func (u *bufio) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(u.b, src)
	u.b = u.b[n:]
	return n, 0
}
func (u *bufio) Remain() int  { return len(u.b) }
func (u *bufio) Totalsz() int { return len(u.b) }

func setupMem(t *testing.T) {
	t.Helper()
	mem.RamInit(0, 4096)
	mem.Phys_init(0, 0x100000, 0)
}

func TestPipeWriteThenRead(t *testing.T) {
	setupMem(t)
	id, err := Create()
	if err != 0 {
		t.Fatalf("create failed: %d", err)
	}
	OnDescIncref(id, defs.PIPE_READ)
	OnDescIncref(id, defs.PIPE_WRITE)

	w := &bufio{b: []byte("hello")}
	n, err := Write(id, w)
	if err != 0 || n != 5 {
		t.Fatalf("write: n=%d err=%d", n, err)
	}

	out := make([]byte, 5)
	r := &bufio{b: out}
	n, err = Read(id, r)
	if err != 0 || n != 5 {
		t.Fatalf("read: n=%d err=%d", n, err)
	}
	if string(out) != "hello" {
		t.Fatalf("got %q", out)
	}
}

func TestPipeReadEmptyNoWritersIsEOF(t *testing.T) {
	setupMem(t)
	id, _ := Create()
	OnDescIncref(id, defs.PIPE_READ)
	r := &bufio{b: make([]byte, 4)}
	n, err := Read(id, r)
	if err != 0 || n != 0 {
		t.Fatalf("expected EOF (0,0), got n=%d err=%d", n, err)
	}
}

func TestPipeReadEmptyWithWriterIsEAGAIN(t *testing.T) {
	setupMem(t)
	id, _ := Create()
	OnDescIncref(id, defs.PIPE_READ)
	OnDescIncref(id, defs.PIPE_WRITE)
	r := &bufio{b: make([]byte, 4)}
	_, err := Read(id, r)
	if err != -defs.EAGAIN {
		t.Fatalf("expected EAGAIN, got %d", err)
	}
}

func TestPipeWriteNoReadersIsEPIPE(t *testing.T) {
	setupMem(t)
	id, _ := Create()
	OnDescIncref(id, defs.PIPE_WRITE)
	w := &bufio{b: []byte("x")}
	_, err := Write(id, w)
	if err != -defs.EPIPE {
		t.Fatalf("expected EPIPE, got %d", err)
	}
}

func TestFdWrapperClosesOwnEndOnly(t *testing.T) {
	setupMem(t)
	id, _ := Create()
	OnDescIncref(id, defs.PIPE_READ)
	OnDescIncref(id, defs.PIPE_WRITE)

	rend := NewReadEnd(id)
	wend := NewWriteEnd(id)

	if _, err := rend.Write(&bufio{b: []byte("x")}); err != -defs.EINVAL {
		t.Fatalf("read end should refuse Write, got %d", err)
	}
	if _, err := wend.Read(&bufio{b: make([]byte, 1)}); err != -defs.EINVAL {
		t.Fatalf("write end should refuse Read, got %d", err)
	}

	if err := rend.Close(); err != 0 {
		t.Fatalf("close failed: %d", err)
	}
	w := &bufio{b: []byte("x")}
	if _, err := wend.Write(w); err != -defs.EPIPE {
		t.Fatalf("expected EPIPE once read end closed, got %d", err)
	}
}

func TestPipeFreedWhenBothEndsDrop(t *testing.T) {
	setupMem(t)
	id, _ := Create()
	OnDescIncref(id, defs.PIPE_READ)
	OnDescIncref(id, defs.PIPE_WRITE)
	OnDescDecref(id, defs.PIPE_READ)
	OnDescDecref(id, defs.PIPE_WRITE)

	w := &bufio{b: []byte("x")}
	if _, err := Write(id, w); err != -defs.EBADF {
		t.Fatalf("expected EBADF on freed pipe, got %d", err)
	}
}
