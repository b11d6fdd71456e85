package fd

import "testing"

import "defs"
import "fdops"

type nopFops struct{ closed int }

func (f *nopFops) Close() defs.Err_t                           { f.closed++; return 0 }
func (f *nopFops) Fstat(fdops.Stat_i) defs.Err_t                { return 0 }
func (f *nopFops) Lseek(int, int) (int, defs.Err_t)            { return 0, -defs.EINVAL }
func (f *nopFops) Pathi() (string, defs.Err_t)                 { return "", 0 }
func (f *nopFops) Read(fdops.Userio_i) (int, defs.Err_t)        { return 0, 0 }
func (f *nopFops) Reopen() defs.Err_t                           { return 0 }
func (f *nopFops) Write(fdops.Userio_i) (int, defs.Err_t)       { return 0, 0 }
func (f *nopFops) Truncate(uint) defs.Err_t                     { return 0 }
func (f *nopFops) Getdents(fdops.Userio_i) (int, defs.Err_t)    { return 0, 0 }

func TestAllocIncrefDecrefClosesOnLastRef(t *testing.T) {
	ResetTable()
	nf := &nopFops{}
	idx, err := AllocDesc(&Fd_t{Fops: nf, Perms: FD_READ})
	if err != 0 {
		t.Fatalf("alloc failed: %d", err)
	}
	Incref(idx)
	if Refcnt(idx) != 2 {
		t.Fatalf("expected refcnt 2, got %d", Refcnt(idx))
	}
	if err := Decref(idx); err != 0 {
		t.Fatalf("decref failed: %d", err)
	}
	if nf.closed != 0 {
		t.Fatalf("fops closed too early")
	}
	if err := Decref(idx); err != 0 {
		t.Fatalf("final decref failed: %d", err)
	}
	if nf.closed != 1 {
		t.Fatalf("expected fops closed exactly once, got %d", nf.closed)
	}
	if Refcnt(idx) != 0 {
		t.Fatalf("expected slot cleared")
	}
}

func TestProcfdsAllocIntoAndFork(t *testing.T) {
	ResetTable()
	nf := &nopFops{}
	idx, _ := AllocDesc(&Fd_t{Fops: nf, Perms: FD_READ | FD_WRITE})

	p := NewProcfds()
	fdno, err := p.AllocInto(0, idx)
	if err != 0 || fdno != 0 {
		t.Fatalf("expected fd 0, got %d err %d", fdno, err)
	}
	// Drop the allocation's own reference, as installFd and InitIfNeeded
	// do, so only the fd slot holds one.
	Decref(idx)

	child := p.Fork()
	if Refcnt(idx) != 2 {
		t.Fatalf("expected refcnt 2 after fork, got %d", Refcnt(idx))
	}

	if err := p.Close(0); err != 0 {
		t.Fatalf("parent close failed: %d", err)
	}
	if nf.closed != 0 {
		t.Fatalf("fops closed while child still references it")
	}
	if err := child.Close(0); err != 0 {
		t.Fatalf("child close failed: %d", err)
	}
	if nf.closed != 1 {
		t.Fatalf("expected fops closed after last reference dropped")
	}
}

func TestProcfdsGetOnClosedSlot(t *testing.T) {
	p := NewProcfds()
	if _, err := p.Get(0); err != -defs.EBADF {
		t.Fatalf("expected EBADF on empty slot, got %d", err)
	}
}
