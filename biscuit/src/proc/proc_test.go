package proc

import "testing"

import "defs"
import "mem"

func resetForTest() {
	inited = false
	for i := range procs {
		procs[i].Fds = nil
		procs[i].State = UNUSED
	}
	nextPid = 1
}

func TestInitIfNeededBootstrapsPidOne(t *testing.T) {
	resetForTest()
	var tf TrapFrame_t
	tf.SpEl0 = 0x00500000
	InitIfNeeded(0x00400000, &tf, nil, mem.Pa_t(0x40000000), mem.Pa_t(0x41000000))
	p := At(0)
	if p.Pid != 1 || p.State != RUNNABLE {
		t.Fatalf("pid 1 not bootstrapped: pid=%d state=%s", p.Pid, p.State)
	}
	if p.Cwd != "/" {
		t.Fatalf("unexpected cwd: %q", p.Cwd)
	}
	for _, fdno := range []int{0, 1, 2} {
		if _, err := p.Fds.Get(fdno); err != 0 {
			t.Fatalf("fd %d not installed: %d", fdno, err)
		}
	}
}

func TestInitIfNeededIsIdempotent(t *testing.T) {
	resetForTest()
	var tf TrapFrame_t
	InitIfNeeded(0, &tf, nil, 0, 0)
	first := At(0).Pid
	InitIfNeeded(0, &tf, nil, 0, 0)
	if At(0).Pid != first {
		t.Fatalf("second InitIfNeeded call mutated state: now pid=%d", At(0).Pid)
	}
}

func TestFindFreeSlotAfterBootstrap(t *testing.T) {
	resetForTest()
	var tf TrapFrame_t
	InitIfNeeded(0, &tf, nil, 0, 0)
	slot := FindFreeSlot()
	if slot != 1 {
		t.Fatalf("expected slot 1 free, got %d", slot)
	}
}

func TestPsFdRendersCurrentTable(t *testing.T) {
	resetForTest()
	var tf TrapFrame_t
	InitIfNeeded(0, &tf, nil, 0, 0)
	ps := &PsFd_t{}
	var fb fakeUio
	fb.cap = 4096
	n, err := ps.Read(&fb)
	if err != 0 || n == 0 {
		t.Fatalf("ps read failed: n=%d err=%d", n, err)
	}
}

type fakeUio struct {
	written []byte
	cap     int
}

func (f *fakeUio) Uioread(dst []uint8) (int, defs.Err_t)  { return 0, 0 }
func (f *fakeUio) Uiowrite(src []uint8) (int, defs.Err_t) { f.written = append(f.written, src...); return len(src), 0 }
func (f *fakeUio) Remain() int                            { return f.cap - len(f.written) }
func (f *fakeUio) Totalsz() int                            { return f.cap }
