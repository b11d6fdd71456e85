package sched

import "testing"

import "proc"

func resetProcsForTest() {
	for i := 0; i < 16; i++ {
		p := proc.At(i)
		p.State = proc.UNUSED
		p.Pid = 0
	}
	proc.CurProc = 0
	proc.LastSched = 0
}

func TestPickNextRunnableRoundRobin(t *testing.T) {
	resetProcsForTest()
	proc.At(2).State = proc.RUNNABLE
	proc.At(5).State = proc.RUNNABLE
	proc.LastSched = 0

	first := PickNextRunnable(func() int64 { return 0 })
	if first != 2 {
		t.Fatalf("expected slot 2 first, got %d", first)
	}
	proc.LastSched = first
	second := PickNextRunnable(func() int64 { return 0 })
	if second != 5 {
		t.Fatalf("expected slot 5 second, got %d", second)
	}
}

func TestPickNextRunnableIdleReturnsNegOne(t *testing.T) {
	resetProcsForTest()
	if got := PickNextRunnable(func() int64 { return 0 }); got != -1 {
		t.Fatalf("expected -1 when idle, got %d", got)
	}
}

func TestWakeSleepersPastDeadline(t *testing.T) {
	resetProcsForTest()
	p := proc.At(3)
	p.State = proc.SLEEPING
	p.SleepDeadlineNs = 100
	WakeSleepers(50)
	if p.State != proc.SLEEPING {
		t.Fatalf("woke too early")
	}
	WakeSleepers(100)
	if p.State != proc.RUNNABLE {
		t.Fatalf("did not wake at deadline")
	}
}

func TestPickNextRunnableWaitsForSleeper(t *testing.T) {
	resetProcsForTest()
	p := proc.At(7)
	p.State = proc.SLEEPING
	p.SleepDeadlineNs = 10
	clock := int64(0)
	got := PickNextRunnable(func() int64 {
		clock++
		return clock
	})
	if got != 7 {
		t.Fatalf("expected woken slot 7, got %d", got)
	}
}
