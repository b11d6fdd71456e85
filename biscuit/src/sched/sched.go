// Package sched implements the cooperative, single-CPU round-robin
// scheduler (§4.15), grounded on
// _examples/original_source/kernel-aarch64/sched.c: no preemption, no
// timer interrupts mid-syscall — a process only yields the CPU by
// blocking inside a syscall handler, and the only scheduling decision
// is "which RUNNABLE slot comes next", with a busy-wait fallback to
// the earliest sleeper's deadline when nothing is runnable right now.
package sched

import "defs"
import "proc"
import "vm"

// WakeSleepers transitions every SLEEPING process whose deadline has
// passed to RUNNABLE (§4.15 "sched_wake_sleepers"). nowNs is the
// caller's current monotonic time, passed in rather than read directly
// so tests can drive the clock deterministically.
func WakeSleepers(nowNs int64) {
	proc.Each(func(i int, p *proc.Proc_t) {
		if p.State == proc.SLEEPING && nowNs >= p.SleepDeadlineNs {
			p.State = proc.RUNNABLE
		}
	})
}

// AnySleepers reports whether any process is SLEEPING, and if so the
// earliest deadline among them (§4.15 "sched_any_sleepers") — used to
// decide how long PickNextRunnable may busy-wait before it must
// recheck.
func AnySleepers() (earliest int64, any bool) {
	proc.Each(func(i int, p *proc.Proc_t) {
		if p.State == proc.SLEEPING {
			if !any || p.SleepDeadlineNs < earliest {
				earliest = p.SleepDeadlineNs
				any = true
			}
		}
	})
	return earliest, any
}

// PickNextRunnable scans slots round-robin starting just after
// proc.LastSched and returns the index of the first RUNNABLE process
// found, wrapping around. If nothing is RUNNABLE but something is
// SLEEPING, it busy-waits (spinning nowNs forward via the supplied
// clock function) until the earliest deadline, then rechecks once. It
// returns -1 only if the system is truly idle — no RUNNABLE and no
// SLEEPING process exists at all (§4.15 "sched_pick_next_runnable").
func PickNextRunnable(clockNs func() int64) int {
	const n = defs.N_PROC
	for {
		for off := 1; off <= n; off++ {
			i := (proc.LastSched + off) % n
			p := proc.At(i)
			if p.State == proc.RUNNABLE {
				return i
			}
		}
		deadline, any := AnySleepers()
		if !any {
			return -1
		}
		for clockNs() < deadline {
			// spin; a real kernel would WFE here (§4.15 "busy-wait
			// to earliest deadline"), nothing to do but poll time.
		}
		WakeSleepers(clockNs())
	}
}

// SwitchTo installs idx as the running process: clean+invalidate the
// data cache (no ASIDs, so a stale cache line from the outgoing
// process must never be visible to the incoming one), write its
// TTBR0, and copy its trap frame into tf (§4.15 "proc_switch_to").
// The saved PC in p.Elr is not restored: TrapFrame_t has no PC field
// and SwitchTo writes no ELR.
func SwitchTo(idx int, tf *proc.TrapFrame_t) {
	p := proc.At(idx)
	vm.CleanInvalidateAll()
	vm.TTBR0Write(p.Vm.Pmap)
	proc.CurProc = idx
	proc.LastSched = idx
	*tf = p.Tf
}

// MaybeSwitch is called at the tail of every syscall return: if the
// current process is no longer RUNNING (it blocked, exited, or was
// never resumed after a clone/exec switch), pick the next runnable
// process and install it. If nothing is runnable, the CPU idles by
// repeatedly re-picking until WakeSleepers makes progress
// (§4.15 "sched_maybe_switch").
func MaybeSwitch(tf *proc.TrapFrame_t, clockNs func() int64) {
	cur := proc.Current()
	if cur.State == proc.RUNNING || cur.State == proc.RUNNABLE {
		cur.State = proc.RUNNABLE
		return
	}
	next := PickNextRunnable(clockNs)
	if next < 0 {
		return
	}
	proc.At(next).State = proc.RUNNING
	SwitchTo(next, tf)
}
