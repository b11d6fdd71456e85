package uart

import "testing"

import "klog"

func TestWriteMirrorsToKlogWithoutHardware(t *testing.T) {
	klog.Clear()
	Write("hi\n")
	if string(klog.Snapshot()) != "hi\n" {
		t.Fatalf("unexpected klog contents: %q", klog.Snapshot())
	}
}

func TestRingNextWraps(t *testing.T) {
	if ringNext(ringSize-1) != 0 {
		t.Fatalf("ring index did not wrap")
	}
}
