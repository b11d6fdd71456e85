package power

import "testing"

import "defs"

func TestRebootPoweroffInvokesHaltHook(t *testing.T) {
	var got int
	halted := false
	SetHaltHook(func(code int) { got = code; halted = true })
	defer SetHaltHook(nil)

	err := Reboot(0xfee1dead, 0x28121969, 0x4321fedc, 7)
	if err != 0 {
		t.Fatalf("unexpected error: %d", err)
	}
	if !halted || got != 7 {
		t.Fatalf("halt hook not invoked with expected code: halted=%v code=%d", halted, got)
	}
}

func TestRebootRejectsUnknownCmd(t *testing.T) {
	halted := false
	SetHaltHook(func(code int) { halted = true })
	defer SetHaltHook(nil)

	if err := Reboot(0, 0, 0x1234, 0); err != -defs.EINVAL {
		t.Fatalf("expected EINVAL, got %d", err)
	}
	if halted {
		t.Fatalf("halt hook should not fire for unsupported cmd")
	}
}
