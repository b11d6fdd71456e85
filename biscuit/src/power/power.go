// Package power implements system power-off and the reboot syscall
// (§4.14 "exit_group" pid-1 case, §6 "reboot"), grounded on
// _examples/original_source/kernel-aarch64/power.c: a PSCI SYSTEM_OFF
// request, falling back to an infinite halt if firmware doesn't honor
// it. This hosted port has no SMC instruction to issue (see vm/mmu.go,
// vm/cache.go for the same "no real hardware to drive" posture), so
// PoweroffWithCode's halt path is the process actually exiting instead
// of a wfe spin loop.
package power

import "os"

import "defs"
import "uart"

const linuxRebootCmdPoweroff = 0x4321fedc

// haltHook lets tests observe a poweroff without ending the test binary
// process; cmd/kernel leaves it nil so PoweroffWithCode really exits.
var haltHook func(code int)

// SetHaltHook overrides what PoweroffWithCode does instead of calling
// os.Exit, for tests.
func SetHaltHook(h func(code int)) { haltHook = h }

// PoweroffWithCode announces a PSCI SYSTEM_OFF and halts, exiting the
// host process with code as the hosted stand-in for a real
// `smc #0` SYSTEM_OFF call (kernel_poweroff_with_code).
func PoweroffWithCode(code uint8) {
	uart.Write("[kernel] poweroff: PSCI SYSTEM_OFF\n")
	if haltHook != nil {
		haltHook(int(code))
		return
	}
	os.Exit(int(code))
}

// Poweroff calls PoweroffWithCode(0) (kernel_poweroff).
func Poweroff() { PoweroffWithCode(0) }

// Reboot implements the reboot(2) syscall (§6): only
// LINUX_REBOOT_CMD_POWER_OFF is supported, using arg's low byte as the
// exit status; anything else is rejected (sys_reboot).
func Reboot(magic1, magic2, cmd, arg uint64) defs.Err_t {
	if cmd == linuxRebootCmdPoweroff {
		PoweroffWithCode(uint8(arg & 0xff))
		return 0
	}
	return -defs.EINVAL
}
