//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// DETACHED_PROCESS from the Win32 process creation flags
const detachedProcess = 0x00000008

// detach runs the server without a console so closing the CLI window does not stop it
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
		HideWindow:    true,
	}
}
