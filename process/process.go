package process

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/process"
)

// ResolveTargetPid picks the process to probe from either an explicit pid
// or a process name. The pid wins when both are set.
func ResolveTargetPid(pidStr, name string) (int32, error) {
	if pidStr != "" {
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			return 0, fmt.Errorf("invalid target pid %q: %v", pidStr, err)
		}
		exists, err := process.PidExists(int32(pid))
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, fmt.Errorf("no process with pid %d", pid)
		}
		return int32(pid), nil
	}

	if name == "" {
		return 0, fmt.Errorf("no target pid or process name given")
	}
	return FindPidByName(name)
}

// FindPidByName scans the process list for an exact name match and returns
// the first hit.
func FindPidByName(name string) (int32, error) {
	pidList, err := process.Pids()
	if err != nil {
		return 0, err
	}

	for _, pid := range pidList {
		p, err := process.NewProcess(pid)
		if err != nil {
			continue
		}
		pName, err := p.Name()
		if err != nil {
			continue
		}
		if pName == name {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("no process named %q", name)
}

// ExecutablePath returns the binary backing a pid, for uprobe attachment.
func ExecutablePath(pid int32) (string, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return "", err
	}
	exe, err := p.Exe()
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(exe, " (deleted)") {
		return "", fmt.Errorf("binary for pid %d was deleted", pid)
	}
	return exe, nil
}
