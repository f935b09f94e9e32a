package bpfwrapper

import (
	"fmt"
	"os/exec"
	"strings"
)

// DeleteExistingTrackingProbes removes kprobes left behind by a previous
// collector that did not shut down cleanly.
func DeleteExistingTrackingProbes() {

	listCmd := exec.Command("perf", "probe", "-l")

	listOutput, err := listCmd.Output()
	if err != nil {
		fmt.Println("Error listing kprobes:", err)
		return
	}

	kprobeLines := strings.Split(string(listOutput), "\n")

	for _, line := range kprobeLines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		kprobeName := fields[0]

		// skip probes that aren't ours
		if !strings.HasPrefix(kprobeName, "kprobes:skbtrk") {
			continue
		}

		deleteCmd := exec.Command("perf", "probe", "-d", kprobeName)
		if err := deleteCmd.Run(); err != nil {
			fmt.Printf("Error deleting kprobe %s: %v\n", kprobeName, err)
		} else {
			fmt.Printf("Deleted kprobe %s\n", kprobeName)
		}
	}
}
