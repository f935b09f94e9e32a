package bpfwrapper

import (
	"log"

	"github.com/iovisor/gobpf/bcc"
)

const userHookName = "probe_user_sample"

// AttachUserProbes attaches the user sampler to every listed symbol of the
// target binary, restricted to one pid. A symbol that fails to attach is
// logged and skipped; the remaining symbols still attach.
func AttachUserProbes(bpfModule *bcc.Module, binPath string, pid int32, symbols []string) int {
	probeFD, err := bpfModule.LoadUprobe(userHookName)
	if err != nil {
		log.Printf("Failed to load %q: %v", userHookName, err)
		return 0
	}

	attached := 0
	for _, symbol := range symbols {
		if err := bpfModule.AttachUprobe(binPath, symbol, probeFD, int(pid)); err != nil {
			log.Printf("Failed to attach uprobe %q on %q pid %d: %v", symbol, binPath, pid, err)
			continue
		}
		log.Printf("Attached uprobe %q on %q pid %d", symbol, binPath, pid)
		attached++
	}
	return attached
}
