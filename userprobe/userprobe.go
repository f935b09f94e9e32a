package userprobe

import (
	"strings"

	"github.com/iovisor/gobpf/bcc"

	"github.com/packetvisor/skb-lifecycle-tracking/bpfwrapper"
	"github.com/packetvisor/skb-lifecycle-tracking/process"
	"github.com/packetvisor/skb-lifecycle-tracking/utils"
)

var (
	targetPid     = ""
	targetProcess = ""
	targetBinary  = ""
	targetSymbols = ""
)

func init() {
	utils.InitVar("TRACKING_USER_PID", &targetPid)
	utils.InitVar("TRACKING_USER_PROCESS_NAME", &targetProcess)
	utils.InitVar("TRACKING_USER_BINARY", &targetBinary)
	utils.InitVar("TRACKING_USER_SYMBOLS", &targetSymbols)
}

// Enabled reports whether a user probe target was configured.
func Enabled() bool {
	return targetSymbols != "" && (targetPid != "" || targetProcess != "")
}

// Channel returns the perf buffer handler for user samples. It has to be
// registered before the consumers launch, whether or not attachment later
// succeeds.
func Channel() *bpfwrapper.ProbeChannel {
	return bpfwrapper.NewProbeChannel("user_samples", bpfwrapper.UserSampleCallback)
}

// Attach resolves the target process and attaches the user sampler to the
// configured symbols. Failures log and leave the kernel side untouched.
func Attach(bpfModule *bcc.Module) {
	pid, err := process.ResolveTargetPid(targetPid, targetProcess)
	if err != nil {
		utils.Warningf("user probe target not resolved: %v", err)
		return
	}

	binPath := targetBinary
	if binPath == "" {
		binPath, err = process.ExecutablePath(pid)
		if err != nil {
			utils.Warningf("user probe binary not resolved for pid %d: %v", pid, err)
			return
		}
	}

	symbols := []string{}
	for _, s := range strings.Split(targetSymbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}

	attached := bpfwrapper.AttachUserProbes(bpfModule, binPath, pid, symbols)
	utils.Infof("user probes attached: %d/%d on pid %d (%s)", attached, len(symbols), pid, binPath)
}
