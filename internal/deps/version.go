package deps

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Version probes a binary with "-version" and returns the first output line.
// An empty string means the probe failed; availability is CheckBinaries' job.
func Version(ctx context.Context, command string) string {
	command = strings.TrimSpace(command)
	if command == "" {
		return ""
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(probeCtx, command, "-version").Output()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(line)
}
