package supervisor

import (
	"os"
	"strings"
	"time"
)

// Verdict is the health evaluator's decision for one worker in one cycle
type Verdict struct {
	Healthy bool
	Reason  Reason
}

var healthy = Verdict{Healthy: true}

func unhealthy(r Reason) Verdict {
	return Verdict{Reason: r}
}

// evaluate judges one worker from its log sink. Workers are opaque external
// programs, so the only liveness proxies are continued output and textual
// failure markers in that output; both are heuristic by necessity.
//
// lastObservedSize is updated exactly once per cycle, here, before the
// restart decision for the cycle is finalized. Callers hold s.mu.
func (s *Supervisor) evaluate(st *workerState, now time.Time) Verdict {
	fi, err := os.Stat(st.spec.LogPath)
	if err != nil {
		// Absent or unreadable sink: the worker either never produced output
		// or something deleted its log out from under it.
		return unhealthy(ReasonMissingLog)
	}

	currentSize := fi.Size()
	if currentSize == st.lastObservedSize {
		// No new bytes across a full polling interval: hung, or exited
		// without the log reflecting it.
		return unhealthy(ReasonStalled)
	}
	st.lastObservedSize = currentSize
	st.lastActivityTime = now

	found, marker := scanForMarkers(st.spec.LogPath, s.opts.Markers)
	if found {
		// Unhealthy even though the log is still growing: a worker that
		// logged a traceback but did not exit is still broken.
		s.logger.Warn("failure marker in worker log",
			map[string]interface{}{"worker": st.spec.Name, "marker": marker})
		return unhealthy(ReasonErrorSignal)
	}

	return healthy
}

// scanForMarkers scans the whole accumulated log for any of the configured
// failure markers, case-insensitively. The full-file scan is intentional:
// each restart truncates the sink, so one marker causes at most one restart
// per log lifetime. Returns the first marker found.
func scanForMarkers(path string, markers []string) (bool, string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, ""
	}

	content := strings.ToLower(string(data))
	for _, marker := range markers {
		if strings.Contains(content, strings.ToLower(marker)) {
			return true, marker
		}
	}
	return false, ""
}
