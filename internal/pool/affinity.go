package pool

import (
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// pinWorker locks the calling goroutine to its OS thread and pins that
// thread to affinity[idx%len(affinity)] — the same round-robin CPU
// assignment and "log and continue without affinity" failure policy as
// the ublk runner's ioLoop. A nil or empty affinity list is a no-op.
func pinWorker(log zerolog.Logger, idx int, affinity []int) {
	if len(affinity) == 0 {
		return
	}
	runtime.LockOSThread()

	cpu := affinity[idx%len(affinity)]
	var mask unix.CPUSet
	mask.Set(cpu)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		log.Warn().Int("worker", idx).Int("cpu", cpu).Err(err).Msg("failed to set worker CPU affinity")
		return
	}
	log.Debug().Int("worker", idx).Int("cpu", cpu).Msg("set worker CPU affinity")
}
