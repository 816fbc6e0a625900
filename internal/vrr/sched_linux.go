//go:build linux

package vrr

import (
	"golang.org/x/sys/unix"
)

// workerRTPriority is the lowest FIFO tier; the worker must preempt normal
// threads but never the compositor's own real-time threads.
const workerRTPriority = 2

// setRealtimePriority pins the calling thread to SCHED_FIFO. Callers hold
// runtime.LockOSThread so the policy sticks to the worker.
func setRealtimePriority() error {
	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: workerRTPriority,
	}
	return unix.SchedSetAttr(0, &attr, 0)
}
