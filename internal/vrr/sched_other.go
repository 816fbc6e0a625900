//go:build !linux

package vrr

// setRealtimePriority is a no-op where fixed-priority scheduling is not
// exposed; the worker runs at normal priority.
func setRealtimePriority() error { return nil }
