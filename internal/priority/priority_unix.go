//go:build unix

package priority

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Lower pins the calling goroutine to its OS thread and raises that thread's
// nice value. Child processes started from the goroutine inherit it. The
// goroutine stays locked for the rest of its life.
func Lower() error {
	runtime.LockOSThread()
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, Niceness); err != nil {
		return fmt.Errorf("setpriority: %w", err)
	}
	return nil
}
