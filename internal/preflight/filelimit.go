package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the soft-limit floor for serving traffic. The
// HTTP listener, Redis pool and pgx pool all hold descriptors open.
const MinFileDescriptors = 1024

// CheckFileDescriptors verifies the process file descriptor limit.
func CheckFileDescriptors() Result {
	r := Result{Name: "file_descriptors", Required: false}

	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return r
	}

	r.Message = fmt.Sprintf("%d (minimum: %d)", rlimit.Cur, MinFileDescriptors)
	if rlimit.Cur < MinFileDescriptors {
		r.Status = StatusWarn
		r.Details = "Run 'ulimit -n 10240' before starting the server."
		return r
	}

	r.Status = StatusPass
	return r
}
