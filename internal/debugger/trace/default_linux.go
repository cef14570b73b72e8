//go:build linux

package trace

// NewDefaultBackend returns the real ptrace(2) backend on linux, the only
// platform PTRACE_* is available on.
func NewDefaultBackend() Backend {
	return NewPtraceBackend()
}
