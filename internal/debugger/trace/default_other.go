//go:build !linux

package trace

// NewDefaultBackend falls back to the simulated backend on platforms
// without a real ptrace(2), so the operator console and test suite still
// run on a development machine that isn't linux/amd64.
func NewDefaultBackend() Backend {
	return NewSimBackend()
}
