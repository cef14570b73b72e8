//go:build !linux

package arch

// NewDefaultBackend pairs with trace.NewDefaultBackend: the simulated
// backend everywhere a real ptrace(2) isn't available.
func NewDefaultBackend() Backend {
	return NewSimBackend()
}
