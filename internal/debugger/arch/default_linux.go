//go:build linux

package arch

// NewDefaultBackend pairs with trace.NewDefaultBackend: the real amd64
// arch backend on linux.
func NewDefaultBackend() Backend {
	return NewAMD64Backend()
}
