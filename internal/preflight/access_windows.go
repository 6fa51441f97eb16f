//go:build windows

package preflight

import "os"

// checkAccess probes write access by creating a temporary file; Windows ACLs
// are not visible through the mode bits.
func checkAccess(path string) error {
	f, err := os.CreateTemp(path, ".qcstation-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
