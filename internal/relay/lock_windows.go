//go:build windows

package relay

import "os"

// Advisory file locks are not available here; holding the file open is the
// best single-instance hint we have.
func flockExclusive(file *os.File) error {
	return nil
}
