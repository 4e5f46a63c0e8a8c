//go:build !unix

package backend

import "os"

// Advisory locking is only available on unix; elsewhere the image is
// assumed to be private to this process.
func lockFile(f *os.File) error { return nil }

func unlockFile(f *os.File) {}
