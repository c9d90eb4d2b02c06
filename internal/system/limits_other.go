//go:build !unix

package system

// RaiseOpenFileLimit is a no-op where RLIMIT_NOFILE does not exist.
func RaiseOpenFileLimit(want uint64) (uint64, error) {
	return want, nil
}
