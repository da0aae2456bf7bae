//go:build !darwin && !linux

package storage

// detectFilesystemType reports an unknown type; callers treat it as local.
func detectFilesystemType(path string) (string, error) {
	return "", nil
}
