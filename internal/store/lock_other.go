//go:build !unix

package store

// Lock is a no-op where flock is unavailable.
func (s *FileStore) Lock(iface string) (func() error, error) {
	return func() error { return nil }, nil
}
