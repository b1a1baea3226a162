//go:build !linux

package privilege

// Capabilities are Linux-only; elsewhere only root qualifies.
func hasNetAdmin() (bool, error) {
	return false, nil
}
