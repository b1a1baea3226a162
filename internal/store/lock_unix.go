//go:build unix

package store

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"wgwatchdog/internal/model"
)

// Lock takes a non-blocking exclusive flock on the interface's lock file and
// returns model.ErrStateLocked on contention. The returned func releases it.
func (s *FileStore) Lock(iface string) (func() error, error) {
	if !validIface.MatchString(iface) {
		return nil, fmt.Errorf("invalid interface name %q", iface)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(s.Path(iface)+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, model.ErrStateLocked
		}
		return nil, fmt.Errorf("flock %s: %w", f.Name(), err)
	}
	return func() error {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}, nil
}
