// Package privilege checks that the process may query and restart a
// WireGuard interface before the watchdog touches anything.
package privilege

import (
	"fmt"
	"os"

	"wgwatchdog/internal/model"
)

// Check returns model.ErrPrivilege unless the process runs as root or holds
// CAP_NET_ADMIN in its effective set.
func Check() error {
	if os.Geteuid() == 0 {
		return nil
	}
	ok, err := hasNetAdmin()
	if err != nil {
		return fmt.Errorf("%w: read capabilities: %v", model.ErrPrivilege, err)
	}
	if !ok {
		return fmt.Errorf("%w: run as root or grant CAP_NET_ADMIN", model.ErrPrivilege)
	}
	return nil
}
