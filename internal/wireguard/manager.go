package wireguard

import (
	"context"
	"fmt"
	"os"
	"strings"

	"wgwatchdog/internal/config"
	"wgwatchdog/internal/execx"
	"wgwatchdog/internal/model"
)

// Manager drives the wg, systemctl and wg-quick commands. It is injectable
// for unit tests through execx.Runner.
type Manager struct {
	r           execx.Runner
	method      string
	serviceUnit string
}

// NewManager returns a Manager restarting tunnels with method. serviceUnit is
// a fmt pattern with one %s for the interface, used by the systemd method.
func NewManager(r execx.Runner, method, serviceUnit string) *Manager {
	if r == nil {
		r = execx.NewOSRunner(os.Stdout, os.Stderr)
	}
	if method == "" {
		method = config.DefaultRestartMethod
	}
	if serviceUnit == "" {
		serviceUnit = config.DefaultServiceUnit
	}
	return &Manager{r: r, method: method, serviceUnit: serviceUnit}
}

// PeerStatus reads the interface's peers from `wg show <iface> dump`.
func (m *Manager) PeerStatus(ctx context.Context, iface string) (model.PeerStatus, error) {
	if iface == "" {
		return model.PeerStatus{}, fmt.Errorf("interface name is required")
	}
	out, err := m.output(ctx, "wg", "show", iface, "dump")
	if err != nil {
		return model.PeerStatus{}, classifyCommandError(iface, err)
	}
	return SelectPeer(iface, ParseDump(out))
}

// Restart bounces the tunnel so wg-quick re-resolves the peer endpoint.
func (m *Manager) Restart(ctx context.Context, iface string) error {
	if iface == "" {
		return fmt.Errorf("interface name is required")
	}
	switch m.method {
	case config.RestartSystemd:
		return m.run(ctx, "systemctl", "restart", m.Unit(iface))
	case config.RestartWgQuick:
		// down fails when the interface is already gone; up is what matters.
		_ = m.run(ctx, "wg-quick", "down", iface)
		return m.run(ctx, "wg-quick", "up", iface)
	default:
		return fmt.Errorf("unknown restart method %q", m.method)
	}
}

// Unit returns the systemd unit managing iface.
func (m *Manager) Unit(iface string) string {
	return fmt.Sprintf(m.serviceUnit, iface)
}

// Status returns a basic interface + wg status output.
func (m *Manager) Status(ctx context.Context, iface string) (string, error) {
	if iface == "" {
		return "", fmt.Errorf("interface name is required")
	}
	ipOut, ipErr := m.output(ctx, "ip", "-brief", "addr", "show", "dev", iface)
	wgOut, wgErr := m.output(ctx, "wg", "show", iface)
	if ipErr != nil && wgErr != nil {
		return "", fmt.Errorf("ip: %v; wg: %v", ipErr, wgErr)
	}
	var b strings.Builder
	if ipOut != "" {
		b.WriteString("ip:\n")
		b.WriteString(ipOut)
	}
	if wgOut != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("wg:\n")
		b.WriteString(wgOut)
	}
	return b.String(), nil
}

func classifyCommandError(iface string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "No such device"), strings.Contains(msg, "does not exist"):
		return fmt.Errorf("%w: %s", model.ErrInterfaceNotFound, iface)
	case strings.Contains(msg, "Operation not permitted"), strings.Contains(msg, "Permission denied"):
		return fmt.Errorf("%w: %v", model.ErrPrivilege, err)
	}
	return err
}

func (m *Manager) run(ctx context.Context, name string, args ...string) error {
	if m == nil || m.r == nil {
		return fmt.Errorf("runner not initialized")
	}
	return m.r.Run(ctx, name, args...)
}

func (m *Manager) output(ctx context.Context, name string, args ...string) (string, error) {
	if m == nil || m.r == nil {
		return "", fmt.Errorf("runner not initialized")
	}
	return m.r.Output(ctx, name, args...)
}
