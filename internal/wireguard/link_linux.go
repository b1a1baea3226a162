package wireguard

import (
	"errors"
	"fmt"
	"os"

	"github.com/vishvananda/netlink"

	"wgwatchdog/internal/model"
)

// Links checks interface existence over netlink.
type Links struct {
	byName func(name string) (netlink.Link, error)
}

func NewLinks() *Links {
	return &Links{byName: netlink.LinkByName}
}

// CheckLink fails with model.ErrInterfaceNotFound when iface is absent and
// rejects links that cannot carry WireGuard (kernel module or wireguard-go tun).
func (l *Links) CheckLink(iface string) error {
	link, err := l.byName(iface)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w: %s", model.ErrInterfaceNotFound, iface)
		}
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %v", model.ErrPrivilege, err)
		}
		return fmt.Errorf("lookup link %s: %w", iface, err)
	}
	switch t := link.Type(); t {
	case "wireguard", "tuntap":
		return nil
	default:
		return fmt.Errorf("%s is a %s link, not wireguard", iface, t)
	}
}
