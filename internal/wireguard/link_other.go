//go:build !linux

package wireguard

import (
	"fmt"
	"net"

	"wgwatchdog/internal/model"
)

// Links checks interface existence with the portable net package.
type Links struct{}

func NewLinks() *Links { return &Links{} }

func (l *Links) CheckLink(iface string) error {
	if _, err := net.InterfaceByName(iface); err != nil {
		return fmt.Errorf("%w: %s", model.ErrInterfaceNotFound, iface)
	}
	return nil
}
