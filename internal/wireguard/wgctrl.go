package wireguard

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgwatchdog/internal/model"
)

type deviceSource interface {
	Device(name string) (*wgtypes.Device, error)
	Close() error
}

// Client queries peer status over the kernel/userspace WireGuard control
// interface, avoiding a dependency on the wg binary.
type Client struct {
	src deviceSource
}

// NewClient opens a wgctrl handle. Close it when done.
func NewClient() (*Client, error) {
	c, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("open wgctrl: %w", err)
	}
	return &Client{src: c}, nil
}

func (c *Client) Close() error {
	if c == nil || c.src == nil {
		return nil
	}
	return c.src.Close()
}

// PeerStatus returns the monitored peer of iface.
func (c *Client) PeerStatus(_ context.Context, iface string) (model.PeerStatus, error) {
	dev, err := c.src.Device(iface)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return model.PeerStatus{}, fmt.Errorf("%w: %s", model.ErrInterfaceNotFound, iface)
		case errors.Is(err, os.ErrPermission):
			return model.PeerStatus{}, fmt.Errorf("%w: %v", model.ErrPrivilege, err)
		}
		return model.PeerStatus{}, fmt.Errorf("query %s: %w", iface, err)
	}

	peers := make([]model.PeerStatus, 0, len(dev.Peers))
	for _, p := range dev.Peers {
		peers = append(peers, peerFromDevice(p))
	}
	return SelectPeer(iface, peers)
}

func peerFromDevice(p wgtypes.Peer) model.PeerStatus {
	out := model.PeerStatus{PublicKey: p.PublicKey.String()}
	if p.Endpoint != nil {
		out.Endpoint = p.Endpoint.String()
		if !p.Endpoint.IP.IsUnspecified() {
			out.Address = p.Endpoint.IP.String()
		}
	}
	if !p.LastHandshakeTime.IsZero() && p.LastHandshakeTime.Unix() > 0 {
		out.LastHandshake = p.LastHandshakeTime.Unix()
	}
	for _, ipn := range p.AllowedIPs {
		out.AllowedIPs = append(out.AllowedIPs, ipn.String())
	}
	return out
}
