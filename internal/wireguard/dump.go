package wireguard

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"wgwatchdog/internal/model"
)

// ParseDump parses `wg show <iface> dump`. The first line describes the
// interface; each following line is a tab-separated peer:
// public-key, preshared-key, endpoint, allowed-ips, latest-handshake,
// transfer-rx, transfer-tx, persistent-keepalive.
func ParseDump(dump string) []model.PeerStatus {
	lines := strings.Split(strings.TrimSpace(dump), "\n")
	if len(lines) < 2 {
		return nil
	}
	peers := make([]model.PeerStatus, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 5 || fields[0] == "" {
			continue
		}
		peer := model.PeerStatus{PublicKey: fields[0]}
		if ep := fields[2]; ep != "(none)" {
			peer.Endpoint = ep
			peer.Address = HostFromEndpoint(ep)
		}
		if fields[3] != "(none)" {
			peer.AllowedIPs = strings.Split(fields[3], ",")
		}
		if ts, err := strconv.ParseInt(fields[4], 10, 64); err == nil && ts > 0 {
			peer.LastHandshake = ts
		}
		peers = append(peers, peer)
	}
	return peers
}

// SelectPeer picks the peer the watchdog monitors: the first one with an
// endpoint, else the first one. An empty list is model.ErrNoPeer.
func SelectPeer(iface string, peers []model.PeerStatus) (model.PeerStatus, error) {
	if len(peers) == 0 {
		return model.PeerStatus{}, fmt.Errorf("%w: %s", model.ErrNoPeer, iface)
	}
	for _, p := range peers {
		if p.Address != "" {
			return p, nil
		}
	}
	return peers[0], nil
}

// HostFromEndpoint returns the IP literal of a "host:port" endpoint,
// accepting bracketed and unbracketed IPv6. Unspecified addresses yield "".
func HostFromEndpoint(endpoint string) string {
	a := strings.TrimSpace(endpoint)
	if a == "" {
		return ""
	}

	host := a
	if h, _, err := net.SplitHostPort(a); err == nil {
		host = h
	} else if strings.Count(a, ":") > 1 && !strings.HasPrefix(a, "[") {
		// Unbracketed IPv6 "addr:port": peel off the last ":port".
		if last := strings.LastIndexByte(a, ':'); last > 0 && last < len(a)-1 {
			if _, err := strconv.Atoi(a[last+1:]); err == nil && net.ParseIP(a[:last]) != nil {
				host = a[:last]
			}
		}
	}
	host = strings.Trim(host, "[]")
	if i := strings.IndexByte(host, '%'); i >= 0 {
		host = host[:i]
	}

	ip := net.ParseIP(host)
	if ip == nil || ip.IsUnspecified() {
		return ""
	}
	return ip.String()
}
