package stunutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"

	"wgwatchdog/internal/model"
)

const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

// Observe asks each STUN server for this host's mapped address and infers
// the NAT type from the answers. The mapping belongs to the STUN socket, not
// to the WireGuard socket, so it only indicates how the NAT in front of the
// host behaves.
func Observe(ctx context.Context, servers []string, timeout time.Duration) (model.NATMapping, error) {
	if len(servers) == 0 {
		return model.NATMapping{Type: NATTypeUnknown}, fmt.Errorf("no STUN servers provided")
	}

	addrs := make([]string, 0, len(servers))
	var lastErr error
	for _, server := range servers {
		addr, err := bindingRequest(ctx, server, timeout)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", server, err)
			continue
		}
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return model.NATMapping{Type: NATTypeUnknown}, lastErr
	}
	return model.NATMapping{Address: addrs[0], Type: Classify(addrs)}, nil
}

// Classify infers NAT type by comparing mapped addresses from multiple servers.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATTypeUnknown
	}
	for _, addr := range addrs[1:] {
		if addr != addrs[0] {
			return NATTypeSymmetric
		}
	}
	return NATTypeConeOrRestricted
}

// NormalizeURI prefixes bare host:port entries with the stun: scheme.
func NormalizeURI(server string) (string, error) {
	uri := strings.TrimSpace(server)
	if uri == "" {
		return "", fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uri, "stun:") && !strings.HasPrefix(uri, "stuns:") {
		uri = "stun:" + uri
	}
	return uri, nil
}

func bindingRequest(ctx context.Context, server string, timeout time.Duration) (string, error) {
	raw, err := NormalizeURI(server)
	if err != nil {
		return "", err
	}
	uri, err := stun.ParseURI(raw)
	if err != nil {
		return "", err
	}
	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan string, 1)
	fail := make(chan error, 1)
	go func() {
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			var addr stun.XORMappedAddress
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr.String()
		})
		if err != nil {
			fail <- err
		}
	}()

	select {
	case addr := <-result:
		return addr, nil
	case err := <-fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
