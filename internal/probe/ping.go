package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"wgwatchdog/internal/execx"
	"wgwatchdog/internal/model"
)

// deadlineSlack covers ping's own startup and DNS-free address parsing on
// top of attempts*timeout.
const deadlineSlack = time.Second

// Pinger probes ICMP reachability by running the system ping binary, which
// already holds the raw-socket capability the watchdog would otherwise need.
type Pinger struct {
	r execx.Runner
}

func NewPinger(r execx.Runner) *Pinger {
	if r == nil {
		r = execx.NewOSRunner(os.Stdout, os.Stderr)
	}
	return &Pinger{r: r}
}

// Reachable sends attempts echo requests to addr, waiting up to timeout for
// each. It returns (false, nil) when ping ran and got no reply, and an error
// wrapping model.ErrProbeInconclusive when the probe could not complete.
func (p *Pinger) Reachable(ctx context.Context, addr string, attempts int, timeout time.Duration) (bool, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false, fmt.Errorf("%w: invalid address %q", model.ErrProbeInconclusive, addr)
	}
	if attempts <= 0 {
		attempts = 1
	}
	secs := int(timeout / time.Second)
	if secs <= 0 {
		secs = 1
	}

	deadline := time.Duration(attempts*secs)*time.Second + deadlineSlack
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	args := []string{"-n", "-q", "-c", strconv.Itoa(attempts), "-W", strconv.Itoa(secs)}
	if ip.To4() == nil {
		args = append(args, "-6")
	}
	args = append(args, ip.String())

	_, err := p.r.Output(ctx, "ping", args...)
	switch code := execx.ExitCode(err); {
	case err == nil:
		return true, nil
	case code == 1 && ctx.Err() == nil:
		// iputils: exit 1 means no reply was received.
		return false, nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return false, fmt.Errorf("%w: ping %s timed out after %s", model.ErrProbeInconclusive, ip, deadline)
	default:
		return false, fmt.Errorf("%w: %v", model.ErrProbeInconclusive, err)
	}
}
