package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"wgwatchdog/internal/clock"
	"wgwatchdog/internal/config"
	"wgwatchdog/internal/execx"
	"wgwatchdog/internal/journal"
	"wgwatchdog/internal/logging"
	"wgwatchdog/internal/model"
	"wgwatchdog/internal/probe"
	"wgwatchdog/internal/store"
	"wgwatchdog/internal/stunutil"
	"wgwatchdog/internal/watchdog"
	"wgwatchdog/internal/wireguard"
)

const statusJournalRows = 5

type statusReport struct {
	Interface string
	Mode      model.Mode
	Detail    string
	DetailErr error

	Peer      *model.PeerStatus
	PeerErr   error
	AgeSec    int64
	Reachable bool
	ProbeErr  error

	Record   *model.RestartRecord
	Cooldown watchdog.CooldownDecision
	StoreErr error

	Recent     []model.RunRecord
	JournalErr error

	NAT    *model.NATMapping
	NATErr error
}

type statusDeps struct {
	detail func(ctx context.Context, iface string) (string, error)
	status watchdog.StatusQuerier
	prober watchdog.Prober
	store  watchdog.Store
	clock  clock.Clock
	stun   func(ctx context.Context, servers []string, timeout time.Duration) (model.NATMapping, error)
}

func handleStatus(args []string) {
	_, cfg := loadConfig("wg-watchdog status", args)
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signalContext()
	defer cancel()

	runner := execx.NewOSRunner(nil, nil)
	mgr := wireguard.NewManager(runner, cfg.RestartMethod, cfg.ServiceUnit)
	status, closeStatus, err := statusQuerier(cfg, mgr)
	if err != nil {
		fatal(logger, cfg, err)
	}
	defer closeStatus()

	rep := collectStatus(ctx, cfg, statusDeps{
		detail: mgr.Status,
		status: status,
		prober: probe.NewPinger(runner),
		store:  store.NewFileStore(cfg.StateDir),
		clock:  clock.Real(),
		stun:   stunutil.Observe,
	})
	writeStatus(os.Stdout, rep)
}

// collectStatus gathers everything the status command prints. It never
// restarts the tunnel or writes state, and individual failures are reported
// inline rather than aborting.
func collectStatus(ctx context.Context, cfg config.Config, deps statusDeps) statusReport {
	now := deps.clock.Now().Unix()
	rep := statusReport{
		Interface: cfg.Interface,
		Mode:      watchdog.SelectMode(cfg.ForceRestart),
		AgeSec:    -1,
	}

	if deps.detail != nil {
		rep.Detail, rep.DetailErr = deps.detail(ctx, cfg.Interface)
	}

	peer, err := deps.status.PeerStatus(ctx, cfg.Interface)
	if err != nil {
		rep.PeerErr = err
	} else {
		rep.Peer = &peer
		rep.AgeSec = watchdog.HandshakeAge(peer, now)
		if peer.Address == "" {
			rep.ProbeErr = fmt.Errorf("%w: peer has no endpoint address", model.ErrProbeInconclusive)
		} else {
			timeout := time.Duration(cfg.PingTimeoutSeconds) * time.Second
			rep.Reachable, rep.ProbeErr = deps.prober.Reachable(ctx, peer.Address, cfg.PingAttempts, timeout)
		}
	}

	last, ok, err := deps.store.Load(cfg.Interface)
	switch {
	case err != nil:
		rep.StoreErr = err
	case ok:
		rep.Record = &last
		rep.Cooldown = watchdog.DecideCooldown(&last, now, cfg.RestartIntervalMinutes)
	default:
		rep.Cooldown = watchdog.DecideCooldown(nil, now, cfg.RestartIntervalMinutes)
	}

	if cfg.JournalPath != "" {
		items, err := journal.Read(cfg.JournalPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			rep.JournalErr = err
		}
		rep.Recent = journal.Tail(items, cfg.Interface, statusJournalRows)
	}

	if len(cfg.STUNServers) > 0 && deps.stun != nil {
		timeout := time.Duration(cfg.PingTimeoutSeconds) * time.Second
		nat, err := deps.stun(ctx, cfg.STUNServers, timeout)
		if err != nil {
			rep.NATErr = err
		} else {
			rep.NAT = &nat
		}
	}
	return rep
}

func writeStatus(w io.Writer, rep statusReport) {
	fmt.Fprintf(w, "interface: %s\n", rep.Interface)
	fmt.Fprintf(w, "mode: %s\n", rep.Mode)

	if rep.DetailErr != nil {
		fmt.Fprintf(w, "link: error: %v\n", rep.DetailErr)
	} else if rep.Detail != "" {
		fmt.Fprintln(w, rep.Detail)
	}

	if rep.PeerErr != nil {
		fmt.Fprintf(w, "peer: error: %v\n", rep.PeerErr)
	} else if rep.Peer != nil {
		fmt.Fprintf(w, "peer: %s\n", rep.Peer.PublicKey)
		fmt.Fprintf(w, "endpoint: %s\n", orNone(rep.Peer.Endpoint))
		if rep.AgeSec < 0 {
			fmt.Fprintln(w, "latest handshake: never")
		} else {
			fmt.Fprintf(w, "latest handshake: %s ago\n", time.Duration(rep.AgeSec)*time.Second)
		}
		switch {
		case rep.ProbeErr != nil:
			fmt.Fprintf(w, "reachable: unknown (%v)\n", rep.ProbeErr)
		default:
			fmt.Fprintf(w, "reachable: %t\n", rep.Reachable)
		}
	}

	switch {
	case rep.StoreErr != nil:
		fmt.Fprintf(w, "last forced restart: error: %v\n", rep.StoreErr)
	case rep.Record == nil:
		fmt.Fprintln(w, "last forced restart: never")
	default:
		fmt.Fprintf(w, "last forced restart: %s (%d min ago)\n",
			time.Unix(rep.Record.LastRestart, 0).UTC().Format(time.RFC3339), rep.Cooldown.ElapsedMinutes)
	}
	if rep.StoreErr == nil {
		if rep.Cooldown.Action == model.ActionRestart {
			fmt.Fprintln(w, "next forced restart: due")
		} else {
			fmt.Fprintf(w, "next forced restart: in %d min\n", rep.Cooldown.RemainingMinutes)
		}
	}

	if rep.NATErr != nil {
		fmt.Fprintf(w, "nat: error: %v\n", rep.NATErr)
	} else if rep.NAT != nil {
		fmt.Fprintf(w, "nat: %s (mapped %s)\n", rep.NAT.Type, rep.NAT.Address)
	}

	if rep.JournalErr != nil {
		fmt.Fprintf(w, "journal: error: %v\n", rep.JournalErr)
	}
	if len(rep.Recent) > 0 {
		fmt.Fprintln(w, "recent runs:")
		for _, r := range rep.Recent {
			line := fmt.Sprintf("  %s %-9s %-7s %s", r.Timestamp.UTC().Format(time.RFC3339), r.Mode, r.Action, r.Reason)
			if r.Error != "" {
				line += " error=" + r.Error
			}
			fmt.Fprintln(w, line)
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
