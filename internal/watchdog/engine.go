package watchdog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wgwatchdog/internal/clock"
	"wgwatchdog/internal/config"
	"wgwatchdog/internal/model"
)

// StatusQuerier reads the monitored peer of an interface without changing it.
type StatusQuerier interface {
	PeerStatus(ctx context.Context, iface string) (model.PeerStatus, error)
}

// Prober checks network-layer reachability of a peer address.
type Prober interface {
	Reachable(ctx context.Context, addr string, attempts int, timeout time.Duration) (bool, error)
}

// Restarter performs a blocking restart of the tunnel.
type Restarter interface {
	Restart(ctx context.Context, iface string) error
}

// Store persists the last forced restart per interface.
type Store interface {
	Load(iface string) (model.RestartRecord, bool, error)
	Save(rec model.RestartRecord) error
}

// Locker is implemented by stores that can serialize forced-mode runs for
// one interface across processes.
type Locker interface {
	Lock(iface string) (unlock func() error, err error)
}

// LinkChecker verifies the interface exists on the host.
type LinkChecker interface {
	CheckLink(iface string) error
}

// Deps are the collaborators of an Engine. Links, Privilege and Journal are
// optional.
type Deps struct {
	Status    StatusQuerier
	Prober    Prober
	Restarter Restarter
	Store     Store
	Clock     clock.Clock
	Links     LinkChecker
	Privilege func() error
	Journal   func(model.RunRecord) error
	Logger    *logrus.Logger
}

// Engine runs one watchdog invocation.
type Engine struct {
	cfg    config.Config
	deps   Deps
	dryRun bool
	log    *logrus.Entry
}

// New returns an Engine. With dryRun set it decides and logs but never
// restarts the tunnel or writes state.
func New(cfg config.Config, deps Deps, dryRun bool) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		dryRun: dryRun,
		log:    logger.WithField("iface", cfg.Interface),
	}
}

// Run executes exactly one policy, selected by the force_restart setting,
// and returns what it did. Errors are fatal for the run; nothing is retried.
func (e *Engine) Run(ctx context.Context) (model.RunRecord, error) {
	now := e.deps.Clock.Now()
	rec := model.RunRecord{
		Timestamp:       now.UTC(),
		Interface:       e.cfg.Interface,
		Mode:            SelectMode(e.cfg.ForceRestart),
		Action:          model.ActionNone,
		HandshakeAgeSec: -1,
	}

	err := e.preflight()
	if err == nil {
		switch rec.Mode {
		case model.ModeForced:
			err = e.runForced(ctx, now.Unix(), &rec)
		default:
			err = e.runDetection(ctx, now.Unix(), &rec)
		}
	}
	if err != nil {
		rec.Error = err.Error()
	}

	e.report(rec)
	return rec, err
}

func (e *Engine) preflight() error {
	if e.deps.Privilege != nil {
		if err := e.deps.Privilege(); err != nil {
			return err
		}
	}
	if e.deps.Links != nil {
		if err := e.deps.Links.CheckLink(e.cfg.Interface); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runDetection(ctx context.Context, now int64, rec *model.RunRecord) error {
	peer, err := e.deps.Status.PeerStatus(ctx, e.cfg.Interface)
	if err != nil {
		return err
	}
	rec.HandshakeAgeSec = HandshakeAge(peer, now)
	log := e.log.WithFields(logrus.Fields{
		"peer":          peer.PublicKey,
		"endpoint":      peer.Endpoint,
		"handshake_age": rec.HandshakeAgeSec,
	})

	reachable, probeErr := e.probe(ctx, peer)
	if probeErr != nil {
		log.WithError(probeErr).Warn("reachability probe inconclusive, treating peer as unreachable")
	}
	rec.Reachable = reachable

	rec.Action = DecideDetection(peer, reachable, now, e.cfg.HandshakeThresholdMinutes)
	switch {
	case rec.Action == model.ActionRestart:
		rec.Reason = "handshake stale while peer reachable"
	case probeErr != nil:
		rec.Reason = "probe inconclusive"
	case !reachable:
		rec.Reason = "peer unreachable"
	default:
		rec.Reason = "handshake fresh"
	}
	log.WithFields(logrus.Fields{"reachable": reachable, "action": rec.Action}).Debug(rec.Reason)

	if rec.Action != model.ActionRestart {
		return nil
	}
	return e.restart(ctx)
}

func (e *Engine) probe(ctx context.Context, peer model.PeerStatus) (bool, error) {
	if peer.Address == "" {
		return false, fmt.Errorf("%w: peer %s has no endpoint address", model.ErrProbeInconclusive, peer.PublicKey)
	}
	timeout := time.Duration(e.cfg.PingTimeoutSeconds) * time.Second
	reachable, err := e.deps.Prober.Reachable(ctx, peer.Address, e.cfg.PingAttempts, timeout)
	if err != nil {
		return false, err
	}
	return reachable, nil
}

func (e *Engine) runForced(ctx context.Context, now int64, rec *model.RunRecord) error {
	if e.cfg.StateLock && !e.dryRun {
		if locker, ok := e.deps.Store.(Locker); ok {
			unlock, err := locker.Lock(e.cfg.Interface)
			if errors.Is(err, model.ErrStateLocked) {
				rec.Reason = "another run holds the state lock"
				return nil
			}
			if err != nil {
				return err
			}
			defer func() {
				if err := unlock(); err != nil {
					e.log.WithError(err).Warn("release state lock")
				}
			}()
		}
	}

	prev, ok, err := e.deps.Store.Load(e.cfg.Interface)
	if err != nil {
		return fmt.Errorf("load restart record: %w", err)
	}
	var last *model.RestartRecord
	if ok {
		last = &prev
	}

	d := DecideCooldown(last, now, e.cfg.RestartIntervalMinutes)
	rec.Action = d.Action
	rec.RemainingMinutes = d.RemainingMinutes
	switch {
	case d.Action == model.ActionNone:
		rec.Reason = "cooldown active"
		e.log.WithFields(logrus.Fields{
			"elapsed_min":   d.ElapsedMinutes,
			"remaining_min": d.RemainingMinutes,
		}).Debug("forced restart not due yet")
		return nil
	case d.First:
		rec.Reason = "no previous forced restart"
	default:
		rec.Reason = "cooldown elapsed"
	}

	if err := e.restart(ctx); err != nil {
		return err
	}
	if e.dryRun {
		return nil
	}
	if err := e.deps.Store.Save(RecordRestart(e.cfg.Interface, now)); err != nil {
		return fmt.Errorf("save restart record: %w", err)
	}
	return nil
}

func (e *Engine) restart(ctx context.Context) error {
	if e.dryRun {
		e.log.Info("dry run, skipping restart")
		return nil
	}
	e.log.Info("restarting tunnel")
	if err := e.deps.Restarter.Restart(ctx, e.cfg.Interface); err != nil {
		return fmt.Errorf("%w: %s: %v", model.ErrRestartFailed, e.cfg.Interface, err)
	}
	return nil
}

func (e *Engine) report(rec model.RunRecord) {
	fields := logrus.Fields{
		"mode":   rec.Mode,
		"action": rec.Action,
		"reason": rec.Reason,
	}
	if rec.Mode == model.ModeDetection {
		fields["handshake_age"] = rec.HandshakeAgeSec
		fields["reachable"] = rec.Reachable
	}
	if rec.RemainingMinutes > 0 {
		fields["remaining_min"] = rec.RemainingMinutes
	}
	entry := e.log.WithFields(fields)
	if rec.Error == "" {
		entry.Info("watchdog run complete")
	}

	if e.deps.Journal == nil {
		return
	}
	if err := e.deps.Journal(rec); err != nil {
		e.log.WithError(err).Warn("append journal")
	}
}
