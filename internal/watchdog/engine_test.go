package watchdog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"wgwatchdog/internal/clock"
	"wgwatchdog/internal/config"
	"wgwatchdog/internal/logging"
	"wgwatchdog/internal/model"
	"wgwatchdog/internal/store"
)

type fakeStatus struct {
	peer model.PeerStatus
	err  error
}

func (f *fakeStatus) PeerStatus(context.Context, string) (model.PeerStatus, error) {
	return f.peer, f.err
}

type fakeProber struct {
	reachable bool
	err       error
	calls     int
	addr      string
	attempts  int
	timeout   time.Duration
}

func (f *fakeProber) Reachable(_ context.Context, addr string, attempts int, timeout time.Duration) (bool, error) {
	f.calls++
	f.addr, f.attempts, f.timeout = addr, attempts, timeout
	return f.reachable, f.err
}

type fakeRestarter struct {
	err   error
	calls int
}

func (f *fakeRestarter) Restart(context.Context, string) error {
	f.calls++
	return f.err
}

type lockingStore struct {
	*store.Memory
	lockErr error
	locks   int
}

func (s *lockingStore) Lock(string) (func() error, error) {
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	s.locks++
	return func() error { return nil }, nil
}

type fixture struct {
	cfg       config.Config
	clock     *clock.FakeClock
	status    *fakeStatus
	prober    *fakeProber
	restarter *fakeRestarter
	store     *store.Memory
	journal   []model.RunRecord
	logs      bytes.Buffer
}

func newFixture(force bool) *fixture {
	cfg := config.Config{ForceRestart: force}
	config.ApplyDefaults(&cfg)
	return &fixture{
		cfg:       cfg,
		clock:     clock.Fake(time.Unix(nowEpoch, 0)),
		status:    &fakeStatus{peer: model.PeerStatus{PublicKey: "hub", Address: "39.1.2.3", LastHandshake: nowEpoch - 60}},
		prober:    &fakeProber{reachable: true},
		restarter: &fakeRestarter{},
		store:     store.NewMemory(),
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Status:    f.status,
		Prober:    f.prober,
		Restarter: f.restarter,
		Store:     f.store,
		Clock:     f.clock,
		Journal: func(r model.RunRecord) error {
			f.journal = append(f.journal, r)
			return nil
		},
		Logger: logging.NewWithWriter(&f.logs, "debug", "text"),
	}
}

func (f *fixture) engine() *Engine {
	return New(f.cfg, f.deps(), false)
}

func TestRunDetection_FreshHandshake(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	rec, err := f.engine().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Mode != model.ModeDetection || rec.Action != model.ActionNone || rec.HandshakeAgeSec != 60 {
		t.Fatalf("rec=%+v", rec)
	}
	if f.restarter.calls != 0 {
		t.Fatalf("restarts=%d", f.restarter.calls)
	}
	if f.prober.addr != "39.1.2.3" || f.prober.attempts != 1 || f.prober.timeout != 2*time.Second {
		t.Fatalf("probe addr=%s attempts=%d timeout=%s", f.prober.addr, f.prober.attempts, f.prober.timeout)
	}
	if f.store.Writes() != 0 {
		t.Fatalf("detection mode wrote state")
	}
}

func TestRunDetection_ScenarioA_StaleReachableRestarts(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	f.status.peer.LastHandshake = nowEpoch - 20*60
	rec, err := f.engine().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Action != model.ActionRestart || f.restarter.calls != 1 {
		t.Fatalf("rec=%+v restarts=%d", rec, f.restarter.calls)
	}
	if f.store.Writes() != 0 {
		t.Fatalf("detection mode wrote state")
	}
}

func TestRunDetection_ScenarioB_StaleUnreachable(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	f.status.peer.LastHandshake = nowEpoch - 20*60
	f.prober.reachable = false
	rec, err := f.engine().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Action != model.ActionNone || rec.Reason != "peer unreachable" || f.restarter.calls != 0 {
		t.Fatalf("rec=%+v restarts=%d", rec, f.restarter.calls)
	}
}

func TestRunDetection_InconclusiveProbeIsUnreachable(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	f.status.peer.LastHandshake = 0
	f.prober.reachable = true
	f.prober.err = fmt.Errorf("%w: ping: exit status 2", model.ErrProbeInconclusive)
	rec, err := f.engine().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Action != model.ActionNone || rec.Reachable || rec.Reason != "probe inconclusive" {
		t.Fatalf("rec=%+v", rec)
	}
	if f.restarter.calls != 0 {
		t.Fatalf("restarts=%d", f.restarter.calls)
	}
	if !bytes.Contains(f.logs.Bytes(), []byte("inconclusive")) {
		t.Fatalf("missing warning: %s", f.logs.String())
	}
}

func TestRunDetection_PeerWithoutEndpointSkipsProbe(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	f.status.peer = model.PeerStatus{PublicKey: "roaming"}
	rec, err := f.engine().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.prober.calls != 0 || rec.Action != model.ActionNone || rec.HandshakeAgeSec != -1 {
		t.Fatalf("rec=%+v probes=%d", rec, f.prober.calls)
	}
}

func TestRunDetection_NoPeerIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	f.status.err = fmt.Errorf("%w: wg0", model.ErrNoPeer)
	rec, err := f.engine().Run(context.Background())
	if !errors.Is(err, model.ErrNoPeer) {
		t.Fatalf("err=%v", err)
	}
	if f.prober.calls != 0 || f.restarter.calls != 0 {
		t.Fatalf("probes=%d restarts=%d", f.prober.calls, f.restarter.calls)
	}
	if len(f.journal) != 1 || f.journal[0].Error == "" || rec.Error == "" {
		t.Fatalf("journal=%+v", f.journal)
	}
}

func TestRunDetection_RestartFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	f.status.peer.LastHandshake = 0
	f.restarter.err = errors.New("Job for wg-quick@wg0.service failed")
	_, err := f.engine().Run(context.Background())
	if !errors.Is(err, model.ErrRestartFailed) {
		t.Fatalf("err=%v", err)
	}
	if f.restarter.calls != 1 {
		t.Fatalf("restart retried: %d", f.restarter.calls)
	}
}

func TestRun_PreflightFailuresAbortBeforeAction(t *testing.T) {
	t.Parallel()

	for _, want := range []error{model.ErrPrivilege, model.ErrInterfaceNotFound} {
		f := newFixture(true)
		deps := f.deps()
		if want == model.ErrPrivilege {
			deps.Privilege = func() error { return fmt.Errorf("%w: euid 1000", model.ErrPrivilege) }
		} else {
			deps.Links = linkFunc(func(iface string) error { return fmt.Errorf("%w: %s", model.ErrInterfaceNotFound, iface) })
		}
		_, err := New(f.cfg, deps, false).Run(context.Background())
		if !errors.Is(err, want) {
			t.Fatalf("want=%v err=%v", want, err)
		}
		if f.restarter.calls != 0 || f.store.Writes() != 0 {
			t.Fatalf("acted despite %v", want)
		}
	}
}

type linkFunc func(iface string) error

func (f linkFunc) CheckLink(iface string) error { return f(iface) }

func TestRunForced_ScenarioC(t *testing.T) {
	t.Parallel()

	f := newFixture(true)
	e := f.engine()

	rec, err := e.Run(context.Background())
	if err != nil || rec.Action != model.ActionRestart || rec.Reason != "no previous forced restart" {
		t.Fatalf("first rec=%+v err=%v", rec, err)
	}
	saved, ok, _ := f.store.Load("wg0")
	if !ok || saved.LastRestart != nowEpoch {
		t.Fatalf("saved=%+v ok=%v", saved, ok)
	}

	f.clock.Advance(29 * time.Minute)
	rec, err = e.Run(context.Background())
	if err != nil || rec.Action != model.ActionNone || rec.RemainingMinutes != 1 {
		t.Fatalf("t0+29m rec=%+v err=%v", rec, err)
	}

	f.clock.Advance(time.Minute)
	rec, err = e.Run(context.Background())
	if err != nil || rec.Action != model.ActionRestart || rec.Reason != "cooldown elapsed" {
		t.Fatalf("t0+30m rec=%+v err=%v", rec, err)
	}
	saved, _, _ = f.store.Load("wg0")
	if saved.LastRestart != nowEpoch+30*60 {
		t.Fatalf("record not overwritten: %+v", saved)
	}
	if f.restarter.calls != 2 || f.store.Writes() != 2 {
		t.Fatalf("restarts=%d writes=%d", f.restarter.calls, f.store.Writes())
	}
	if f.prober.calls != 0 {
		t.Fatalf("forced mode probed the peer")
	}
}

func TestRunForced_ScenarioD_FailedRestartKeepsRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(true)
	prev := model.RestartRecord{Interface: "wg0", LastRestart: nowEpoch - 3600}
	_ = f.store.Save(prev)
	f.restarter.err = errors.New("exit status 1")

	_, err := f.engine().Run(context.Background())
	if !errors.Is(err, model.ErrRestartFailed) {
		t.Fatalf("err=%v", err)
	}
	got, _, _ := f.store.Load("wg0")
	if got != prev || f.store.Writes() != 1 {
		t.Fatalf("record changed: %+v writes=%d", got, f.store.Writes())
	}

	// The next run retries immediately instead of waiting out the interval.
	f.restarter.err = nil
	rec, err := f.engine().Run(context.Background())
	if err != nil || rec.Action != model.ActionRestart {
		t.Fatalf("retry rec=%+v err=%v", rec, err)
	}
}

func TestRunForced_RepeatedWithinCooldownNeverWrites(t *testing.T) {
	t.Parallel()

	f := newFixture(true)
	_ = f.store.Save(RecordRestart("wg0", nowEpoch))
	e := f.engine()
	for i := 0; i < 5; i++ {
		rec, err := e.Run(context.Background())
		if err != nil || rec.Action != model.ActionNone {
			t.Fatalf("run %d rec=%+v err=%v", i, rec, err)
		}
	}
	if f.store.Writes() != 1 || f.restarter.calls != 0 {
		t.Fatalf("writes=%d restarts=%d", f.store.Writes(), f.restarter.calls)
	}
}

func TestRunForced_DryRun(t *testing.T) {
	t.Parallel()

	f := newFixture(true)
	rec, err := New(f.cfg, f.deps(), true).Run(context.Background())
	if err != nil || rec.Action != model.ActionRestart {
		t.Fatalf("rec=%+v err=%v", rec, err)
	}
	if f.restarter.calls != 0 || f.store.Writes() != 0 {
		t.Fatalf("dry run acted: restarts=%d writes=%d", f.restarter.calls, f.store.Writes())
	}
}

func TestRunForced_StateLock(t *testing.T) {
	t.Parallel()

	f := newFixture(true)
	f.cfg.StateLock = true
	ls := &lockingStore{Memory: f.store}
	deps := f.deps()
	deps.Store = ls

	rec, err := New(f.cfg, deps, false).Run(context.Background())
	if err != nil || rec.Action != model.ActionRestart || ls.locks != 1 {
		t.Fatalf("rec=%+v err=%v locks=%d", rec, err, ls.locks)
	}

	ls.lockErr = model.ErrStateLocked
	f.clock.Advance(time.Hour)
	rec, err = New(f.cfg, deps, false).Run(context.Background())
	if err != nil || rec.Action != model.ActionNone || f.restarter.calls != 1 {
		t.Fatalf("contended rec=%+v err=%v restarts=%d", rec, err, f.restarter.calls)
	}
}

func TestRun_JournalFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	f := newFixture(false)
	deps := f.deps()
	deps.Journal = func(model.RunRecord) error { return errors.New("disk full") }
	if _, err := New(f.cfg, deps, false).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Contains(f.logs.Bytes(), []byte("disk full")) {
		t.Fatalf("journal failure not logged: %s", f.logs.String())
	}
}
