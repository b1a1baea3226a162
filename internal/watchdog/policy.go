package watchdog

import "wgwatchdog/internal/model"

// SelectMode picks the policy for a run. Forced restarts replace detection
// entirely; the two never run together.
func SelectMode(forceRestart bool) model.Mode {
	if forceRestart {
		return model.ModeForced
	}
	return model.ModeDetection
}

// DecideDetection reports whether the tunnel is frozen: the peer answers at
// the network layer but its last handshake is older than thresholdMinutes.
// Unreachability alone never triggers a restart.
func DecideDetection(peer model.PeerStatus, reachable bool, now int64, thresholdMinutes int) model.Action {
	cutoff := now - int64(thresholdMinutes)*60
	if reachable && peer.LastHandshake < cutoff {
		return model.ActionRestart
	}
	return model.ActionNone
}

// CooldownDecision is the outcome of DecideCooldown.
type CooldownDecision struct {
	Action model.Action
	// First is set when no previous restart was recorded.
	First          bool
	ElapsedMinutes int64
	// RemainingMinutes is how long until the next forced restart is due; 0
	// when Action is restart.
	RemainingMinutes int64
}

// DecideCooldown reports whether a scheduled forced restart is due. A nil
// record means the interface was never force-restarted, which is always due.
// Elapsed time is counted in whole minutes, truncated.
func DecideCooldown(rec *model.RestartRecord, now int64, intervalMinutes int) CooldownDecision {
	if rec == nil {
		return CooldownDecision{Action: model.ActionRestart, First: true}
	}
	elapsed := (now - rec.LastRestart) / 60
	if elapsed >= int64(intervalMinutes) {
		return CooldownDecision{Action: model.ActionRestart, ElapsedMinutes: elapsed}
	}
	return CooldownDecision{
		Action:           model.ActionNone,
		ElapsedMinutes:   elapsed,
		RemainingMinutes: int64(intervalMinutes) - elapsed,
	}
}

// RecordRestart builds the record persisted after a successful forced restart.
func RecordRestart(iface string, now int64) model.RestartRecord {
	return model.RestartRecord{Interface: iface, LastRestart: now}
}

// HandshakeAge returns seconds since the peer's last handshake, or -1 when
// it never completed one.
func HandshakeAge(peer model.PeerStatus, now int64) int64 {
	if peer.LastHandshake <= 0 {
		return -1
	}
	return now - peer.LastHandshake
}
