package internaldefs

import (
	authcore "github.com/flowforward/authcore"
)

// CounterDef binds an engine metric ID to its stable exposition name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in a fixed exposition order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricTokenIssued, Name: "authcore_token_issued_total", Help: "Issued token pairs."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: authcore.MetricRefreshExpired, Name: "authcore_refresh_expired_total", Help: "Refresh attempts on expired tokens."},
	{ID: authcore.MetricReplayDetected, Name: "authcore_replay_detected_total", Help: "Detected refresh token replays."},
	{ID: authcore.MetricFamilyRevoked, Name: "authcore_family_revoked_total", Help: "Token families revoked by replay escalation."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logout operations."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
}
