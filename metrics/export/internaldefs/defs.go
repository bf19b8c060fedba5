package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one in-process counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one in-process latency histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricRefreshIssued, Name: "gosession_refresh_issued_total", Help: "Refresh tokens issued for new chains."},
	{ID: goSession.MetricRefreshValid, Name: "gosession_refresh_valid_total", Help: "Refresh token validations that succeeded."},
	{ID: goSession.MetricRefreshInvalid, Name: "gosession_refresh_invalid_total", Help: "Refresh token validations that failed."},
	{ID: goSession.MetricAccessIssued, Name: "gosession_access_issued_total", Help: "Access tokens issued."},
	{ID: goSession.MetricAccessValid, Name: "gosession_access_valid_total", Help: "Access token validations that succeeded."},
	{ID: goSession.MetricAccessInvalid, Name: "gosession_access_invalid_total", Help: "Access token validations that failed."},
	{ID: goSession.MetricRotationSuccess, Name: "gosession_rotation_success_total", Help: "Rotations that created a new child."},
	{ID: goSession.MetricRotationReplay, Name: "gosession_rotation_replay_total", Help: "Rotations answered with an existing child."},
	{ID: goSession.MetricRotationRaceLost, Name: "gosession_rotation_race_lost_total", Help: "Rotations that lost the parent compare-and-swap."},
	{ID: goSession.MetricRotationRejected, Name: "gosession_rotation_rejected_total", Help: "Rotations rejected as invalid_refresh_token."},
	{ID: goSession.MetricIdleWindowElapsed, Name: "gosession_idle_window_elapsed_total", Help: "Rotations rejected after the idle window."},
	{ID: goSession.MetricMaxWindowElapsed, Name: "gosession_max_window_elapsed_total", Help: "Rotations rejected after the absolute window."},
	{ID: goSession.MetricSessionInvalidated, Name: "gosession_session_invalidated_total", Help: "Session records deleted by invalidation."},
	{ID: goSession.MetricSessionExpiredOnRead, Name: "gosession_session_expired_on_read_total", Help: "Expired session records deleted on read."},
	{ID: goSession.MetricCleanupRun, Name: "gosession_cleanup_run_total", Help: "Background expired-session cleanup runs."},
	{ID: goSession.MetricCleanupFailure, Name: "gosession_cleanup_failure_total", Help: "Background cleanup runs that failed."},
	{ID: goSession.MetricCleanupDeleted, Name: "gosession_cleanup_deleted_total", Help: "Session records deleted by background cleanup."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricValidateLatency, Name: "gosession_validate_latency_seconds", Help: "Refresh token validation latency."},
}

// HistogramUpperBounds are the bucket upper bounds in seconds, matching the
// in-process histogram. The last bucket is unbounded.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets copies raw into a fixed eight-bucket array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
