package internaldefs

import (
	"strconv"

	"github.com/bugforge/authcore"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events discarded under backpressure.
const AuditDroppedName = "authcore_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: authcore.MetricTokenIssued, Name: "authcore_token_issued_total", Help: "Issued token pairs."},
	{ID: authcore.MetricIssueFailure, Name: "authcore_issue_failure_total", Help: "Failed issue operations."},
	{ID: authcore.MetricValidateSuccess, Name: "authcore_validate_success_total", Help: "Tokens that passed validation."},
	{ID: authcore.MetricValidateUnauthenticated, Name: "authcore_validate_unauthenticated_total", Help: "Tokens rejected for signature, expiry, or format."},
	{ID: authcore.MetricValidateWrongType, Name: "authcore_validate_wrong_type_total", Help: "Tokens presented as the wrong type."},
	{ID: authcore.MetricValidateRevoked, Name: "authcore_validate_revoked_total", Help: "Blacklisted or id-less tokens."},
	{ID: authcore.MetricValidateMissingSubject, Name: "authcore_validate_missing_subject_total", Help: "Tokens without a usable subject."},
	{ID: authcore.MetricValidateSessionRevoked, Name: "authcore_validate_session_revoked_total", Help: "Tokens from a superseded session epoch."},
	{ID: authcore.MetricRotateSuccess, Name: "authcore_rotate_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRotateFailure, Name: "authcore_rotate_failure_total", Help: "Failed refresh rotations."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Refresh tokens presented after being superseded."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logouts."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricRateLimitAllowed, Name: "authcore_rate_limit_allowed_total", Help: "Requests admitted by the rate limiter."},
	{ID: authcore.MetricRateLimitDenied, Name: "authcore_rate_limit_denied_total", Help: "Requests denied by the rate limiter."},
	{ID: authcore.MetricStoreUnavailable, Name: "authcore_store_unavailable_total", Help: "Operations failed closed because the store was unreachable."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Validate latency."},
	{ID: authcore.MetricRotateLatency, Name: "authcore_rotate_latency_seconds", Help: "Rotate latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine keeps
// one more bucket for everything above the last bound.
var HistogramUpperBounds = [...]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketCount is the number of buckets per histogram, +Inf included.
const BucketCount = len(HistogramUpperBounds) + 1

// BoundLabel formats bucket i for an "le" label.
func BoundLabel(i int) string {
	if i >= len(HistogramUpperBounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(HistogramUpperBounds[i], 'f', -1, 64)
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := range raw {
		running += raw[i]
		out[i] = running
	}
	return out
}
