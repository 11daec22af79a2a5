package internaldefs

import (
	"github.com/ohgun/credgate"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   credgate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   credgate.MetricID
	Name string
	Help string
}

// Namespace prefixes every exported series.
const Namespace = "credgate"

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = Namespace + "_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: credgate.MetricLoginSuccess, Name: "credgate_login_success_total", Help: "Credential pairs issued at sign-in."},
	{ID: credgate.MetricLoginFailure, Name: "credgate_login_failure_total", Help: "Sign-in issuance failures."},
	{ID: credgate.MetricRefreshSuccess, Name: "credgate_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: credgate.MetricRefreshFailure, Name: "credgate_refresh_failure_total", Help: "Failed refresh attempts of any kind."},
	{ID: credgate.MetricReplayDetected, Name: "credgate_refresh_replay_detected_total", Help: "Refresh attempts with a retired credential."},
	{ID: credgate.MetricRefreshUnknown, Name: "credgate_refresh_unknown_total", Help: "Refresh attempts with a credential unknown to the store."},
	{ID: credgate.MetricRefreshRateLimited, Name: "credgate_refresh_rate_limited_total", Help: "Refresh attempts rejected by the throttle."},
	{ID: credgate.MetricOwnerNotFound, Name: "credgate_owner_not_found_total", Help: "Refresh attempts whose owner no longer exists."},
	{ID: credgate.MetricStoreUnavailable, Name: "credgate_store_unavailable_total", Help: "Operations failed by the credential store."},
	{ID: credgate.MetricLogout, Name: "credgate_logout_total", Help: "Logout operations."},
	{ID: credgate.MetricRevokeAll, Name: "credgate_revoke_all_total", Help: "Bulk revocations."},
	{ID: credgate.MetricVerifySuccess, Name: "credgate_verify_success_total", Help: "Accepted access credentials."},
	{ID: credgate.MetricVerifyFailure, Name: "credgate_verify_failure_total", Help: "Rejected access credentials."},
}

var HistogramDefs = []HistogramDef{
	{ID: credgate.MetricRefreshLatency, Name: "credgate_refresh_latency_seconds", Help: "Refresh latency."},
	{ID: credgate.MetricVerifyLatency, Name: "credgate_verify_latency_seconds", Help: "Access credential verification latency."},
}

// UpperBounds are the finite bucket limits in seconds. The last engine bucket
// is the +Inf overflow and has no entry here.
var UpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BoundSuffix names each bucket, including the overflow, for exporters that
// cannot carry an le label.
var BoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// BucketCount is the number of engine buckets including overflow.
const BucketCount = 8

// NormalizeBuckets copies raw into a fixed array, zero padding or truncating.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last
// element is the total sample count.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}

// ApproxSum estimates the sample sum using each bucket's upper bound. The
// engine does not record exact sums; overflow samples count at the largest
// finite bound.
func ApproxSum(raw [BucketCount]uint64) float64 {
	var sum float64
	for i, v := range raw {
		bound := UpperBounds[len(UpperBounds)-1]
		if i < len(UpperBounds) {
			bound = UpperBounds[i]
		}
		sum += float64(v) * bound
	}
	return sum
}
