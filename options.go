package consensus

import (
	"time"

	"github.com/ngov17/yugabyte-db/internal/logger"
	"github.com/ngov17/yugabyte-db/internal/rafterrors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	minRetentionWindow     = time.Duration(1 * time.Second)
	maxRetentionWindow     = time.Duration(5 * time.Minute)
	defaultRetentionWindow = time.Duration(30 * time.Second)

	minCoarseLeaseDuration     = time.Duration(500 * time.Millisecond)
	maxCoarseLeaseDuration     = time.Duration(30 * time.Second)
	defaultCoarseLeaseDuration = time.Duration(2 * time.Second)

	minPhysicalLeaseDurationMicros     = int64(500_000)
	maxPhysicalLeaseDurationMicros     = int64(30_000_000)
	defaultPhysicalLeaseDurationMicros = int64(2_000_000)
)

type options struct {
	// retentionWindow bounds how long the retryable-requests filter
	// remembers a client request after it is first tracked.
	retentionWindow time.Duration

	// coarseLeaseDuration is the configured CoarseTimeLease span. It is
	// validated and stored but no Coordinator code path reads it: lease
	// expirations are whatever the caller passes to
	// SetMajorityReplicatedLeaseExpirationLocked.
	coarseLeaseDuration time.Duration

	// physicalLeaseDurationMicros is the equivalent span for the
	// PhysicalComponentLease, in hybrid-time microseconds. Like
	// coarseLeaseDuration it is stored but not read by the Coordinator.
	physicalLeaseDurationMicros int64

	// log is the debugging/event logger for the coordinator.
	log logger.Logger

	// registerer is where the coordinator's metrics collector registers
	// its gauges. A nil registerer disables metrics entirely.
	registerer prometheus.Registerer

	// clock abstracts time for tests.
	clock Clock

	// metadataStore persists term/vote state across restarts.
	metadataStore MetadataStore

	// walLog is the operation log the coordinator appends to.
	walLog Log
}

// Option configures a Coordinator at construction time.
type Option func(*options) error

// WithRetentionWindow sets how long the retryable-requests filter
// remembers a client request, measured from when it was first tracked.
func WithRetentionWindow(d time.Duration) Option {
	return func(o *options) error {
		if d < minRetentionWindow || d > maxRetentionWindow {
			return rafterrors.New("retention window value is invalid")
		}
		o.retentionWindow = d
		return nil
	}
}

// WithCoarseLeaseDuration sets the configured CoarseTimeLease span. The
// value is validated and stored; the Coordinator does not use it to
// compute any lease expiration.
func WithCoarseLeaseDuration(d time.Duration) Option {
	return func(o *options) error {
		if d < minCoarseLeaseDuration || d > maxCoarseLeaseDuration {
			return rafterrors.New("coarse lease duration value is invalid")
		}
		o.coarseLeaseDuration = d
		return nil
	}
}

// WithPhysicalLeaseDurationMicros sets the configured
// PhysicalComponentLease span, in hybrid-time microseconds. The value is
// validated and stored; the Coordinator does not use it to compute any
// lease expiration.
func WithPhysicalLeaseDurationMicros(micros int64) Option {
	return func(o *options) error {
		if micros < minPhysicalLeaseDurationMicros || micros > maxPhysicalLeaseDurationMicros {
			return rafterrors.New("physical lease duration value is invalid")
		}
		o.physicalLeaseDurationMicros = micros
		return nil
	}
}

// WithLogger sets the logger used by the coordinator.
func WithLogger(log logger.Logger) Option {
	return func(o *options) error {
		if log == nil {
			return rafterrors.New("logger must not be nil")
		}
		o.log = log
		return nil
	}
}

// WithMetricsRegisterer sets the Prometheus registerer the coordinator's
// metrics collector registers gauges with.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithClock overrides the coordinator's notion of time, for deterministic
// tests.
func WithClock(c Clock) Option {
	return func(o *options) error {
		if c == nil {
			return rafterrors.New("clock must not be nil")
		}
		o.clock = c
		return nil
	}
}

// WithMetadataStore overrides the default in-memory MetadataStore.
func WithMetadataStore(store MetadataStore) Option {
	return func(o *options) error {
		if store == nil {
			return errNilMetadataStore
		}
		o.metadataStore = store
		return nil
	}
}

// WithLog overrides the default in-memory Log.
func WithLog(l Log) Option {
	return func(o *options) error {
		if l == nil {
			return rafterrors.New("log must not be nil")
		}
		o.walLog = l
		return nil
	}
}
