package clocksync

import (
	"errors"
	"math"
	"sync"
	"time"
)

// Estimation failures surfaced to callers.
var (
	ErrInsufficientSamples = errors.New("clocksync: not enough samples")
	ErrExcessiveVariance   = errors.New("clocksync: round-trip variance too high")
)

// Defaults for the tunables exposed through configuration.
const (
	DefaultWindowSize      = 16
	DefaultSmoothingFactor = 0.1
	DefaultSnapBound       = 250 * time.Millisecond

	// rttOutlierSigma rejects a sample whose round trip strays this many
	// standard deviations from the window mean.
	rttOutlierSigma = 3.0
)

// Config holds the estimator tunables.
type Config struct {
	// WindowSize is the number of recent samples retained for drift and
	// variance computation.
	WindowSize int
	// SmoothingFactor is the exponential smoothing weight applied to each
	// accepted offset sample (0 < factor <= 1).
	SmoothingFactor float64
	// SnapBound is the desync beyond which smoothing is skipped and the
	// estimate snaps to the newest sample.
	SnapBound time.Duration
}

func (c Config) withDefaults() Config {
	if c.WindowSize < 2 {
		c.WindowSize = DefaultWindowSize
	}
	if c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		c.SmoothingFactor = DefaultSmoothingFactor
	}
	if c.SnapBound <= 0 {
		c.SnapBound = DefaultSnapBound
	}
	return c
}

type sample struct {
	at     time.Time
	offset time.Duration
	rtt    time.Duration
}

// Estimator maintains the current offset estimate. It is safe for concurrent
// use: the sync loop feeds it samples while any component converts
// timestamps.
type Estimator struct {
	mu      sync.Mutex
	cfg     Config
	window  []sample
	offset  time.Duration
	drift   float64 // seconds of offset change per second of local time
	seeded  bool
	lastAt  time.Time
	snapped uint64
}

// NewEstimator builds an estimator; zero-value config fields fall back to
// the package defaults.
func NewEstimator(cfg Config) *Estimator {
	return &Estimator{cfg: cfg.withDefaults()}
}

// AddSample folds one completed round trip into the estimate. t0 and t2 are
// local send/receive times, t1 the peer's reply timestamp. An outlier round
// trip returns ErrExcessiveVariance and leaves the estimate untouched.
func (e *Estimator) AddSample(t0, t1, t2 time.Time) error {
	if t2.Before(t0) {
		return ErrExcessiveVariance
	}
	rtt := t2.Sub(t0)
	raw := (t1.Sub(t0) + t1.Sub(t2)) / 2

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.window) >= 2 {
		mean, stddev := e.rttStats()
		if stddev > 0 && float64(rtt) > float64(mean)+rttOutlierSigma*stddev {
			return ErrExcessiveVariance
		}
	}

	e.window = append(e.window, sample{at: t2, offset: raw, rtt: rtt})
	if len(e.window) > e.cfg.WindowSize {
		e.window = e.window[1:]
	}

	switch {
	case !e.seeded:
		e.offset = raw
		e.seeded = true
	case absDuration(raw-e.offset) > e.cfg.SnapBound:
		// Too far gone to glide: snap, then let smoothing resume.
		e.offset = raw
		e.snapped++
	default:
		e.offset += time.Duration(e.cfg.SmoothingFactor * float64(raw-e.offset))
	}
	e.lastAt = t2
	e.drift = e.regressDrift()
	return nil
}

// Offset returns the current smoothed offset (peer clock minus local clock).
// With fewer than two window samples it returns ErrInsufficientSamples along
// with the last known-good value, which callers should keep using.
func (e *Estimator) Offset() (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.window) < 2 {
		return e.offset, ErrInsufficientSamples
	}
	return e.offset, nil
}

// Drift returns the estimated drift rate in seconds per second.
func (e *Estimator) Drift() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drift
}

// Variance returns the standard deviation of round-trip times in the window.
func (e *Estimator) Variance() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, stddev := e.rttStats()
	return time.Duration(stddev)
}

// LastSync returns the local receive time of the newest accepted sample.
func (e *Estimator) LastSync() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAt
}

// Snaps returns how many times the estimate bypassed smoothing.
func (e *Estimator) Snaps() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapped
}

// LocalToShared converts a local timestamp into the shared (peer) time base,
// extrapolating drift since the last sync.
func (e *Estimator) LocalToShared(t time.Time) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return t.Add(e.offset + e.driftSince(t))
}

// SharedToLocal converts a shared-time-base timestamp back to local time.
func (e *Estimator) SharedToLocal(t time.Time) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return t.Add(-(e.offset + e.driftSince(t)))
}

func (e *Estimator) driftSince(t time.Time) time.Duration {
	if e.lastAt.IsZero() || e.drift == 0 {
		return 0
	}
	return time.Duration(e.drift * t.Sub(e.lastAt).Seconds() * float64(time.Second))
}

func (e *Estimator) rttStats() (time.Duration, float64) {
	if len(e.window) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range e.window {
		sum += float64(s.rtt)
	}
	mean := sum / float64(len(e.window))
	var sq float64
	for _, s := range e.window {
		d := float64(s.rtt) - mean
		sq += d * d
	}
	return time.Duration(mean), math.Sqrt(sq / float64(len(e.window)))
}

// regressDrift runs a least-squares fit of offset against local time across
// the window. Slope is dimensionless (seconds per second).
func (e *Estimator) regressDrift() float64 {
	n := len(e.window)
	if n < 2 {
		return 0
	}
	base := e.window[0].at
	var sumX, sumY, sumXY, sumXX float64
	for _, s := range e.window {
		x := s.at.Sub(base).Seconds()
		y := s.offset.Seconds()
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / denom
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
