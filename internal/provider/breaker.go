package provider

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	// StateClosed: calls flow normally.
	StateClosed CircuitState = iota
	// StateOpen: calls fail fast with ErrCircuitOpen.
	StateOpen
	// StateHalfOpen: one probe call is let through.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when a half-open breaker already has a
	// probe in flight.
	ErrTooManyRequests = errors.New("too many requests while circuit is half-open")
)

// CircuitBreaker stops calling a failing backend for a cooldown period.
// It never retries: a rejected call is returned to the caller as is.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures uint32
	timeout     time.Duration
	now         func() time.Time

	state           CircuitState
	failures        uint32
	lastFailureTime time.Time
	probing         bool

	onChange func(from, to CircuitState)

	totalRequests    uint64
	failedRequests   uint64
	rejectedRequests uint64
}

// NewCircuitBreaker opens after maxFailures consecutive failures and probes
// again once timeout has elapsed.
func NewCircuitBreaker(maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
		state:       StateClosed,
	}
}

// OnStateChange registers fn to be called (outside the lock) on every
// transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to CircuitState)) {
	cb.mu.Lock()
	cb.onChange = fn
	cb.mu.Unlock()
}

// Execute runs fn unless the breaker is open. Errors for which countable
// returns false do not count towards opening the circuit.
func (cb *CircuitBreaker) Execute(fn func() error, countable func(error) bool) error {
	probe, err := cb.before()
	if err != nil {
		return err
	}

	err = fn()
	cb.after(err, countable, probe)
	return err
}

// before admits a call. probe is true for the single call let through in
// half-open.
func (cb *CircuitBreaker) before() (probe bool, err error) {
	cb.mu.Lock()
	cb.totalRequests++

	var changed func()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) <= cb.timeout {
			cb.rejectedRequests++
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		changed = cb.setState(StateHalfOpen)
		cb.probing = true
		probe = true
	case StateHalfOpen:
		if cb.probing {
			cb.rejectedRequests++
			cb.mu.Unlock()
			return false, ErrTooManyRequests
		}
		cb.probing = true
		probe = true
	}
	cb.mu.Unlock()

	if changed != nil {
		changed()
	}
	return probe, nil
}

// after records the outcome. Calls admitted before the circuit opened
// settle the counters only; the half-open state is decided by the probe.
func (cb *CircuitBreaker) after(err error, countable func(error) bool, probe bool) {
	cb.mu.Lock()
	var changed func()

	failed := err != nil && (countable == nil || countable(err))
	if probe {
		cb.probing = false
	}

	switch {
	case probe && failed:
		cb.failedRequests++
		cb.lastFailureTime = cb.now()
		changed = cb.setState(StateOpen)
	case probe:
		cb.failures = 0
		changed = cb.setState(StateClosed)
	case failed:
		cb.failedRequests++
		if cb.state != StateClosed {
			break
		}
		cb.failures++
		cb.lastFailureTime = cb.now()
		if cb.failures >= cb.maxFailures {
			changed = cb.setState(StateOpen)
		}
	default:
		if cb.state == StateClosed {
			cb.failures = 0
		}
	}
	cb.mu.Unlock()

	if changed != nil {
		changed()
	}
}

// setState must be called with mu held; the returned func fires the hook.
func (cb *CircuitBreaker) setState(to CircuitState) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	fn := cb.onChange
	if fn == nil {
		return nil
	}
	return func() { fn(from, to) }
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns breaker counters.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		State:            cb.state.String(),
		Failures:         cb.failures,
		TotalRequests:    cb.totalRequests,
		FailedRequests:   cb.failedRequests,
		RejectedRequests: cb.rejectedRequests,
		LastFailureTime:  cb.lastFailureTime,
	}
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.setState(StateClosed)
	cb.failures = 0
	cb.probing = false
	cb.mu.Unlock()

	if changed != nil {
		changed()
	}
}

// CircuitBreakerStats holds circuit breaker statistics.
type CircuitBreakerStats struct {
	State            string    `json:"state"`
	Failures         uint32    `json:"failures"`
	TotalRequests    uint64    `json:"total_requests"`
	FailedRequests   uint64    `json:"failed_requests"`
	RejectedRequests uint64    `json:"rejected_requests"`
	LastFailureTime  time.Time `json:"last_failure_time"`
}

type breakerProvider struct {
	Provider
	cb *CircuitBreaker
}

// WithBreaker guards p's uploads with cb. Content rejections and caller
// cancellations are not counted as backend failures.
func WithBreaker(p Provider, cb *CircuitBreaker) Provider {
	return &breakerProvider{Provider: p, cb: cb}
}

func (b *breakerProvider) Upload(ctx context.Context, file string, opts UploadOptions) (*Result, error) {
	var res *Result
	err := b.cb.Execute(func() error {
		r, err := b.Provider.Upload(ctx, file, opts)
		res = r
		return err
	}, countsAsFailure)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func countsAsFailure(err error) bool {
	if IsRejection(err) || errors.Is(err, ErrInvalidDataURI) || errors.Is(err, ErrAPI) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
