// Package retrypacer implements the backoff state machine the transfer
// workers use when a host misbehaves: each failed attempt "attacks" the
// inter-attempt sleep interval upward, each success "decays" it back down.
// The actual spacing between attempts is enforced by a golang.org/x/time/rate
// limiter seeded from the current sleep interval, rather than a hand-rolled
// timer loop.
package retrypacer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// State is the mutable backoff state: the current inter-attempt sleep
// interval and the number of attempts made since the last success.
type State struct {
	SleepTime          time.Duration
	ConsecutiveRetries int
}

// Pacer paces retries for one host or directory connection, per §5's
// "transfer exceeding its per-host transfer_timeout is killed" and the
// surrounding error-counter/backoff model of §3.1.
type Pacer struct {
	mu sync.Mutex

	minSleep       time.Duration
	maxSleep       time.Duration
	decayConstant  uint
	attackConstant uint
	maxRetries     int

	state   State
	limiter *rate.Limiter
}

// Option configures a Pacer at construction.
type Option func(*Pacer)

// MinSleep sets the floor of the backoff interval.
func MinSleep(d time.Duration) Option { return func(p *Pacer) { p.minSleep = d } }

// MaxSleep sets the ceiling of the backoff interval.
func MaxSleep(d time.Duration) Option { return func(p *Pacer) { p.maxSleep = d } }

// DecayConstant controls how fast a success shrinks the sleep interval:
// each success removes 1/2^c of it, so higher values decay more slowly.
func DecayConstant(c uint) Option { return func(p *Pacer) { p.decayConstant = c } }

// AttackConstant controls how fast a failure raises the sleep interval;
// higher values attack more gently.
func AttackConstant(c uint) Option { return func(p *Pacer) { p.attackConstant = c } }

// MaxRetriesOption caps the number of retries New's caller will attempt
// before giving up (the per-directory retry_interval family of §3.1).
func MaxRetriesOption(n int) Option { return func(p *Pacer) { p.maxRetries = n } }

// New builds a Pacer with rclone-style defaults: 10ms floor, 2s ceiling,
// decay 2, attack 1.
func New(opts ...Option) *Pacer {
	p := &Pacer{
		minSleep:       10 * time.Millisecond,
		maxSleep:       2 * time.Second,
		decayConstant:  2,
		attackConstant: 1,
		maxRetries:     3,
	}
	for _, o := range opts {
		o(p)
	}
	p.state.SleepTime = p.minSleep
	p.limiter = rate.NewLimiter(rate.Every(p.state.SleepTime), 1)
	return p
}

// MaxRetries returns the configured retry ceiling.
func (p *Pacer) MaxRetries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxRetries
}

// Wait blocks until the pacer's current interval has elapsed since the
// previous Wait, honouring ctx cancellation. The limiter starts with one
// token, so the first call returns at once.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	lim := p.limiter
	p.mu.Unlock()
	return lim.Wait(ctx)
}

// decay removes 1/2^constant of the sleep interval (halving it at constant
// 1), never going below floor, mirroring the Default calculator's decrease
// rule; a constant of zero drops straight to floor.
func decay(cur, floor time.Duration, constant uint) time.Duration {
	if constant == 0 {
		return floor
	}
	next := cur - cur/time.Duration(1<<constant)
	if next < floor {
		next = floor
	}
	return next
}

// attack multiplies the sleep interval by 2^constant/(2^constant-1)
// (doubling it at constant 1), capped at ceiling, mirroring the Default
// calculator's multiplicative-increase rule; a constant of zero jumps
// straight to ceiling.
func attack(cur, ceiling time.Duration, constant uint) time.Duration {
	if constant == 0 {
		return ceiling
	}
	next := cur * time.Duration(1<<constant) / time.Duration(1<<constant-1)
	if next > ceiling {
		next = ceiling
	}
	return next
}

// Success reports a successful attempt: it resets the retry counter and
// decays the sleep interval, then reseeds the limiter.
func (p *Pacer) Success() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ConsecutiveRetries = 0
	p.state.SleepTime = decay(p.state.SleepTime, p.minSleep, p.decayConstant)
	p.reseedLocked()
}

// Fail reports a failed attempt: it increments the retry counter and
// attacks the sleep interval upward, then reseeds the limiter. It reports
// whether the caller has exhausted maxRetries.
func (p *Pacer) Fail() (exhausted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ConsecutiveRetries++
	p.state.SleepTime = attack(p.state.SleepTime, p.maxSleep, p.attackConstant)
	p.reseedLocked()
	return p.state.ConsecutiveRetries >= p.maxRetries
}

func (p *Pacer) reseedLocked() {
	p.limiter.SetLimit(rate.Every(p.state.SleepTime))
}

// CurrentState returns a snapshot of the pacer's backoff state.
func (p *Pacer) CurrentState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
