// Package live polls the backend for the portfolio snapshot and publishes the
// aggregated result.
package live

import (
	"context"
	"sync"
	"time"

	"github.com/growin/growin/internal/events"
	"github.com/growin/growin/internal/metrics"
	"github.com/growin/growin/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// DefaultInterval is the wait between the end of one cycle and the next fetch.
const DefaultInterval = 30 * time.Second

// Status of the poller
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPolling Status = "polling"
	StatusError   Status = "error"
)

// Fetcher returns the current portfolio snapshot.
type Fetcher interface {
	GetLivePortfolio(ctx context.Context, account portfolio.AccountFilter) (*portfolio.Snapshot, error)
}

// State is a copy of the poller's published state. Result survives a failed
// cycle so consumers keep showing the last good data next to the error.
type State struct {
	Status      Status
	Account     portfolio.AccountFilter
	Result      *portfolio.Result
	Err         error
	Loading     bool
	LastSuccess time.Time
	LastAttempt time.Time
	Cycles      int
}

// Config configures a Poller.
type Config struct {
	Interval time.Duration
	Account  portfolio.AccountFilter
	Events   *events.Manager
	Metrics  *metrics.Metrics
}

// Poller runs at most one fetch, aggregate, publish loop at a time.
type Poller struct {
	fetcher    Fetcher
	aggregator *portfolio.Aggregator
	interval   time.Duration
	events     *events.Manager
	metrics    *metrics.Metrics
	log        zerolog.Logger

	// runMu serializes Start, Stop and SetAccount.
	runMu     sync.Mutex
	parentCtx context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	// cycleMu keeps loop cycles and Refresh from overlapping.
	cycleMu sync.Mutex

	// mu guards the published state and the generation that may write it.
	mu         sync.RWMutex
	state      State
	generation uint64
	looping    bool
	updates    chan State
}

// NewPoller creates an idle poller.
func NewPoller(fetcher Fetcher, aggregator *portfolio.Aggregator, cfg Config, log zerolog.Logger) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	account := cfg.Account
	if account == "" {
		account = portfolio.AccountAll
	}
	if aggregator == nil {
		aggregator = portfolio.NewAggregator()
	}

	return &Poller{
		fetcher:    fetcher,
		aggregator: aggregator,
		interval:   interval,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
		log:        log.With().Str("component", "live_poller").Logger(),
		state:      State{Status: StatusIdle, Account: account},
		updates:    make(chan State, 1),
	}
}

// Start cancels any running loop, waits for it to exit, then starts a new one.
// The first fetch happens immediately.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.stopLocked()

	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.looping = true
	p.state.Status = StatusPolling
	p.notifyLocked()
	p.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	p.parentCtx = ctx
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(loopCtx, gen, p.done)

	p.log.Info().
		Dur("interval", p.interval).
		Str("account", string(p.Account())).
		Msg("Live polling started")
}

// Stop cancels the loop and waits for it to exit. A fetch still in flight is
// discarded when it returns.
func (p *Poller) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.stopLocked() {
		p.mu.Lock()
		p.looping = false
		p.state.Status = StatusIdle
		p.state.Loading = false
		p.notifyLocked()
		p.mu.Unlock()

		p.log.Info().Msg("Live polling stopped")
	}
}

// stopLocked retires the current generation and waits for the loop. It reports
// whether a loop was running. Callers hold runMu.
func (p *Poller) stopLocked() bool {
	if p.cancel == nil {
		return false
	}

	p.mu.Lock()
	p.generation++
	p.mu.Unlock()

	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
	return true
}

// Running reports whether a loop is active.
func (p *Poller) Running() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.cancel != nil
}

// State returns a copy of the published state.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Updates delivers the latest state after every change. Only the newest
// undelivered state is kept.
func (p *Poller) Updates() <-chan State {
	return p.updates
}

// Account returns the account filter used for fetches.
func (p *Poller) Account() portfolio.AccountFilter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Account
}

// SetAccount switches the account filter, restarting the loop if it is running.
func (p *Poller) SetAccount(account portfolio.AccountFilter) {
	if account == "" {
		account = portfolio.AccountAll
	}

	p.runMu.Lock()
	p.mu.Lock()
	changed := p.state.Account != account
	p.state.Account = account
	p.mu.Unlock()

	running := p.cancel != nil
	parent := p.parentCtx
	p.runMu.Unlock()

	if !changed {
		return
	}

	p.log.Info().Str("account", string(account)).Msg("Account changed")
	if p.events != nil {
		p.events.EmitTyped("live", &events.AccountChangedData{Account: string(account)})
	}

	if running {
		p.Start(parent)
	}
}

// Refresh runs one cycle now, serialized with the loop. Without a running loop a
// successful refresh leaves the status idle.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.RLock()
	gen := p.generation
	p.mu.RUnlock()

	return p.cycle(ctx, gen)
}

func (p *Poller) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	for {
		_ = p.cycle(ctx, gen)

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// cycle fetches, aggregates and publishes once. Results are dropped when ctx was
// cancelled during the fetch or gen has been retired.
func (p *Poller) cycle(ctx context.Context, gen uint64) error {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	account := p.Account()
	start := time.Now()
	if !p.publish(gen, func(s *State) {
		s.Loading = true
		s.LastAttempt = start
	}) {
		return context.Canceled
	}

	snapshot, err := p.fetcher.GetLivePortfolio(ctx, account)
	if ctxErr := ctx.Err(); ctxErr != nil {
		p.log.Debug().Msg("Discarding fetch result after cancellation")
		p.publish(gen, func(s *State) { s.Loading = false })
		return ctxErr
	}

	if err != nil {
		var cycles int
		published := p.publish(gen, func(s *State) {
			s.Status = StatusError
			s.Err = err
			s.Loading = false
			s.Cycles++
			cycles = s.Cycles
		})
		if !published {
			return context.Canceled
		}

		p.metrics.ObservePoll(metrics.ResultError, time.Since(start).Seconds())
		p.log.Warn().Err(err).Str("account", string(account)).Msg("Portfolio fetch failed")
		if p.events != nil {
			p.events.EmitTyped("live", &events.PortfolioFetchFailedData{
				Account: string(account),
				Error:   err.Error(),
				Cycle:   cycles,
			})
		}
		return err
	}

	result := p.aggregator.Aggregate(snapshot)
	var cycles int
	published := p.publish(gen, func(s *State) {
		s.Status = StatusIdle
		if p.looping {
			s.Status = StatusPolling
		}
		s.Result = &result
		s.Err = nil
		s.Loading = false
		s.LastSuccess = time.Now()
		s.Cycles++
		cycles = s.Cycles
	})
	if !published {
		return context.Canceled
	}

	p.metrics.ObservePoll(metrics.ResultSuccess, time.Since(start).Seconds())
	p.log.Debug().
		Str("account", string(account)).
		Int("positions", result.Totals.TotalPositions).
		Dur("duration", time.Since(start)).
		Msg("Portfolio updated")
	if p.events != nil {
		p.events.EmitTyped("live", &events.PortfolioUpdatedData{
			Account:      string(account),
			Positions:    result.Totals.TotalPositions,
			CurrentValue: result.Totals.CurrentValue,
			TotalPnL:     result.Totals.TotalPnL,
			Cycle:        cycles,
		})
	}
	return nil
}

// publish applies mutate to the state if gen is still current.
func (p *Poller) publish(gen uint64, mutate func(*State)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.generation {
		return false
	}
	mutate(&p.state)
	p.notifyLocked()
	return true
}

// notifyLocked replaces any undelivered update with the current state.
func (p *Poller) notifyLocked() {
	select {
	case <-p.updates:
	default:
	}
	select {
	case p.updates <- p.state:
	default:
	}
}
