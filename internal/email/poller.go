package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mixelka/emailchannel/internal/metrics"
	"github.com/mixelka/emailchannel/pkg/models"
)

// State of an account poller
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateCheckingInbox State = "checking_inbox"
	StateReconnecting  State = "reconnecting"
	StateStopped       State = "stopped"
	StateFailed        State = "failed"
)

var allStates = []string{
	string(StateDisconnected),
	string(StateConnecting),
	string(StateConnected),
	string(StateCheckingInbox),
	string(StateReconnecting),
	string(StateStopped),
	string(StateFailed),
}

const (
	defaultConnectAttempts = 3
	defaultBackoffStep     = 2 * time.Second
)

// InboxProcessor runs one inbox pass
type InboxProcessor interface {
	Process(ctx context.Context, mb Mailbox) (int, error)
}

// PollerConfig configuration for a poller
type PollerConfig struct {
	Account   models.Account
	Connect   Connector
	Processor InboxProcessor
	Status    StatusSink
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// optional; defaults are 3 attempts, 2s·attempt backoff, real time
	MaxAttempts int
	BackoffStep time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
	Now         func() time.Time
}

// Poller owns the mailbox connection of one account and checks the inbox
// on a fixed interval.
type Poller struct {
	account     models.Account
	connect     Connector
	processor   InboxProcessor
	status      StatusSink
	metrics     *metrics.Metrics
	logger      *slog.Logger
	maxAttempts int
	backoffStep time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time

	mu      sync.Mutex
	state   State
	mailbox Mailbox
	stopped bool

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewPoller creates a poller in the disconnected state
func NewPoller(cfg PollerConfig) *Poller {
	p := &Poller{
		account:     cfg.Account,
		connect:     cfg.Connect,
		processor:   cfg.Processor,
		status:      cfg.Status,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With("component", "poller", "account", cfg.Account.ID),
		maxAttempts: cfg.MaxAttempts,
		backoffStep: cfg.BackoffStep,
		sleep:       cfg.Sleep,
		now:         cfg.Now,
		state:       StateDisconnected,
		done:        make(chan struct{}),
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = defaultConnectAttempts
	}
	if p.backoffStep <= 0 {
		p.backoffStep = defaultBackoffStep
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	if p.now == nil {
		p.now = time.Now
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Start connects, runs an immediate inbox check and schedules the rest.
// Authentication failures are not retried and leave the poller failed.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("poller already started")
	}
	p.started = true
	p.mu.Unlock()

	// stop the connect sequence if the caller gives up
	stopWatch := context.AfterFunc(ctx, p.cancel)
	defer stopWatch()

	now := p.now()
	p.publish(func(s *models.AccountStatus) {
		s.LastStartAt = now
		s.LastError = ""
	})
	p.setState(StateConnecting)

	mb, err := p.dial()
	if err != nil {
		defer close(p.done)
		if p.isStopped() || errors.Is(err, ErrStopped) {
			p.Stop()
			return ErrStopped
		}
		p.fail(err)
		p.cancel()
		return err
	}

	if !p.attach(mb) {
		close(p.done)
		return ErrStopped
	}
	p.setState(StateConnected)

	go p.run()
	return nil
}

// Stop ends polling and closes the connection. It is safe to call more than
// once and concurrently with a running check.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	mb := p.mailbox
	p.mailbox = nil
	p.mu.Unlock()

	p.cancel()
	if mb != nil {
		_ = mb.Close()
	}

	// a failed account keeps its LastError
	now := p.now()
	p.publish(func(s *models.AccountStatus) { s.LastStopAt = now })
	p.setState(StateStopped)
	p.logger.Info("poller stopped")
}

// Done is closed once the poller no longer schedules checks
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// State returns the current state
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) run() {
	defer close(p.done)

	p.tick()

	ticker := time.NewTicker(p.account.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick performs one inbox check. Ticks never overlap: they run on the
// poller goroutine only.
func (p *Poller) tick() {
	if p.isStopped() {
		return
	}

	mb := p.currentMailbox()
	if mb == nil {
		if err := p.reconnect(); err != nil {
			return
		}
		if mb = p.currentMailbox(); mb == nil {
			return
		}
	}

	p.setState(StateCheckingInbox)
	start := p.now()
	n, err := p.processor.Process(p.ctx, mb)
	p.metrics.ObservePoll(p.account.ID, p.now().Sub(start))

	if p.isStopped() {
		return
	}

	if err != nil {
		if IsConnectionError(err) {
			p.logger.Warn("connection lost, reconnecting", "error", err)
			p.reconnect()
			return
		}
		p.logger.Error("inbox check failed", "error", err)
		p.publish(func(s *models.AccountStatus) { s.LastError = err.Error() })
		p.setState(StateConnected)
		return
	}

	if n > 0 {
		now := p.now()
		p.publish(func(s *models.AccountStatus) {
			s.LastInboundAt = now
			s.LastError = ""
		})
	}
	p.setState(StateConnected)
}

// reconnect drops the current session and runs the connect sequence again
func (p *Poller) reconnect() error {
	p.setState(StateReconnecting)
	p.metrics.Reconnect(p.account.ID)

	p.mu.Lock()
	old := p.mailbox
	p.mailbox = nil
	p.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	mb, err := p.dial()
	if err != nil {
		if p.isStopped() || errors.Is(err, ErrStopped) {
			return ErrStopped
		}
		if IsAuthError(err) {
			p.fail(err)
			p.cancel()
			return err
		}
		p.logger.Error("reconnect failed, waiting for next check", "error", err)
		p.publish(func(s *models.AccountStatus) { s.LastError = err.Error() })
		p.setState(StateDisconnected)
		return err
	}

	if !p.attach(mb) {
		return ErrStopped
	}
	p.logger.Info("reconnected")
	p.setState(StateConnected)
	return nil
}

// dial tries to connect up to maxAttempts times, waiting backoffStep·attempt
// between attempts.
func (p *Poller) dial() (Mailbox, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if p.isStopped() {
			return nil, ErrStopped
		}

		mb, err := p.connect(p.ctx, p.account)
		if err == nil {
			return mb, nil
		}
		lastErr = err

		if IsAuthError(err) {
			p.logger.Error("authentication failed, not retrying", "error", err)
			return nil, err
		}

		p.logger.Warn("connect attempt failed", "attempt", attempt, "max_attempts", p.maxAttempts, "error", err)
		if attempt < p.maxAttempts {
			if err := p.sleep(p.ctx, time.Duration(attempt)*p.backoffStep); err != nil {
				return nil, ErrStopped
			}
		}
	}
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", p.maxAttempts, lastErr)
}

// attach installs mb as the current session unless the poller was stopped
func (p *Poller) attach(mb Mailbox) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		_ = mb.Close()
		return false
	}
	p.mailbox = mb
	p.mu.Unlock()
	return true
}

func (p *Poller) fail(err error) {
	now := p.now()
	p.publish(func(s *models.AccountStatus) {
		s.LastError = err.Error()
		s.LastStopAt = now
	})
	p.setState(StateFailed)
	p.logger.Error("account failed", "error", err)
}

func (p *Poller) setState(st State) {
	p.mu.Lock()
	if p.state == StateStopped || (p.state == StateFailed && st != StateStopped) {
		// terminal
		p.mu.Unlock()
		return
	}
	p.state = st
	p.mu.Unlock()

	running := st != StateStopped && st != StateFailed
	p.publish(func(s *models.AccountStatus) {
		s.State = string(st)
		s.Running = running
	})
	p.metrics.SetState(p.account.ID, string(st), allStates)
}

func (p *Poller) publish(fn func(*models.AccountStatus)) {
	if p.status == nil {
		return
	}
	p.status.Update(p.account.ID, fn)
}

func (p *Poller) currentMailbox() Mailbox {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mailbox
}

func (p *Poller) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
