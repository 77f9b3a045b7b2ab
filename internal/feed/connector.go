package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"tickfeed/internal/model"
)

// Catalog lists the instruments to subscribe on each connection attempt.
// Implemented by ledger.Postgres.
type Catalog interface {
	Symbols(ctx context.Context) ([]string, error)
}

// Timer is a stoppable pending callback, satisfied by *time.Timer.
type Timer interface {
	Stop() bool
}

// ConnectorConfig configures the upstream connector.
type ConnectorConfig struct {
	WSURL          string
	APIToken       string // Appended as ?token= query parameter
	ReconnectDelay time.Duration
	StartupJitter  time.Duration // Upper bound for the first-connect delay
	PingTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
}

// ConnectorStats is a snapshot of connector state for health reporting.
type ConnectorStats struct {
	State             string
	SubscribedSymbols int
	ReconnectAttempts int64
}

// Connector owns the single upstream connection.
//
// It fetches the instrument catalog, dials, sends one subscribe frame per
// symbol, and pumps trade messages into dispatch. Any failure drops it back
// to disconnected and schedules exactly one retry after ReconnectDelay.
type Connector struct {
	cfg      ConnectorConfig
	catalog  Catalog
	dispatch func(model.Tick)
	logger   *slog.Logger

	// Swapped out in tests.
	dial   func(ctx context.Context) (Client, error)
	after  func(d time.Duration, fn func()) Timer
	jitter func(max time.Duration) time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	started      bool
	state        State
	client       Client
	symbols      int
	retryPending bool
	timer        Timer
	reconnects   int64
}

// NewConnector creates a connector delivering parsed ticks through dispatch.
// Dispatch is called from the single read-loop goroutine, so one message's
// ticks are fully processed before the next message is read.
func NewConnector(cfg ConnectorConfig, catalog Catalog, dispatch func(model.Tick), logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connector{
		cfg:      cfg,
		catalog:  catalog,
		dispatch: dispatch,
		logger:   logger,
	}
	c.dial = c.dialUpstream
	c.after = func(d time.Duration, fn func()) Timer {
		return time.AfterFunc(d, fn)
	}
	c.jitter = randomDelay

	return c
}

// Start schedules the first connection attempt after a random delay of up to
// StartupJitter. Further calls are no-ops.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)

	delay := c.jitter(c.cfg.StartupJitter)
	c.timer = c.after(delay, c.connect)
	c.mu.Unlock()

	c.logger.Info("feed connector starting", "jitter", delay)
	return nil
}

// Stop cancels pending work, closes the connection, and waits for the read
// loop, bounded by ctx.
func (c *Connector) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	if c.timer != nil {
		c.timer.Stop()
	}
	cl := c.client
	c.client = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if cl != nil {
		cl.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.logger.Warn("connector shutdown timeout")
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot for health reporting.
func (c *Connector) Stats() ConnectorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectorStats{
		State:             c.state.String(),
		SubscribedSymbols: c.symbols,
		ReconnectAttempts: c.reconnects,
	}
}

// connect runs one full connection attempt: catalog, dial, subscribe.
// Guarded so that overlapping invocations collapse into one.
func (c *Connector) connect() {
	c.mu.Lock()
	if c.ctx.Err() != nil || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	symbols, err := c.catalog.Symbols(c.ctx)
	if err != nil {
		c.logger.Warn("instrument catalog fetch failed", "error", err)
		c.retry()
		return
	}

	cl, err := c.dial(c.ctx)
	if err != nil {
		c.logger.Warn("upstream dial failed", "error", err)
		c.retry()
		return
	}

	for _, s := range symbols {
		frame, _ := json.Marshal(subscribeCommand{Type: "subscribe", Symbol: s})
		if err := cl.Send(frame); err != nil {
			c.logger.Warn("subscribe failed", "symbol", s, "error", err)
		}
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		cl.Close()
		return
	}
	c.client = cl
	c.symbols = len(symbols)
	c.state = StateSubscribed
	c.mu.Unlock()

	c.logger.Info("upstream subscribed", "symbols", len(symbols))

	c.wg.Add(1)
	go c.readLoop(cl)
}

// retry drops back to disconnected and schedules one attempt after
// ReconnectDelay. At most one retry is pending at any time.
func (c *Connector) retry() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateDisconnected
	c.client = nil
	c.symbols = 0

	if c.retryPending || c.ctx.Err() != nil {
		return
	}
	c.retryPending = true
	c.reconnects++
	c.timer = c.after(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		c.retryPending = false
		c.mu.Unlock()
		c.connect()
	})

	c.logger.Info("reconnect scheduled", "delay", c.cfg.ReconnectDelay)
}

// readLoop pumps messages from one client until it fails or the connector
// stops. A failure closes the client and schedules a reconnect.
func (c *Connector) readLoop(cl Client) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			cl.Close()
			return

		case err := <-cl.Errors():
			c.logger.Warn("upstream connection error", "error", err)
			cl.Close()
			c.retry()
			return

		case data, ok := <-cl.Messages():
			if !ok {
				c.retry()
				return
			}
			c.handleMessage(data)
		}
	}
}

// handleMessage parses one upstream frame and dispatches its trades in order.
func (c *Connector) handleMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("unparseable upstream message", "error", err)
		return
	}

	switch env.Type {
	case "trade":
		for _, tr := range env.Data {
			c.dispatch(model.Tick{
				Symbol:    tr.Symbol,
				Price:     tr.Price,
				Volume:    tr.Volume,
				Timestamp: tr.Timestamp,
			})
		}
	case "ping":
		// Upstream keepalive, nothing to do.
	default:
		c.logger.Debug("ignoring upstream message", "type", env.Type)
	}
}

// dialUpstream connects a real websocket client to the configured URL.
func (c *Connector) dialUpstream(ctx context.Context) (Client, error) {
	cl := NewClient(ClientConfig{
		URL:          c.upstreamURL(),
		PingTimeout:  c.cfg.PingTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
		BufferSize:   c.cfg.BufferSize,
	}, c.logger)

	if err := cl.Connect(ctx); err != nil {
		return nil, err
	}
	return cl, nil
}

func (c *Connector) upstreamURL() string {
	if c.cfg.APIToken == "" {
		return c.cfg.WSURL
	}
	return c.cfg.WSURL + "?token=" + url.QueryEscape(c.cfg.APIToken)
}

func randomDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
