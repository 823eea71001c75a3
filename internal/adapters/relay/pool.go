// Package relay talks to event relays over websockets and adapts relay
// queries into the profile and follow-list lookups the feed needs.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/okian/readfeed/internal/domain/model"
	"github.com/okian/readfeed/pkg/logger"
	"github.com/okian/readfeed/pkg/metrics"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultDialRetries  = 2
	defaultWriteTimeout = 5 * time.Second
	defaultReadLimit    = 1 << 20
	defaultEOSETimeout  = 8 * time.Second
)

// Pool keeps one websocket connection per relay endpoint, dialed on first
// use. It is safe for concurrent use.
type Pool struct {
	dialTimeout  time.Duration
	dialRetries  int
	writeTimeout time.Duration
	readLimit    int64
	eoseTimeout  time.Duration
	log          logger.Logger

	mu     sync.Mutex
	conns  map[string]*conn
	closed bool
	dials  singleflight.Group
	wg     sync.WaitGroup
}

// NewPool constructs an empty pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		dialTimeout:  defaultDialTimeout,
		dialRetries:  defaultDialRetries,
		writeTimeout: defaultWriteTimeout,
		readLimit:    defaultReadLimit,
		eoseTimeout:  defaultEOSETimeout,
		conns:        make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get().Named("relay")
	}
	return p
}

// Query sends filter to endpoint and collects matching events until the
// relay signals end of stored events. A relay that keeps the subscription
// open past the EOSE timeout is cut off with the events it sent so far. The
// subscription is closed before returning.
func (p *Pool) Query(ctx context.Context, endpoint string, filter model.Filter) ([]model.RawEvent, error) {
	c, err := p.conn(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	sub := c.subscribe(uuid.NewString())
	defer c.unsubscribe(sub.id)

	req, err := encodeReq(sub.id, filter)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if err := c.write(req); err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}

	eose := time.NewTimer(p.eoseTimeout)
	defer eose.Stop()

	select {
	case <-sub.finished:
		if sub.err != nil {
			return nil, fmt.Errorf("%s: %w", endpoint, sub.err)
		}
		c.closeSubscription(sub.id)
		return sub.take(), nil
	case <-eose.C:
		c.closeSubscription(sub.id)
		events := sub.take()
		p.log.Debug(ctx, "relay missed end of stored events",
			logger.String("endpoint", endpoint),
			logger.Int("events", len(events)))
		return events, nil
	case <-c.done:
		return nil, fmt.Errorf("%s: %w", endpoint, ErrConnectionLost)
	case <-ctx.Done():
		c.closeSubscription(sub.id)
		return nil, ctx.Err()
	}
}

// Len returns the number of open connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close closes every pooled connection. Queries after Close fail with
// ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := make([]*conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	p.wg.Wait()
	metrics.UpdateRelayConnections(0)
	return nil
}

func (p *Pool) conn(ctx context.Context, endpoint string) (*conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if c, ok := p.conns[endpoint]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	ch := p.dials.DoChan(endpoint, func() (any, error) {
		return p.connect(endpoint)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) connect(endpoint string) (*conn, error) {
	ws, err := p.dial(endpoint)
	if err != nil {
		metrics.RecordErrorByComponent("relay", "dial")
		return nil, fmt.Errorf("%w: %s: %v", ErrRelayUnavailable, endpoint, err)
	}
	ws.SetReadLimit(p.readLimit)

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		endpoint: endpoint,
		ws:       ws,
		pool:     p,
		subs:     make(map[string]*subscription),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		_ = ws.CloseNow()
		return nil, ErrPoolClosed
	}
	p.conns[endpoint] = c
	metrics.UpdateRelayConnections(len(p.conns))
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		c.readLoop(ctx)
	}()
	p.log.Debug(ctx, "relay connected", logger.String("endpoint", endpoint))
	return c, nil
}

func (p *Pool) dial(endpoint string) (*websocket.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	var ws *websocket.Conn
	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), p.dialTimeout)
		defer cancel()
		c, _, err := websocket.Dial(ctx, endpoint, nil)
		if err != nil {
			return err
		}
		ws = c
		return nil
	}, backoff.WithMaxRetries(policy, uint64(p.dialRetries)))
	return ws, err
}

func (p *Pool) drop(c *conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.conns[c.endpoint]; ok && cur == c {
		delete(p.conns, c.endpoint)
		metrics.UpdateRelayConnections(len(p.conns))
	}
}

// conn is one websocket connection multiplexing subscriptions.
type conn struct {
	endpoint string
	ws       *websocket.Conn
	pool     *Pool
	cancel   context.CancelFunc

	mu   sync.Mutex
	subs map[string]*subscription

	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) subscribe(id string) *subscription {
	s := &subscription{id: id, finished: make(chan struct{})}
	c.mu.Lock()
	c.subs[id] = s
	c.mu.Unlock()
	return s
}

func (c *conn) unsubscribe(id string) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *conn) lookup(id string) *subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[id]
}

func (c *conn) write(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.pool.writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// closeSubscription tells the relay to stop the subscription. Failures only
// matter to the connection, which the read loop handles.
func (c *conn) closeSubscription(id string) {
	msg, err := encodeClose(id)
	if err != nil {
		return
	}
	if err := c.write(msg); err != nil {
		c.pool.log.Debug(context.Background(), "close subscription failed",
			logger.String("endpoint", c.endpoint),
			logger.Error(err))
	}
}

func (c *conn) readLoop(ctx context.Context) {
	defer func() {
		c.pool.drop(c)
		close(c.done)
	}()

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.pool.log.Warn(ctx, "relay connection lost",
					logger.String("endpoint", c.endpoint),
					logger.Error(err))
			}
			return
		}

		f, err := decodeFrame(data)
		if err != nil {
			c.pool.log.Debug(ctx, "dropping relay frame",
				logger.String("endpoint", c.endpoint),
				logger.Error(err))
			continue
		}

		switch f.label {
		case labelEvent:
			if s := c.lookup(f.subID); s != nil {
				s.add(f.event)
			}
		case labelEOSE:
			if s := c.lookup(f.subID); s != nil {
				s.finish(nil)
			}
		case labelClosed:
			if s := c.lookup(f.subID); s != nil {
				s.finish(fmt.Errorf("%w: %s", ErrSubscriptionClosed, f.message))
			}
		case labelNotice:
			c.pool.log.Info(ctx, "relay notice",
				logger.String("endpoint", c.endpoint),
				logger.String("message", f.message))
		}
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
		c.cancel()
	})
}

// subscription accumulates the events of one REQ until the relay finishes it.
type subscription struct {
	id       string
	finished chan struct{}
	once     sync.Once
	err      error

	mu     sync.Mutex
	events []model.RawEvent
}

func (s *subscription) add(e model.RawEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *subscription) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.finished)
	})
}

func (s *subscription) take() []model.RawEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.RawEvent, len(s.events))
	copy(out, s.events)
	return out
}
