package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
)

// Channel is the NOTIFY channel the store triggers publish on.
const Channel = "court_changes"

// PGFeed listens on a single dedicated connection and fans notifications out
// to subscribers. The connection is opened lazily and re-opened by the next
// Subscribe after a loss.
type PGFeed struct {
	connString string
	channel    string
	logger     *slog.Logger

	mu      sync.Mutex
	subs    map[*subscription]struct{}
	running bool
	cancel  context.CancelFunc
	closed  bool
}

func NewPGFeed(connString string, logger *slog.Logger) *PGFeed {
	return &PGFeed{
		connString: connString,
		channel:    Channel,
		logger:     logger,
		subs:       make(map[*subscription]struct{}),
	}
}

func (p *PGFeed) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if !p.running {
		if err := p.startLocked(ctx); err != nil {
			return nil, err
		}
	}
	s := newSubscription(f, p.remove)
	p.subs[s] = struct{}{}
	s.bind(ctx)
	return s, nil
}

func (p *PGFeed) startLocked(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, p.connString)
	if err != nil {
		return fmt.Errorf("%w: connect: %v", ErrDisconnected, err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{p.channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return fmt.Errorf("%w: listen: %v", ErrDisconnected, err)
	}
	listenCtx, cancel := context.WithCancel(context.Background())
	p.running = true
	p.cancel = cancel
	go p.listen(listenCtx, conn)
	return nil
}

func (p *PGFeed) listen(ctx context.Context, conn *pgx.Conn) {
	defer func() { _ = conn.Close(context.Background()) }()
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			p.mu.Lock()
			subs := p.subs
			p.subs = make(map[*subscription]struct{})
			p.running = false
			p.mu.Unlock()

			reason := ErrClosed
			if ctx.Err() == nil {
				reason = fmt.Errorf("%w: %v", ErrDisconnected, err)
				p.logger.Warn("change feed connection lost", "error", err, "subscribers", len(subs))
			}
			for s := range subs {
				s.end(reason)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			p.logger.Warn("dropping malformed change notification", "error", err)
			continue
		}
		p.mu.Lock()
		for s := range p.subs {
			if s.filter.Matches(ev) {
				s.deliver(ev)
			}
		}
		p.mu.Unlock()
	}
}

func (p *PGFeed) remove(s *subscription) {
	p.mu.Lock()
	delete(p.subs, s)
	p.mu.Unlock()
}

func (p *PGFeed) Close() error {
	p.mu.Lock()
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

var _ Feed = (*PGFeed)(nil)
var _ Feed = (*Hub)(nil)

// IsDisconnect reports whether err came from a lost feed connection.
func IsDisconnect(err error) bool { return errors.Is(err, ErrDisconnected) }
