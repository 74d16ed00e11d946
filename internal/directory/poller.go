// Package directory watches the directory for changes. Most LDAP servers
// expose no change feed, so the poller periodically searches on the
// modifyTimestamp operational attribute and hands changed entries to a sink,
// advancing a persisted cursor between rounds.
package directory

import (
	"context"
	"log/slog"
	"time"

	"dirsync/internal/directory/cursor"
	"dirsync/internal/domain"
)

// Changes is the read side the poller needs, implemented by the LDAP adapter.
type Changes interface {
	ChangedSince(ctx context.Context, since time.Time, attrs []string) ([]domain.Entry, error)
}

// Sink receives each changed entry. A sink error for one entry is logged and
// skipped; the entry will be seen again because the cursor only advances past
// a fully delivered round.
type Sink interface {
	EntryChanged(ctx context.Context, entry domain.Entry) error
}

// PollerConfig tunes the polling loop.
type PollerConfig struct {
	// Interval between polling rounds.
	Interval time.Duration
	// Horizon is the initial lookback when no cursor exists yet.
	Horizon time.Duration
	// Attrs are fetched for each changed entry.
	Attrs []string
}

type Poller struct {
	changes Changes
	cursors cursor.Store
	sink    Sink
	cfg     PollerConfig
	logger  *slog.Logger
	now     func() time.Time
}

type PollerOption func(*Poller)

func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = logger }
}

func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

func NewPoller(changes Changes, cursors cursor.Store, sink Sink, cfg PollerConfig, opts ...PollerOption) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 24 * time.Hour
	}
	p := &Poller{
		changes: changes,
		cursors: cursors,
		sink:    sink,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until the context is cancelled. Errors inside a round are logged
// and the loop carries on; the directory being briefly unreachable must not
// kill the service.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.pollOnce(ctx); err != nil {
			p.logger.Error("directory poll round failed", "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pollOnce runs one round: read the cursor, search, deliver, advance. The
// next cursor is captured before the search so an entry modified mid-round
// lands in the overlap and is seen again rather than missed.
func (p *Poller) pollOnce(ctx context.Context) error {
	since, err := p.cursors.Load(ctx)
	if err != nil {
		return err
	}
	roundStart := p.now()
	if since.IsZero() {
		since = roundStart.Add(-p.cfg.Horizon)
	}

	entries, err := p.changes.ChangedSince(ctx, since, p.cfg.Attrs)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := p.sink.EntryChanged(ctx, entry); err != nil {
			p.logger.Error("delivering changed entry failed",
				"unique_id", entry.UniqueID,
				"dn", entry.DN,
				"error", err,
			)
			// Leave the cursor where it is so the entry is retried
			// next round.
			return nil
		}
	}

	if len(entries) > 0 {
		p.logger.Info("directory poll round complete", "changed", len(entries))
	}
	return p.cursors.Save(ctx, roundStart)
}
