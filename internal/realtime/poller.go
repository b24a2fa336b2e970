package realtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"wayfarer.opentransit.org/internal/logging"
)

// Poller fetches one GTFS-RT trip-update feed on an interval and hands the
// decoded updates to the ingestor. Fetch failures are logged and retried on
// the next tick; they never take the service down.
type Poller struct {
	feedID    string
	url       string
	interval  time.Duration
	client    *http.Client
	limiter   *rate.Limiter
	ingestor  *Ingestor
	metrics   *Metrics
	logger    *slog.Logger
	authName  string
	authValue string
}

func NewPoller(feedID, url string, interval time.Duration, ingestor *Ingestor, metrics *Metrics) *Poller {
	return &Poller{
		feedID:   feedID,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(interval/2), 1),
		ingestor: ingestor,
		metrics:  metrics,
		logger: slog.Default().With(
			slog.String("component", "realtime_poller"),
			slog.String("feed", feedID)),
	}
}

// WithAuthHeader makes every fetch carry the given header. Returns the
// poller for chaining at construction.
func (p *Poller) WithAuthHeader(name, value string) *Poller {
	p.authName, p.authValue = name, value
	return p
}

// Run polls until the context is cancelled. The first poll happens
// immediately.
func (p *Poller) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.poll(ctx)
		case <-ctx.Done():
			p.logger.Info("feed poller stopped")
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if err := p.limiter.Wait(ctx); err != nil {
		return
	}
	start := time.Now()

	updates, err := p.fetch(ctx)
	if err != nil {
		p.metrics.PollErrors.Inc()
		p.logger.Warn("feed poll failed", slog.String("error", err.Error()))
		return
	}

	rejections, err := p.ingestor.Ingest(ctx, updates)
	if err != nil {
		p.logger.Warn("ingest aborted", slog.String("error", err.Error()))
		return
	}
	p.metrics.PollDuration.Observe(time.Since(start).Seconds())
	p.logger.Debug("feed poll done",
		slog.Int("updates", len(updates)),
		slog.Int("rejected", len(rejections)))
}

func (p *Poller) fetch(ctx context.Context) ([]TripUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating feed request: %w", err)
	}
	if p.authName != "" {
		req.Header.Set(p.authName, p.authValue)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, p.logger, "feed body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading feed body: %w", err)
	}
	return DecodeFeed(body, p.feedID)
}
