// Package probe checks that the dashboard answers over plain HTTP before a
// browser session is spent on it.
package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Config controls the preflight request.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Marker is an optional CSS selector that must be present in the response.
	Marker string
}

// Prober issues one GET through a colly collector.
type Prober struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Prober.
func New(cfg Config, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Prober{cfg: cfg, baseCollector: c, logger: logger}
}

type result struct {
	status int
	marker bool
	err    error
}

// Probe fetches url and fails unless it answers 2xx (and carries the marker,
// when one is configured).
func (p *Prober) Probe(ctx context.Context, url string) error {
	start := time.Now()
	var res result
	collector := p.buildCollector(&res)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("probe canceled: %w", ctx.Err())
	case err := <-done:
		if res.err != nil {
			return fmt.Errorf("probe response: %w", res.err)
		}
		if err != nil {
			return fmt.Errorf("probe visit: %w", err)
		}
	}
	if p.cfg.Marker != "" && !res.marker {
		return fmt.Errorf("probe %s: marker %q not found", url, p.cfg.Marker)
	}
	p.logger.Info("preflight ok",
		zap.String("url", url),
		zap.Int("status", res.status),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (p *Prober) buildCollector(res *result) *colly.Collector {
	collector := p.baseCollector.Clone()
	if p.cfg.UserAgent != "" {
		collector.UserAgent = p.cfg.UserAgent
	}
	timeout := p.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
	})
	if p.cfg.Marker != "" {
		collector.OnHTML(p.cfg.Marker, func(*colly.HTMLElement) {
			res.marker = true
		})
	}
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.status = r.StatusCode
		}
		res.err = fmt.Errorf("status %d: %w", res.status, err)
	})
	return collector
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
