// Package collyfetcher loads remote documents over plain HTTP using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Headers are added to every request, e.g. Origin and Referer.
	Headers http.Header
}

// Provider implements linker.DocumentProvider using the Colly collector.
type Provider struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type visitResult struct {
	status int
	body   []byte
	final  *url.URL
	err    error
}

// New builds a Provider.
func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Provider{cfg: cfg, baseCollector: c}
}

// Load fetches target and parses the body. Non-2xx responses and transport
// failures are returned as *linker.FetchError.
func (p *Provider) Load(ctx context.Context, target string) (*goquery.Document, error) {
	var result visitResult
	collector := p.baseCollector.Clone()
	p.configureCollectorHooks(collector, &result)

	if err := p.runCollector(ctx, collector, target, &result); err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.body))
	if err != nil {
		return nil, &linker.FetchError{URL: target, StatusCode: result.status, Err: fmt.Errorf("parse html: %w", err)}
	}
	doc.Url = result.final
	return doc, nil
}

func (p *Provider) configureCollectorHooks(hooks collectorHooks, result *visitResult) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range p.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
		if r.Request != nil {
			result.final = r.Request.URL
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		result.err = err
	})
}

func (p *Provider) runCollector(ctx context.Context, collector *colly.Collector, target string, result *visitResult) error {
	if err := ctx.Err(); err != nil {
		return &linker.FetchError{URL: target, Err: err}
	}
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return &linker.FetchError{URL: target, Err: ctx.Err()}
	case err := <-done:
		switch {
		case result.status != 0 && (result.status < 200 || result.status > 299):
			return &linker.FetchError{URL: target, StatusCode: result.status, Err: firstErr(result.err, err)}
		case result.err != nil:
			return &linker.FetchError{URL: target, Err: result.err}
		case err != nil:
			return &linker.FetchError{URL: target, Err: err}
		}
		return nil
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
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
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
