// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-linker/internal/app"
	"github.com/JakeFAU/catalog-linker/internal/config"
	"github.com/JakeFAU/catalog-linker/internal/linker"
)

type stubProvider struct {
	mu    sync.Mutex
	pages map[string]string
	seen  []string
}

func (p *stubProvider) Load(_ context.Context, url string) (*goquery.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, url)
	html, ok := p.pages[url]
	if !ok {
		return nil, &linker.FetchError{URL: url, StatusCode: http.StatusNotFound}
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (p *stubProvider) Seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	seed := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(seed, []byte(`[{"id":20,"titles":{"english":"Naruto"}}]`), 0o600))
	return config.Config{
		Server: config.ServerConfig{Port: 8080},
		Source: config.SourceConfig{
			BaseURL:     "https://animevietsub.fun",
			ClusterSize: 2,
		},
		HTTP:    config.HTTPConfig{TimeoutSeconds: 5},
		Match:   config.MatchConfig{Threshold: 0.6},
		Sweep:   config.SweepConfig{Sections: []linker.CrawlTarget{{SectionKey: "N", StartPage: 1, PageCount: 1}}},
		DB:      config.DBConfig{Driver: config.DriverMemory, SeedFile: seed},
		Storage: config.StorageConfig{Backend: config.BackendMemory, Prefix: "snapshots"},
	}
}

func TestNewAppRunsSweepEndToEnd(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{pages: map[string]string{
		"https://animevietsub.fun/anime/library/N/trang-1.html": `<html><body>
<li class="mlnew"><a href="/phim/naruto-a1/"><h2 class="Title">Naruto</h2></a></li></body></html>`,
		"https://animevietsub.fun/phim/naruto-a1/": `<html><body><h1 class="Title">Naruto</h1></body></html>`,
	}}
	a, err := app.NewApp(context.Background(), memoryConfig(t), zap.NewNop(),
		app.WithRegisterer(prometheus.NewRegistry()),
		app.WithDocumentProvider(provider),
	)
	require.NoError(t, err)

	runID, err := a.Dispatcher().Execute(context.Background(), linker.StrategySweep, 0)
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	require.Contains(t, provider.Seen(), "https://animevietsub.fun/phim/naruto-a1/")

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sync/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), runID)

	require.NoError(t, a.Close(context.Background()))
}

func TestNewAppRejectsMissingSeed(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig(t)
	cfg.DB.SeedFile = filepath.Join(t.TempDir(), "missing.json")
	_, err := app.NewApp(context.Background(), cfg, zap.NewNop(), app.WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
}

func TestNewAppRejectsUnknownBackends(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig(t)
	cfg.Storage.Backend = "s3"
	_, err := app.NewApp(context.Background(), cfg, zap.NewNop(), app.WithRegisterer(prometheus.NewRegistry()))
	require.ErrorContains(t, err, "storage backend")

	cfg = memoryConfig(t)
	cfg.DB.Driver = "sqlite"
	_, err = app.NewApp(context.Background(), cfg, zap.NewNop(), app.WithRegisterer(prometheus.NewRegistry()))
	require.ErrorContains(t, err, "db driver")
}

func TestNewAppLocalSnapshots(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig(t)
	cfg.Storage = config.StorageConfig{Backend: config.BackendLocal, LocalDir: t.TempDir(), Prefix: "snapshots"}
	a, err := app.NewApp(context.Background(), cfg, nil, app.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	require.NotNil(t, a.Service())
	require.NoError(t, a.Close(context.Background()))
}
