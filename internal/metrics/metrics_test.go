package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"library page", "https://AnimeVietSub.fun/anime/library/A/trang-2.html", "animevietsub.fun"},
		{"search page", "http://animevietsub.fun/tim-kiem/naruto/", "animevietsub.fun"},
		{"no scheme", "animevietsub.fun/phim/x", "animevietsub.fun"},
		{"host with port", "localhost:8080", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	if candidatesTotal == nil || pageFetchesTotal == nil || runsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveCandidate(t *testing.T) {
	Init()
	before := testutil.ToFloat64(candidatesTotal.WithLabelValues("sweep", "reconciled"))
	ObserveCandidate("sweep", "reconciled")
	after := testutil.ToFloat64(candidatesTotal.WithLabelValues("sweep", "reconciled"))
	if after-before != 1 {
		t.Errorf("expected candidate counter to grow by 1, grew by %f", after-before)
	}
}

func TestRunLifecycle(t *testing.T) {
	Init()
	RunStarted()
	if val := testutil.ToFloat64(activeRuns); val < 1 {
		t.Errorf("expected at least one active run, got %f", val)
	}
	before := testutil.ToFloat64(runsTotal.WithLabelValues("search", "error"))
	RunFinished("search", errors.New("boom"), time.Second)
	if val := testutil.ToFloat64(runsTotal.WithLabelValues("search", "error")); val-before != 1 {
		t.Errorf("expected error run to be counted, delta %f", val-before)
	}
}

func TestObservePageFetchDefaultsKind(t *testing.T) {
	Init()
	ObservePageFetch("", false, 10*time.Millisecond)
	if val := testutil.ToFloat64(pageFetchesTotal.WithLabelValues("unknown", "error")); val < 1 {
		t.Errorf("expected unknown kind to be recorded, got %f", val)
	}
}

func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://animevietsub.fun", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
