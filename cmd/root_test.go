package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitescrape/internal/app"
	"github.com/JakeFAU/sitescrape/internal/config"
	"github.com/JakeFAU/sitescrape/internal/crawler"
)

type fakeRunner struct {
	summary app.Summary
	err     error
	closed  bool
}

func (f *fakeRunner) Run(context.Context, string) (app.Summary, error) {
	return f.summary, f.err
}

func (f *fakeRunner) Close() {
	f.closed = true
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stderr bytes.Buffer
	cmd.SetOut(&stderr)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stderr.String(), err
}

func swapRunner(t *testing.T, fn func(context.Context, config.Config, *zap.Logger) (runner, error)) {
	t.Helper()
	orig := newRunner
	newRunner = fn
	t.Cleanup(func() { newRunner = orig })
}

func TestRootRequiresStartURL(t *testing.T) {
	out, err := execute(t)
	require.Error(t, err)
	require.Contains(t, out, "Usage:")
	require.Contains(t, out, "accepts 1 arg(s), received 0")
}

func TestRootPrintsSummaryAndBindsFlags(t *testing.T) {
	fake := &fakeRunner{summary: app.Summary{
		Result:   crawler.Result{Pages: make([]crawler.PageRecord, 2)},
		Location: "/tmp/site_content.json",
	}}
	var got config.Config
	swapRunner(t, func(_ context.Context, cfg config.Config, _ *zap.Logger) (runner, error) {
		got = cfg
		return fake, nil
	})

	out, err := execute(t, "-w", "3", "-n", "5", "--timeout", "7", "-o", "out.json", "https://ex.com")
	require.NoError(t, err)
	require.Equal(t, "Done. 2 pages saved to /tmp/site_content.json\n", out)
	require.True(t, fake.closed)

	require.Equal(t, 3, got.Crawler.Workers)
	require.Equal(t, 5, got.Crawler.MaxPages)
	require.Equal(t, 7, got.HTTP.TimeoutSeconds)
	require.Equal(t, "out.json", got.Output.Path)
}

func TestRootReportsRunError(t *testing.T) {
	swapRunner(t, func(context.Context, config.Config, *zap.Logger) (runner, error) {
		return &fakeRunner{err: crawler.ErrInvalidSeed}, nil
	})

	out, err := execute(t, "not a url")
	require.ErrorIs(t, err, crawler.ErrInvalidSeed)
	require.Contains(t, out, "Error:")
	require.NotContains(t, out, "Usage:")
	require.NotContains(t, out, "Done.")
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	out, err := execute(t, "-w", "0", "https://ex.com")
	require.ErrorContains(t, err, "crawler.workers must be > 0")
	require.Contains(t, out, "Error:")
}

func TestRootEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<html><head><title>Home</title></head><body><p>Welcome</p><a href="/about">About</a></body></html>`))
		case "/about":
			_, _ = w.Write([]byte(`<html><head><title>About</title></head><body><p>About us</p></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	target := filepath.Join(t.TempDir(), "site_content.json")
	out, err := execute(t, "-w", "2", "-o", target, srv.URL)
	require.NoError(t, err)
	require.Contains(t, out, "Done. 2 pages saved to "+target)

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	var pages []crawler.PageRecord
	require.NoError(t, json.Unmarshal(data, &pages))
	require.Len(t, pages, 2)
}
