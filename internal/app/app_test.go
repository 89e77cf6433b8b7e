package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/config"
	"github.com/Adda-Baaj/feedsmith/internal/feed"
	"github.com/Adda-Baaj/feedsmith/internal/pipeline"
)

func listingServer(t *testing.T) *httptest.Server {
	t.Helper()
	today := time.Now().UTC().Format("02/01/2006")
	mux := http.NewServeMux()
	mux.HandleFunc("/novinky/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div class="grid-items__pagenumber">
			<div class="grid-item"><h3 class="g-item__title"><a href="/knihy/1/">První</a></h3>
				<span class="titul-author"><a>Autor</a></span></div>
			<div class="grid-item"><h3 class="g-item__title"><a href="/knihy/2/">Druhá</a></h3></div>
		</div>`)
	})
	mux.HandleFunc("/clanky", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<div class="article">
			<h3 class="article__heading">Rozhovor</h3><a class="article__link" href="/clanky/rozhovor">číst</a>
			<div class="article__date">%s</div><p class="article__perex">Perex</p>
		</div>`, today)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Log:    config.LogConfig{Level: "info", Format: "console"},
		HTTP:   config.HTTPConfig{Timeout: "5s"},
		Cache:  config.CacheConfig{Backend: backend, BoltPath: filepath.Join(dir, "feeds.db")},
		RunLog: config.RunLogConfig{Path: filepath.Join(dir, "run.md"), Retention: "7d", MaxTitles: 20},
		Server: config.ServerConfig{Port: 8000, Dir: dir},
		Sources: []config.Source{
			{
				ID: "h7o", Name: "H7O", Type: "magazine", URL: baseURL + "/clanky", Enabled: true,
				MaxPages: 20, MaxAge: "90d", SinglePageAfterFirstRun: true,
				CacheFile: filepath.Join(dir, "articles_cache.json"), FeedFile: filepath.Join(dir, "h7o_feed.xml"),
				Feed: config.Feed{Title: "H7O", Language: "cs"},
			},
			{
				ID: "kosmas", Name: "Kosmas", Type: "bookstore", URL: baseURL + "/novinky/", Enabled: true,
				MaxPages: 10, MaxItems: 200, FeedLimit: 100,
				CacheFile: filepath.Join(dir, "kosmas_cache.json"), FeedFile: filepath.Join(dir, "kosmas_feed.xml"),
				Feed: config.Feed{Title: "Kosmas", Language: "cs"},
			},
		},
	}
}

func TestRunnerEndToEnd(t *testing.T) {
	for _, backend := range []string{"json", "bolt"} {
		t.Run(backend, func(t *testing.T) {
			srv := listingServer(t)
			cfg := testConfig(t, srv.URL, backend)
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}

			a, err := New(context.Background(), cfg, nil)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer a.Close()

			r, err := a.Runner(nil)
			if err != nil {
				t.Fatalf("Runner: %v", err)
			}
			reports, err := r.Run(context.Background(), pipeline.Options{})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(reports) != 2 || len(reports[0].New) != 1 || len(reports[1].New) != 2 {
				t.Fatalf("reports = %+v", reports)
			}

			summary, err := feed.Inspect(cfg.Sources[1].FeedFile)
			if err != nil {
				t.Fatalf("Inspect: %v", err)
			}
			if summary.Title != "Kosmas" || len(summary.Entries) != 2 {
				t.Fatalf("kosmas feed = %+v", summary)
			}
			if summary.Link != cfg.Sources[1].URL {
				t.Fatalf("channel link = %q", summary.Link)
			}

			cached, err := a.StoreFor(cfg.Sources[0]).Load(context.Background())
			if err != nil || len(cached) != 1 || cached[0].URL != srv.URL+"/clanky/rozhovor" {
				t.Fatalf("h7o cache = %+v err=%v", cached, err)
			}

			raw, err := os.ReadFile(cfg.RunLog.Path)
			if err != nil {
				t.Fatal(err)
			}
			if strings.Count(string(raw), "✅ Success") != 2 {
				t.Fatalf("run log:\n%s", raw)
			}

			// Second run finds nothing new and polls a single magazine page.
			reports, err = r.Run(context.Background(), pipeline.Options{})
			if err != nil {
				t.Fatalf("second Run: %v", err)
			}
			if len(reports[0].New) != 0 || len(reports[1].New) != 0 || reports[0].MaxPages != 1 {
				t.Fatalf("second run reports = %+v", reports)
			}
		})
	}
}

func TestSourcesSelection(t *testing.T) {
	cfg := testConfig(t, "https://example.test", "json")
	cfg.Sources[0].Enabled = false
	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	enabled, _ := a.Sources(nil)
	if len(enabled) != 1 || enabled[0].ID != "kosmas" {
		t.Fatalf("enabled = %+v", enabled)
	}
	picked, err := a.Sources([]string{"h7o"})
	if err != nil || len(picked) != 1 || picked[0].ID != "h7o" {
		t.Fatalf("picked = %+v err=%v", picked, err)
	}
	if _, err := a.Sources([]string{"nope"}); err == nil {
		t.Fatal("expected unknown source error")
	}
}

func TestNewFailsOnBadPublishersFile(t *testing.T) {
	cfg := testConfig(t, "https://example.test", "json")
	cfg.PublishersFile = filepath.Join(t.TempDir(), "publishers.yaml")
	if err := os.WriteFile(cfg.PublishersFile, []byte("publishers: [{id: x, type: smtp}]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(context.Background(), cfg, nil); err == nil || !strings.Contains(err.Error(), "publishers") {
		t.Fatalf("err = %v", err)
	}
}
