package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/prodscrape/internal/crawler"
	"github.com/nao1215/prodscrape/internal/database"
	"github.com/nao1215/prodscrape/internal/fetcher"
	"github.com/nao1215/prodscrape/internal/model"
)

// fakeSpider implements Spider with canned results.
type fakeSpider struct {
	links       []string
	discoverErr error
	results     []crawler.PageResult
	crawlErr    error
	crawled     []string
}

func (f *fakeSpider) Discover(context.Context, string) ([]string, error) {
	return f.links, f.discoverErr
}

func (f *fakeSpider) Crawl(_ context.Context, links []string) (*model.Dataset, []crawler.PageResult, error) {
	f.crawled = links
	ds := model.NewDataset()
	for _, r := range f.results {
		if r.OK() {
			ds.Append(r.Record)
		}
	}
	return ds, f.results, f.crawlErr
}

// fakeSaver records saved runs.
type fakeSaver struct {
	saved []*model.Run
	err   error
}

func (f *fakeSaver) SaveRun(_ context.Context, run *model.Run) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.saved = append(f.saved, run)
	run.ID = int64(len(f.saved))
	return run.ID, nil
}

// bufferCloser is an in-memory export destination.
type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scraped(index int, url, modelName string) crawler.PageResult {
	rec := model.NewRecord(url)
	rec.Set(model.KeyModel, modelName)
	rec.Set(model.KeyPrice, "100 THB")
	return crawler.PageResult{Index: index, URL: url, Outcome: crawler.OutcomeScraped, Record: rec}
}

// TestDiscoverStep tests link discovery into the run.
func TestDiscoverStep(t *testing.T) {
	t.Parallel()

	t.Run("stores links", func(t *testing.T) {
		t.Parallel()

		spider := &fakeSpider{links: []string{"https://x/a", "https://x/b"}}
		run := model.NewRun("https://x/")

		if err := NewDiscoverStep(spider, WithStepLogger(discardLogger())).Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.LinksFound() != 2 {
			t.Errorf("expected 2 links, got %d", run.LinksFound())
		}
	})

	t.Run("zero links is not an error", func(t *testing.T) {
		t.Parallel()

		run := model.NewRun("https://x/")
		if err := NewDiscoverStep(&fakeSpider{links: []string{}}).Do(context.Background(), run); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("discovery failure is returned", func(t *testing.T) {
		t.Parallel()

		spider := &fakeSpider{discoverErr: crawler.ErrDiscovery}
		run := model.NewRun("https://x/")

		if err := NewDiscoverStep(spider).Do(context.Background(), run); !errors.Is(err, crawler.ErrDiscovery) {
			t.Errorf("expected ErrDiscovery, got %v", err)
		}
		if run.LinksFound() != 0 {
			t.Error("expected no links on failure")
		}
	})
}

// TestScrapeStep tests the crawl bookkeeping.
func TestScrapeStep(t *testing.T) {
	t.Parallel()

	t.Run("records dataset and failures", func(t *testing.T) {
		t.Parallel()

		spider := &fakeSpider{results: []crawler.PageResult{
			scraped(1, "https://x/a", "A"),
			{Index: 2, URL: "https://x/b", Outcome: crawler.OutcomeSkipped, Err: errors.New("timeout")},
			scraped(3, "https://x/c", "C"),
		}}
		run := model.NewRun("https://x/")
		run.Links = []string{"https://x/a", "https://x/b", "https://x/c"}

		if err := NewScrapeStep(spider, WithStepLogger(discardLogger())).Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if run.RecordsScraped() != 2 {
			t.Errorf("expected 2 records, got %d", run.RecordsScraped())
		}
		if len(run.Failures) != 1 || run.Failures[0].Index != 2 || run.Failures[0].Reason != "timeout" {
			t.Errorf("unexpected failures %+v", run.Failures)
		}
		if len(spider.crawled) != 3 {
			t.Errorf("expected all links crawled, got %v", spider.crawled)
		}
	})

	t.Run("no links skips crawl", func(t *testing.T) {
		t.Parallel()

		spider := &fakeSpider{}
		if err := NewScrapeStep(spider).Do(context.Background(), model.NewRun("u")); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if spider.crawled != nil {
			t.Error("expected crawl not to be called")
		}
	})

	t.Run("keeps partial dataset on cancellation", func(t *testing.T) {
		t.Parallel()

		spider := &fakeSpider{
			results:  []crawler.PageResult{scraped(1, "https://x/a", "A")},
			crawlErr: context.Canceled,
		}
		run := model.NewRun("u")
		run.Links = []string{"https://x/a", "https://x/b"}

		err := NewScrapeStep(spider).Do(context.Background(), run)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if run.RecordsScraped() != 1 {
			t.Errorf("expected partial dataset, got %d records", run.RecordsScraped())
		}
	})
}

// TestExportStep tests writing the dataset.
func TestExportStep(t *testing.T) {
	t.Parallel()

	t.Run("writes CSV and closes output", func(t *testing.T) {
		t.Parallel()

		out := &bufferCloser{}
		step := NewExportStep("csv", func() (io.WriteCloser, error) { return out, nil })

		run := model.NewRun("u")
		run.Dataset.Append(scraped(1, "https://x/a", "A").Record)

		if err := step.Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !out.closed {
			t.Error("expected output to be closed")
		}
		want := "URL,Model,Price\nhttps://x/a,A,100 THB\n"
		if out.String() != want {
			t.Errorf("expected %q, got %q", want, out.String())
		}
		if step.Written() != len(want) {
			t.Errorf("expected %d bytes, got %d", len(want), step.Written())
		}
	})

	t.Run("empty dataset opens nothing", func(t *testing.T) {
		t.Parallel()

		opened := false
		step := NewExportStep("csv", func() (io.WriteCloser, error) {
			opened = true
			return &bufferCloser{}, nil
		})

		if err := step.Do(context.Background(), model.NewRun("u")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if opened {
			t.Error("expected output not to be opened")
		}
	})

	t.Run("open failure is wrapped", func(t *testing.T) {
		t.Parallel()

		openErr := errors.New("permission denied")
		step := NewExportStep("csv", func() (io.WriteCloser, error) { return nil, openErr })

		run := model.NewRun("u")
		run.Dataset.Append(model.NewRecord("https://x/a"))

		if err := step.Do(context.Background(), run); !errors.Is(err, openErr) {
			t.Errorf("expected open error, got %v", err)
		}
	})
}

// TestSaveStep tests persisting the run.
func TestSaveStep(t *testing.T) {
	t.Parallel()

	t.Run("saves run", func(t *testing.T) {
		t.Parallel()

		saver := &fakeSaver{}
		run := model.NewRun("u")
		if err := NewSaveStep(saver).Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.ID != 1 || len(saver.saved) != 1 {
			t.Errorf("expected run to be saved, got ID %d", run.ID)
		}
	})

	t.Run("save failure is wrapped", func(t *testing.T) {
		t.Parallel()

		saveErr := errors.New("locked")
		if err := NewSaveStep(&fakeSaver{err: saveErr}).Do(context.Background(), model.NewRun("u")); !errors.Is(err, saveErr) {
			t.Errorf("expected save error, got %v", err)
		}
	})

	t.Run("nil saver fails", func(t *testing.T) {
		t.Parallel()

		if err := NewSaveStep(nil).Do(context.Background(), model.NewRun("u")); err == nil {
			t.Error("expected error for nil saver")
		}
	})
}

// TestDefaultPipeline tests the assembled pipeline.
func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	t.Run("step names", func(t *testing.T) {
		t.Parallel()

		p := DefaultPipeline(&fakeSpider{}, nil,
			WithExport(NewExportStep("csv", nil)),
			WithSaver(&fakeSaver{}),
		)

		want := "discover,scrape,export,save"
		if got := strings.Join(p.StepNames(), ","); got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	})

	t.Run("discovery failure still saves the run", func(t *testing.T) {
		t.Parallel()

		saver := &fakeSaver{}
		p := DefaultPipeline(&fakeSpider{discoverErr: crawler.ErrDiscovery},
			[]Option{WithLogger(discardLogger())},
			WithSaver(saver),
		)

		run := model.NewRun("https://x/")
		if err := p.Execute(context.Background(), run); !errors.Is(err, crawler.ErrDiscovery) {
			t.Errorf("expected ErrDiscovery, got %v", err)
		}
		if len(saver.saved) != 1 || !saver.saved[0].Failed() {
			t.Error("expected failed run to be saved")
		}
	})
}

// TestDefaultPipelineEndToEnd runs the real spider against a local site and
// stores the run in a real database.
func TestDefaultPipelineEndToEnd(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body>
			<div class="product"><a href="/p/1">one</a></div>
			<div class="product"><a href="/p/2">two</a></div>
		</body></html>`)
	})
	mux.HandleFunc("/p/1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
			<h1 style="margin: auto;">M-1</h1>
			<div class="col-xs-12 color_orange fs36 bolder detailresfs3">10 THB</div>
			<div class="col-xs-12 paddTB10 product_detail_divider paddL20">Weight: 1kg</div>
		</body></html>`)
	})
	mux.HandleFunc("/p/2", func(w http.ResponseWriter, _ *http.Request) {
		panic(http.ErrAbortHandler)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	spider, err := crawler.NewSpider(
		fetcher.New(server.Client(), fetcher.WithTimeout(5*time.Second)),
		server.URL,
		crawler.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		crawler.WithLogger(discardLogger()),
	)
	if err != nil {
		t.Fatalf("failed to create spider: %v", err)
	}

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	out := &bufferCloser{}
	p := DefaultPipeline(spider, []Option{WithLogger(discardLogger())},
		WithExport(NewExportStep("csv", func() (io.WriteCloser, error) { return out, nil })),
		WithSaver(db),
		WithStepOptions(WithStepLogger(discardLogger())),
	)

	run := model.NewRun(server.URL + "/")
	if err := p.Execute(context.Background(), run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.LinksFound() != 2 || run.RecordsScraped() != 1 || len(run.Failures) != 1 {
		t.Fatalf("unexpected run: links=%d records=%d failures=%d",
			run.LinksFound(), run.RecordsScraped(), len(run.Failures))
	}

	want := "URL,Model,Price,Weight\n" + server.URL + "/p/1,M-1,10 THB,1kg\n"
	if out.String() != want {
		t.Errorf("expected CSV %q, got %q", want, out.String())
	}

	saved, err := db.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("failed to load saved run: %v", err)
	}
	if saved.RecordsScraped() != 1 || saved.Dataset.Records[0].Value("Weight") != "1kg" {
		t.Errorf("unexpected saved dataset %+v", saved.Dataset.Records)
	}
}
