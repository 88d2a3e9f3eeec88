package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dtnitsch/aemo-scada/internal/common"
	"github.com/dtnitsch/aemo-scada/internal/mmstest"
	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/artifact_manager"
	"github.com/dtnitsch/aemo-scada/pkg/db"
	"github.com/dtnitsch/aemo-scada/pkg/fetcher"
	"github.com/dtnitsch/aemo-scada/pkg/lister"
	"github.com/dtnitsch/aemo-scada/pkg/manifest"
	"github.com/dtnitsch/aemo-scada/pkg/storage"
)

const (
	archive1 = "PUBLIC_DISPATCHSCADA_202510270005_0000000487000001.zip"
	archive2 = "PUBLIC_DISPATCHSCADA_202510270010_0000000487000002.zip"
)

// nemweb serves a directory listing plus the archives it names.
type nemweb struct {
	*httptest.Server
	archives  map[string][]byte
	failing   map[string]bool
	listings  atomic.Int64
	downloads atomic.Int64
}

func newNEMWeb(t *testing.T, archives map[string][]byte, listed ...string) *nemweb {
	t.Helper()
	n := &nemweb{archives: archives, failing: map[string]bool{}}
	n.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" {
			n.listings.Add(1)
			fmt.Fprint(w, "<html><body><pre>")
			for _, l := range listed {
				fmt.Fprintf(w, "<a href=\"%s\">%s</a><br>\n", l, l)
			}
			fmt.Fprint(w, "</pre></body></html>")
			return
		}
		n.downloads.Add(1)
		if n.failing[name] {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		body, ok := n.archives[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(n.Close)
	return n
}

func twoArchives(t *testing.T) map[string][]byte {
	return map[string][]byte{
		archive1: mmstest.Archive(t, archive1,
			mmstest.Reading{Timestamp: "2025/10/27 00:05:00", DUID: "CLUNY", Value: "1.5"},
			mmstest.Reading{Timestamp: "2025/10/27 00:05:00", DUID: "AGLSOM", Value: "-2"},
			mmstest.Reading{Timestamp: "2025/10/27 00:05:00", DUID: "BAYSW1", Value: "650"},
		),
		archive2: mmstest.Archive(t, archive2,
			mmstest.Reading{Timestamp: "2025/10/27 00:10:00", DUID: "CLUNY", Value: "3"},
			mmstest.Reading{Timestamp: "2025/10/27 00:10:00", DUID: "AGLSOM", Value: "0"},
			mmstest.Reading{Timestamp: "2025/10/27 00:10:00", DUID: "BAYSW1", Value: "655"},
		),
	}
}

func testPipeline(t *testing.T, listingURL, units string, ledger *db.DB) *Pipeline {
	t.Helper()
	date, err := common.ParseTradingDate("2025-10-27")
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := common.ParseUnits(units)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	cfg := &models.RunConfig{
		Date:         date,
		Units:        parsed,
		OutDir:       filepath.Join(dir, "aemo"),
		CacheDir:     filepath.Join(dir, "aemo", "archives"),
		ListingURL:   listingURL,
		ReportPrefix: models.DefaultReportPrefix,
		WorkerCount:  2,
		MaxAttempts:  2,
	}

	f := fetcher.NewFetcher()
	f.MaxAttempts = cfg.MaxAttempts
	f.Timeout = 5 * time.Second
	f.BackoffBase = time.Millisecond
	f.BackoffCap = time.Millisecond

	return &Pipeline{
		Config:  cfg,
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Fetcher: f,
		Ledger:  ledger,
	}
}

func memLedger(t *testing.T) *db.DB {
	t.Helper()
	ledger, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestPipeline_Run(t *testing.T) {
	srv := newNEMWeb(t, twoArchives(t), archive2, archive1)
	ledger := memLedger(t)
	p := testPipeline(t, srv.URL+"/", "CLUNY,AGLSOM", ledger)

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantPath := filepath.Join(p.Config.OutDir, "aemo_2025-10-27_CLUNY_AGLSOM_5min.csv")
	if out.OutputPath != wantPath {
		t.Errorf("OutputPath = %q, want %q", out.OutputPath, wantPath)
	}
	raw, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "timestamp,CLUNY,AGLSOM\n" +
		"2025-10-27 00:05:00,1.5,-2\n" +
		"2025-10-27 00:10:00,3,0\n"
	if string(raw) != want {
		t.Errorf("csv =\n%s\nwant\n%s", raw, want)
	}

	if out.Status != "success" || out.Stats.Archives != 2 || out.Stats.Downloaded != 2 {
		t.Errorf("output = %+v", out)
	}
	if out.Stats.DataRows != 6 || out.Stats.MatchedRows != 4 || out.Stats.OutputRows != 2 {
		t.Errorf("stats = %+v", out.Stats)
	}
	if out.Archives[0].Name != archive1 {
		t.Errorf("first archive = %q, want %q", out.Archives[0].Name, archive1)
	}

	m, err := manifest.Read(out.ManifestPath, &storage.Storage{})
	if err != nil {
		t.Fatalf("manifest.Read() error = %v", err)
	}
	if m.OutputRows != 2 || len(m.Archives) != 2 || m.RunID != out.RunID {
		t.Errorf("manifest = %+v", m)
	}

	run, err := ledger.GetRun(out.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != db.StatusSuccess || run.OutputRows != 2 || len(run.Archives) != 2 {
		t.Errorf("ledger run = %+v", run)
	}
}

func TestPipeline_Run_SecondRunUsesCache(t *testing.T) {
	srv := newNEMWeb(t, twoArchives(t), archive1, archive2)
	p := testPipeline(t, srv.URL+"/", "CLUNY", nil)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if got := srv.downloads.Load(); got != 2 {
		t.Fatalf("downloads after first run = %d, want 2", got)
	}

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if got := srv.downloads.Load(); got != 2 {
		t.Errorf("downloads after second run = %d, want 2", got)
	}
	if out.Stats.Cached != 2 || out.Stats.Downloaded != 0 {
		t.Errorf("stats = %+v, want 2 cached", out.Stats)
	}
	for _, a := range out.Archives {
		if a.Status != "cached" {
			t.Errorf("archive %s status = %q, want cached", a.Name, a.Status)
		}
	}
}

func TestPipeline_Run_ListingCache(t *testing.T) {
	srv := newNEMWeb(t, twoArchives(t), archive1, archive2)
	p := testPipeline(t, srv.URL+"/", "CLUNY", nil)
	p.Config.ListingTTL = time.Hour

	for i := 0; i < 2; i++ {
		if _, err := p.Run(context.Background()); err != nil {
			t.Fatalf("Run() #%d error = %v", i+1, err)
		}
	}
	if got := srv.listings.Load(); got != 1 {
		t.Errorf("listing requests = %d, want 1", got)
	}
}

func TestPipeline_Run_UnrequestedUnitIgnored(t *testing.T) {
	srv := newNEMWeb(t, twoArchives(t), archive1, archive2)
	p := testPipeline(t, srv.URL+"/", "BAYSW1,NOSUCH", nil)

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	raw, err := os.ReadFile(out.OutputPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "timestamp,BAYSW1,NOSUCH\n" +
		"2025-10-27 00:05:00,650,\n" +
		"2025-10-27 00:10:00,655,\n"
	if string(raw) != want {
		t.Errorf("csv =\n%s\nwant\n%s", raw, want)
	}
	if out.Stats.MatchedRows != 2 {
		t.Errorf("MatchedRows = %d, want 2", out.Stats.MatchedRows)
	}
}

func TestPipeline_Run_Wildcard(t *testing.T) {
	srv := newNEMWeb(t, twoArchives(t), archive1, archive2)
	p := testPipeline(t, srv.URL+"/", "*", nil)

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if filepath.Base(out.OutputPath) != "aemo_2025-10-27_ALL_5min.csv" {
		t.Errorf("OutputPath = %q", out.OutputPath)
	}
	raw, err := os.ReadFile(out.OutputPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if header := strings.SplitN(string(raw), "\n", 2)[0]; header != "timestamp,AGLSOM,BAYSW1,CLUNY" {
		t.Errorf("header = %q", header)
	}
}

func TestPipeline_Run_NoArchives(t *testing.T) {
	srv := newNEMWeb(t, nil, "PUBLIC_DISPATCHSCADA_202510260005_0000000486000001.zip")
	ledger := memLedger(t)
	p := testPipeline(t, srv.URL+"/", "CLUNY", ledger)

	out, err := p.Run(context.Background())
	var noArchives *lister.NoArchivesFoundError
	if !errors.As(err, &noArchives) {
		t.Fatalf("Run() error = %v, want NoArchivesFoundError", err)
	}
	if ExitCode(err) != ExitNoArchives {
		t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitNoArchives)
	}
	if out.Status != "failed" || out.ErrorType != ErrorTypeNoArchives {
		t.Errorf("output = %+v", out)
	}
	assertNoCSV(t, p.Config.OutDir)

	run, err := ledger.GetRun(out.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != db.StatusFailed || run.ErrorType != ErrorTypeNoArchives {
		t.Errorf("ledger run = %+v", run)
	}
}

func TestPipeline_Run_DownloadFailed(t *testing.T) {
	srv := newNEMWeb(t, twoArchives(t), archive1, archive2)
	srv.failing[archive2] = true
	p := testPipeline(t, srv.URL+"/", "CLUNY", nil)
	p.Config.WorkerCount = 1

	out, err := p.Run(context.Background())
	var download *fetcher.DownloadFailedError
	if !errors.As(err, &download) {
		t.Fatalf("Run() error = %v, want DownloadFailedError", err)
	}
	if download.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", download.Attempts)
	}
	if ExitCode(err) != ExitDownloadFailed || out.ErrorType != ErrorTypeDownload {
		t.Errorf("ExitCode() = %d, ErrorType = %q", ExitCode(err), out.ErrorType)
	}
	assertNoCSV(t, p.Config.OutDir)

	// The completed download survives for the next run.
	m, err := artifact_manager.NewManager(p.Config.CacheDir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(m.ArchivePath(p.Config.Date, archive1)); err != nil {
		t.Errorf("completed archive missing: %v", err)
	}
	if _, err := os.Stat(m.ArchivePath(p.Config.Date, archive2)); !os.IsNotExist(err) {
		t.Errorf("failed archive present: %v", err)
	}
}

func TestPipeline_Run_DayLocked(t *testing.T) {
	srv := newNEMWeb(t, twoArchives(t), archive1, archive2)
	p := testPipeline(t, srv.URL+"/", "CLUNY", nil)

	m, err := artifact_manager.NewManager(p.Config.CacheDir, 0)
	if err != nil {
		t.Fatal(err)
	}
	lock, err := m.AcquireDayLock(p.Config.Date)
	if err != nil {
		t.Fatalf("AcquireDayLock() error = %v", err)
	}
	defer lock.Release()

	_, err = p.Run(context.Background())
	if !errors.Is(err, artifact_manager.ErrDayLocked) {
		t.Fatalf("Run() error = %v, want ErrDayLocked", err)
	}
	if ExitCode(err) != ExitDayLocked {
		t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitDayLocked)
	}
	if srv.downloads.Load() != 0 {
		t.Errorf("downloads = %d, want 0", srv.downloads.Load())
	}
}

const bundle = "PUBLIC_DISPATCHSCADA_20251027.zip"

// dailyBundle nests the interval archives plus a later revision of 00:05.
func dailyBundle(t *testing.T) []byte {
	const revised = "PUBLIC_DISPATCHSCADA_202510270005_0000000487000009.zip"
	archives := twoArchives(t)
	return mmstest.Bundle(t,
		mmstest.Member{Name: revised, Body: mmstest.Archive(t, revised,
			mmstest.Reading{Timestamp: "2025/10/27 00:05:00", DUID: "CLUNY", Value: "9"})},
		mmstest.Member{Name: archive2, Body: archives[archive2]},
		mmstest.Member{Name: archive1, Body: archives[archive1]},
	)
}

func TestPipeline_Run_DailyBundle(t *testing.T) {
	srv := newNEMWeb(t, map[string][]byte{"archive/" + bundle: dailyBundle(t)})
	p := testPipeline(t, srv.URL+"/", "CLUNY,AGLSOM", nil)
	p.Config.ArchiveURL = srv.URL + "/archive/"

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Source != models.SourceArchive {
		t.Errorf("Source = %q, want %q", out.Source, models.SourceArchive)
	}
	if srv.listings.Load() != 0 || srv.downloads.Load() != 1 {
		t.Errorf("listings = %d, downloads = %d, want 0 and 1", srv.listings.Load(), srv.downloads.Load())
	}

	raw, err := os.ReadFile(out.OutputPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "timestamp,CLUNY,AGLSOM\n" +
		"2025-10-27 00:05:00,9,-2\n" +
		"2025-10-27 00:10:00,3,0\n"
	if string(raw) != want {
		t.Errorf("csv =\n%s\nwant\n%s", raw, want)
	}
	if out.Stats.Archives != 1 || out.Stats.MatchedRows != 5 {
		t.Errorf("stats = %+v, want 1 archive and 5 matched rows", out.Stats)
	}
}

func TestPipeline_Run_BundleMissingFallsBackToListing(t *testing.T) {
	srv := newNEMWeb(t, twoArchives(t), archive1, archive2)
	p := testPipeline(t, srv.URL+"/", "CLUNY", nil)
	p.Config.Source = models.SourceAuto
	p.Config.ArchiveURL = srv.URL + "/archive/"

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Source != models.SourceCurrent || out.Stats.Archives != 2 {
		t.Errorf("Source = %q, archives = %d, want current and 2", out.Source, out.Stats.Archives)
	}
	// One request for the missing bundle, then the two interval archives.
	if srv.listings.Load() != 1 || srv.downloads.Load() != 3 {
		t.Errorf("listings = %d, downloads = %d, want 1 and 3", srv.listings.Load(), srv.downloads.Load())
	}
}

func TestPipeline_Run_ArchiveSourceMissing(t *testing.T) {
	srv := newNEMWeb(t, twoArchives(t), archive1, archive2)
	p := testPipeline(t, srv.URL+"/", "CLUNY", nil)
	p.Config.Source = models.SourceArchive
	p.Config.ArchiveURL = srv.URL + "/archive/"

	out, err := p.Run(context.Background())
	var noArchives *lister.NoArchivesFoundError
	if !errors.As(err, &noArchives) {
		t.Fatalf("Run() error = %v, want NoArchivesFoundError", err)
	}
	if ExitCode(err) != ExitNoArchives || out.ErrorType != ErrorTypeNoArchives {
		t.Errorf("ExitCode() = %d, ErrorType = %q", ExitCode(err), out.ErrorType)
	}
	if srv.listings.Load() != 0 {
		t.Errorf("listings = %d, want 0", srv.listings.Load())
	}
	assertNoCSV(t, p.Config.OutDir)
}

func TestExtractAndStitch_ExtractError(t *testing.T) {
	path := filepath.Join(t.TempDir(), archive1)
	if err := os.WriteFile(path, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	archives := []manifest.ArchiveResult{{Name: archive1, FilePath: path}}
	_, _, err := ExtractAndStitch(slog.New(slog.NewJSONHandler(io.Discard, nil)), archives, []string{"CLUNY"})

	var extract *ExtractError
	if !errors.As(err, &extract) || extract.Archive != archive1 {
		t.Fatalf("error = %v, want ExtractError for %s", err, archive1)
	}
	if ErrorType(err) != ErrorTypeExtract || ExitCode(err) != ExitFailure {
		t.Errorf("ErrorType = %q, ExitCode = %d", ErrorType(err), ExitCode(err))
	}
}

func assertNoCSV(t *testing.T, outDir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(outDir, "*.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("unexpected output files: %v", matches)
	}
}
