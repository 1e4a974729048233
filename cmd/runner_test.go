package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemdeck/internal/mixer"
	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/server"
	"github.com/desertthunder/stemdeck/internal/services"
	"github.com/desertthunder/stemdeck/internal/shared"
	tu "github.com/desertthunder/stemdeck/internal/testing"
	"github.com/urfave/cli/v3"
)

const songFixture = `{
	"bpm": 128, "key": "5A", "danceability": 72,
	"cues": [{"id": "c1", "label": "Drop", "time": "1:04", "type": "point"}],
	"stem_files": {"vocal": "song_vocals.wav", "piano": "song_piano.wav"},
	"meta": {"filename": "recorded.mp3", "title": "Recorded"}
}`

// harness wires a runner to an in-memory library and a replay backend.
type harness struct {
	runner  *Runner
	output  *bytes.Buffer
	upload  string // local file to analyze
	backend string // replay fixtures dir
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	backend := t.TempDir()
	tu.MustWriteFile(t, filepath.Join(backend, "song.json"), songFixture)
	tu.MustWriteFile(t, filepath.Join(backend, "song_vocals.wav"), "RIFFvocals")

	logger := log.New(io.Discard)
	handler, err := server.NewReplayHandler(server.ReplayOpts{Dir: backend, Logger: logger})
	if err != nil {
		t.Fatalf("failed to create replay handler: %v", err)
	}
	router := server.NewBasicRouter()
	router.Use(server.RecoverMiddleware(logger))
	router.Handler(handler)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)
	if _, err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	upload := filepath.Join(t.TempDir(), "song.mp3")
	tu.MustWriteFile(t, upload, "ID3fake")

	config := shared.DefaultConfig()
	config.Backend.URL = srv.URL
	config.Watch.RateLimit = 100

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config: config,
		API:    services.NewAnalyzerService(services.AnalyzerOpts{BaseURL: srv.URL}),
		Logger: logger,
		Output: output,
		DB:     db,
		NewMixer: func() *mixer.Synchronizer {
			return mixer.New(mixer.Opts{Factory: mixer.NewNullFactory(), Interval: 10 * time.Millisecond})
		},
	})
	return &harness{runner: runner, output: output, upload: upload, backend: backend}
}

// run executes one command line against the runner, resetting captured output first.
func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	h.output.Reset()
	app := &cli.Command{
		Name:     "stemdeck",
		Commands: h.runner.register(),
		Writer:   io.Discard,
	}
	return app.Run(context.Background(), append([]string{"stemdeck"}, args...))
}

func (h *harness) analyze(t *testing.T) {
	t.Helper()
	if err := h.run(t, "analyze", h.upload); err != nil {
		t.Fatalf("analyze failed: %v\n%s", err, h.output.String())
	}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			api := services.NewAnalyzerService(services.AnalyzerOpts{BaseURL: "http://backend"})

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				API:        api,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.api != api {
				t.Error("expected api to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if got := runner.api.BaseURL(); got != runner.config.Backend.URL {
				t.Errorf("expected api from config URL, got %s", got)
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("with nil mixer uses config", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Mixer.Player = "null"
			runner := NewRunner(RunnerOpts{Config: config})

			sync := runner.newMixer()
			if sync == nil {
				t.Fatal("expected a synchronizer")
			}
			sync.Close()
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/test/path/config.toml"})

			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			// channels cannot be marshaled to JSON
			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "analyze", "reanalyze", "watch", "tracks", "runs", "audio", "play", "replay", "tui"} {
			if !names[want] {
				t.Errorf("expected %s command to be registered", want)
			}
		}
	})

	t.Run("model", func(t *testing.T) {
		h := newHarness(t)
		err := h.run(t, "analyze", "--model", "htdemucs_9s", h.upload)
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})
}

func TestAnalyzeCommands(t *testing.T) {
	t.Run("Analyze", func(t *testing.T) {
		h := newHarness(t)
		h.analyze(t)

		out := h.output.String()
		if !strings.Contains(out, "Separating (htdemucs_6s)") {
			t.Errorf("expected progress output, got:\n%s", out)
		}

		stored, err := h.runner.tracks.Get("song.mp3")
		if err != nil {
			t.Fatalf("expected stored track: %v", err)
		}
		if stored.Track.BPM != 128 || stored.Track.DisplayTitle() != "Recorded" {
			t.Errorf("unexpected stored track %+v", stored.Track)
		}
		if _, ok := h.runner.engine.Tracks().Get("song.mp3"); !ok {
			t.Error("expected track in session collection")
		}
	})

	t.Run("AnalyzeJSON", func(t *testing.T) {
		h := newHarness(t)
		if err := h.run(t, "analyze", "--json", h.upload); err != nil {
			t.Fatalf("analyze failed: %v", err)
		}

		var run models.AnalysisRun
		if err := json.Unmarshal(h.output.Bytes(), &run); err != nil {
			t.Fatalf("expected run JSON, got %q: %v", h.output.String(), err)
		}
		if run.Kind != models.RunAnalyze || len(run.Completed) != 1 || run.Completed[0] != "song.mp3" {
			t.Errorf("unexpected run %+v", run)
		}
	})

	t.Run("MissingArgument", func(t *testing.T) {
		h := newHarness(t)
		if err := h.run(t, "analyze"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("NoFixture", func(t *testing.T) {
		h := newHarness(t)
		other := filepath.Join(filepath.Dir(h.upload), "unknown.mp3")
		tu.MustWriteFile(t, other, "ID3")

		err := h.run(t, "analyze", other)
		if !errors.Is(err, shared.ErrAnalysisRejected) {
			t.Errorf("expected ErrAnalysisRejected, got %v", err)
		}
		if !strings.Contains(h.output.String(), "Analysis failed") {
			t.Errorf("expected reported error, got:\n%s", h.output.String())
		}
	})

	t.Run("Batch", func(t *testing.T) {
		h := newHarness(t)
		tu.MustWriteFile(t, filepath.Join(h.backend, "other.json"), `{"bpm": 90, "meta": {"filename": "x"}}`)
		other := filepath.Join(filepath.Dir(h.upload), "other.mp3")
		tu.MustWriteFile(t, other, "ID3")

		if err := h.run(t, "analyze", "--workers", "2", h.upload, other); err != nil {
			t.Fatalf("batch failed: %v\n%s", err, h.output.String())
		}
		if !strings.Contains(h.output.String(), "Succeeded: 2") {
			t.Errorf("expected batch summary, got:\n%s", h.output.String())
		}
		if n, _ := h.runner.tracks.Count(); n != 2 {
			t.Errorf("expected 2 stored tracks, got %d", n)
		}
	})

	t.Run("ReAnalyze", func(t *testing.T) {
		h := newHarness(t)
		h.analyze(t)

		if err := h.run(t, "reanalyze", "song.mp3"); err != nil {
			t.Fatalf("reanalyze failed: %v", err)
		}
		if !strings.Contains(h.output.String(), "Separating (htdemucs_ft)") {
			t.Errorf("expected high fidelity by default, got:\n%s", h.output.String())
		}

		stored, err := h.runner.tracks.Get("song.mp3")
		if err != nil {
			t.Fatal(err)
		}
		if f := stored.Track.StemFile(models.StemPiano); f != "" {
			t.Errorf("expected piano blanked, got %q", f)
		}
		if f := stored.Track.StemFile(models.StemVocal); f != "song_vocals.wav" {
			t.Errorf("expected vocal kept, got %q", f)
		}
	})

	t.Run("ReAnalyzeUnknown", func(t *testing.T) {
		h := newHarness(t)
		err := h.run(t, "reanalyze", "ghost.mp3")
		if !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})
}

func TestTracksCommands(t *testing.T) {
	t.Run("ListEmpty", func(t *testing.T) {
		h := newHarness(t)
		if err := h.run(t, "tracks", "list"); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(h.output.String(), "Library is empty") {
			t.Errorf("unexpected output:\n%s", h.output.String())
		}
	})

	h := newHarness(t)
	h.analyze(t)

	t.Run("List", func(t *testing.T) {
		if err := h.run(t, "tracks", "list"); err != nil {
			t.Fatal(err)
		}
		out := h.output.String()
		for _, want := range []string{"Library (1 tracks)", "song.mp3", "128.0 BPM", "5A", "Recorded"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in:\n%s", want, out)
			}
		}
	})

	t.Run("ListJSON", func(t *testing.T) {
		if err := h.run(t, "tracks", "list", "--json"); err != nil {
			t.Fatal(err)
		}
		var records []map[string]any
		if err := json.Unmarshal(h.output.Bytes(), &records); err != nil {
			t.Fatalf("expected JSON array: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("expected 1 record, got %d", len(records))
		}
	})

	t.Run("Show", func(t *testing.T) {
		if err := h.run(t, "tracks", "show", "song.mp3"); err != nil {
			t.Fatal(err)
		}
		out := h.output.String()
		if !strings.Contains(out, "Track: Recorded") || !strings.Contains(out, "Cues: 1") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("ShowRaw", func(t *testing.T) {
		if err := h.run(t, "tracks", "show", "--json", "--pretty=false", "song.mp3"); err != nil {
			t.Fatal(err)
		}
		track, err := models.ParseTrackRecord(bytes.TrimSpace(h.output.Bytes()))
		if err != nil {
			t.Fatalf("expected stored record: %v", err)
		}
		if track.Filename() != "song.mp3" {
			t.Errorf("expected song.mp3, got %s", track.Filename())
		}
	})

	t.Run("ShowMissing", func(t *testing.T) {
		err := h.run(t, "tracks", "show", "ghost.mp3")
		if !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("Cues", func(t *testing.T) {
		if err := h.run(t, "tracks", "cues", "song.mp3"); err != nil {
			t.Fatal(err)
		}
		if out := h.output.String(); !strings.Contains(out, "Drop") || !strings.Contains(out, "point") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("Export", func(t *testing.T) {
		tests := []struct {
			format string
			files  []string
		}{
			{"txt", []string{"song.txt"}},
			{"csv", []string{"song_cues.csv", "song_metadata.json"}},
			{"markdown", []string{filepath.Join("song", "README.md")}},
		}

		for _, tt := range tests {
			t.Run(tt.format, func(t *testing.T) {
				dir := t.TempDir()
				if err := h.run(t, "tracks", "export", "--format", tt.format, "--output", dir, "song.mp3"); err != nil {
					t.Fatalf("export failed: %v", err)
				}
				for _, f := range tt.files {
					tu.AssertFileExists(t, filepath.Join(dir, f))
				}
			})
		}

		t.Run("UnknownFormat", func(t *testing.T) {
			err := h.run(t, "tracks", "export", "--format", "pdf", "song.mp3")
			if !errors.Is(err, shared.ErrInvalidFlag) {
				t.Errorf("expected ErrInvalidFlag, got %v", err)
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		if err := h.run(t, "tracks", "delete", "song.mp3"); err != nil {
			t.Fatal(err)
		}
		if _, ok := h.runner.engine.Tracks().Get("song.mp3"); ok {
			t.Error("expected track removed from session collection")
		}
		if err := h.run(t, "tracks", "delete", "song.mp3"); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound on second delete, got %v", err)
		}
	})
}

func TestRunsCommand(t *testing.T) {
	h := newHarness(t)

	if err := h.run(t, "runs"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(h.output.String(), "No runs recorded yet") {
		t.Errorf("unexpected output:\n%s", h.output.String())
	}

	h.analyze(t)
	if err := h.run(t, "runs"); err != nil {
		t.Fatal(err)
	}
	out := h.output.String()
	if !strings.Contains(out, "Recent Runs") || !strings.Contains(out, "✓") || !strings.Contains(out, "analyze") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if err := h.run(t, "runs", "--json"); err != nil {
		t.Fatal(err)
	}
	var runs []models.AnalysisRun
	if err := json.Unmarshal(h.output.Bytes(), &runs); err != nil {
		t.Fatalf("expected JSON: %v", err)
	}
	if len(runs) != 1 || runs[0].Model != shared.ModelSixStem {
		t.Errorf("unexpected runs %+v", runs)
	}
}

func TestAudioCommands(t *testing.T) {
	h := newHarness(t)
	h.analyze(t)

	t.Run("FetchMain", func(t *testing.T) {
		dir := t.TempDir()
		if err := h.run(t, "audio", "fetch", "-o", dir, "song.mp3"); err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if got := tu.MustReadFile(t, filepath.Join(dir, "song.mp3")); got != "ID3fake" {
			t.Errorf("expected uploaded bytes, got %q", got)
		}
	})

	t.Run("FetchStemsPartial", func(t *testing.T) {
		dir := t.TempDir()
		err := h.run(t, "audio", "fetch", "--stems", "-o", dir, "song.mp3")
		if err == nil || !strings.Contains(err.Error(), "1 of 3") {
			t.Errorf("expected piano download to fail, got %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(dir, "song_vocals.wav"))
		if _, err := os.Stat(filepath.Join(dir, "song_piano.wav")); !os.IsNotExist(err) {
			t.Error("expected failed download to be removed")
		}
	})

	t.Run("OpenUnknownStem", func(t *testing.T) {
		err := h.run(t, "audio", "open", "--stem", "kazoo", "song.mp3")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("OpenAbsentStem", func(t *testing.T) {
		err := h.run(t, "audio", "open", "--stem", "kick", "song.mp3")
		if !errors.Is(err, shared.ErrStemUnavailable) {
			t.Errorf("expected ErrStemUnavailable, got %v", err)
		}
	})
}

func TestPlayCommand(t *testing.T) {
	h := newHarness(t)
	h.analyze(t)

	t.Run("PlaysForDuration", func(t *testing.T) {
		if err := h.run(t, "play", "--stems", "vocal", "--seek", "10", "--for", "50ms", "song.mp3"); err != nil {
			t.Fatalf("play failed: %v", err)
		}
		if !strings.Contains(h.output.String(), "Loading Recorded") {
			t.Errorf("unexpected output:\n%s", h.output.String())
		}
	})

	t.Run("UnknownStem", func(t *testing.T) {
		err := h.run(t, "play", "--stems", "kazoo", "song.mp3")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("UnknownTrack", func(t *testing.T) {
		err := h.run(t, "play", "ghost.mp3")
		if !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})
}

func TestReplayCommand(t *testing.T) {
	t.Run("MissingDir", func(t *testing.T) {
		h := newHarness(t)
		err := h.run(t, "replay", "--fixtures", filepath.Join(t.TempDir(), "nope"))
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("ServesUntilCanceled", func(t *testing.T) {
		h := newHarness(t)
		h.runner.config.Server.Host = "127.0.0.1"
		h.runner.config.Server.Port = 0

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		app := &cli.Command{Name: "stemdeck", Commands: h.runner.register(), Writer: io.Discard}
		if err := app.Run(ctx, []string{"stemdeck", "replay", "--fixtures", h.backend}); err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	})
}
