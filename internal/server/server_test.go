package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/services"
	"github.com/desertthunder/stemdeck/internal/shared"
	th "github.com/desertthunder/stemdeck/internal/testing"
)

const fixture = `{
	"bpm": 128, "key": "5A",
	"stem_files": {"vocal": "song_vocals.wav", "piano": "song_piano.wav", "guitar": "song_guitar.wav"},
	"meta": {"filename": "recorded.mp3", "title": "Recorded"}
}`

func newReplay(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	th.MustWriteFile(t, filepath.Join(dir, "song.json"), fixture)
	th.MustWriteFile(t, filepath.Join(dir, "song_vocals.wav"), "RIFFvocals")

	h, err := NewReplayHandler(ReplayOpts{Dir: dir})
	if err != nil {
		t.Fatalf("failed to create replay handler: %v", err)
	}

	logger := log.New(io.Discard)
	router := NewBasicRouter()
	router.Use(RecoverMiddleware(logger), LoggingMiddleware(logger))
	router.Handler(h)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, dir
}

func readEvents(t *testing.T, body io.ReadCloser) []models.AnalysisEvent {
	t.Helper()
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("failed to read stream: %v", err)
	}

	var events []models.AnalysisEvent
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		ev, err := models.ParseEvent(line)
		if err != nil {
			t.Fatalf("replay emitted malformed line %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"song.mp3", "song.mp3"},
		{"My Song (Remix).mp3", "My_Song_Remix.mp3"},
		{"../../etc/passwd", "etc_passwd"},
		{`C:\music\track.wav`, "C_music_track.wav"},
		{"  spaced   out .flac", "spaced_out_.flac"},
		{"Café.mp3", "Caf.mp3"},
		{"...", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SecureFilename(tt.in); got != tt.want {
				t.Errorf("SecureFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReplayHandler(t *testing.T) {
	t.Run("Analyze", func(t *testing.T) {
		srv, dir := newReplay(t)
		api := services.NewAnalyzerService(services.AnalyzerOpts{BaseURL: srv.URL})

		upload := filepath.Join(t.TempDir(), "song.mp3")
		th.MustWriteFile(t, upload, "ID3audio")

		body, err := api.Analyze(context.Background(), upload, shared.ModelSixStem)
		if err != nil {
			t.Fatalf("analyze failed: %v", err)
		}
		events := readEvents(t, body)

		if len(events) != 8 {
			t.Fatalf("expected 7 progress events and 1 complete, got %d", len(events))
		}
		if events[0].Kind != models.EventProgress || events[0].Message != "Loading audio file..." || events[0].Percent != 5 {
			t.Errorf("unexpected first event %+v", events[0])
		}
		if events[3].Message != "Separating (htdemucs_6s)..." {
			t.Errorf("unexpected separation message %q", events[3].Message)
		}

		done := events[7]
		if done.Kind != models.EventComplete {
			t.Fatalf("expected complete, got %+v", done)
		}
		if done.Track.Filename() != "song.mp3" || done.Track.BPM != 128 {
			t.Errorf("fixture should be rebound to the upload, got %s bpm %v", done.Track.Filename(), done.Track.BPM)
		}
		if done.Track.StemFile(models.StemPiano) != "song_piano.wav" {
			t.Errorf("six stem model keeps piano, got %q", done.Track.StemFile(models.StemPiano))
		}

		th.AssertFileExists(t, filepath.Join(dir, "song.mp3"))
	})

	t.Run("AnalyzeWithoutFixture", func(t *testing.T) {
		srv, _ := newReplay(t)
		api := services.NewAnalyzerService(services.AnalyzerOpts{BaseURL: srv.URL})

		upload := filepath.Join(t.TempDir(), "unknown.wav")
		th.MustWriteFile(t, upload, "RIFF")

		body, err := api.Analyze(context.Background(), upload, shared.ModelSixStem)
		if err != nil {
			t.Fatalf("analyze failed: %v", err)
		}
		events := readEvents(t, body)

		last := events[len(events)-1]
		if last.Kind != models.EventError || !strings.HasPrefix(last.Message, "Analysis failed:") {
			t.Errorf("expected error event, got %+v", last)
		}
	})

	t.Run("ReAnalyzeHighFidelity", func(t *testing.T) {
		srv, dir := newReplay(t)
		th.MustWriteFile(t, filepath.Join(dir, "song.mp3"), "ID3audio")
		api := services.NewAnalyzerService(services.AnalyzerOpts{BaseURL: srv.URL})

		body, err := api.ReAnalyze(context.Background(), "song.mp3", shared.ModelHighFidelity)
		if err != nil {
			t.Fatalf("re-analyze failed: %v", err)
		}
		events := readEvents(t, body)
		done := events[len(events)-1]

		if done.Kind != models.EventComplete {
			t.Fatalf("expected complete, got %+v", done)
		}
		if done.Track.StemFile(models.StemPiano) != "" || done.Track.StemFile(models.StemGuitar) != "" {
			t.Error("high fidelity model should have no piano or guitar")
		}
		if done.Track.StemFile(models.StemVocal) != "song_vocals.wav" {
			t.Errorf("vocal should survive, got %q", done.Track.StemFile(models.StemVocal))
		}
	})

	t.Run("ReAnalyzeMissing", func(t *testing.T) {
		srv, _ := newReplay(t)
		api := services.NewAnalyzerService(services.AnalyzerOpts{BaseURL: srv.URL})

		_, err := api.ReAnalyze(context.Background(), "nope.mp3", shared.ModelSixStem)
		if !errors.Is(err, shared.ErrTrackNotFound) || !strings.Contains(err.Error(), "File not found on server") {
			t.Errorf("expected not-found rejection, got %v", err)
		}
	})

	t.Run("Rejections", func(t *testing.T) {
		srv, _ := newReplay(t)

		tests := []struct {
			name, method, path, contentType, body string
			status                                 int
			message                                string
		}{
			{"NoFilename", http.MethodPost, "/re-analyze", "application/json", `{}`, 400, "No filename provided"},
			{"InvalidModel", http.MethodPost, "/re-analyze", "application/json", `{"filename":"a.mp3","model":"spleeter"}`, 400, "Invalid model"},
			{"InvalidFilename", http.MethodPost, "/re-analyze", "application/json", `{"filename":"..."}`, 400, "Invalid filename"},
			{"NoFilePart", http.MethodPost, "/analyze", "text/plain", `x`, 400, "No file part"},
			{"WrongMethod", http.MethodGet, "/analyze", "", "", 405, "Method not allowed"},
			{"MissingAudio", http.MethodGet, "/audio/missing.wav", "", "", 404, "File not found"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req, _ := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
				if tt.contentType != "" {
					req.Header.Set("Content-Type", tt.contentType)
				}
				resp, err := http.DefaultClient.Do(req)
				if err != nil {
					t.Fatalf("request failed: %v", err)
				}
				defer resp.Body.Close()

				if resp.StatusCode != tt.status {
					t.Errorf("expected status %d, got %d", tt.status, resp.StatusCode)
				}
				body, _ := io.ReadAll(resp.Body)
				if !strings.Contains(string(body), `"error":"`+tt.message+`"`) {
					t.Errorf("expected error %q, got %s", tt.message, body)
				}
			})
		}
	})

	t.Run("Audio", func(t *testing.T) {
		srv, _ := newReplay(t)
		api := services.NewAnalyzerService(services.AnalyzerOpts{BaseURL: srv.URL})

		var buf bytes.Buffer
		n, err := api.FetchAudio(context.Background(), "song_vocals.wav", &buf)
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if n != int64(len("RIFFvocals")) || buf.String() != "RIFFvocals" {
			t.Errorf("unexpected audio body %q", buf.String())
		}
	})

	t.Run("MissingDir", func(t *testing.T) {
		if _, err := NewReplayHandler(ReplayOpts{Dir: filepath.Join(t.TempDir(), "absent")}); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("Logging", func(t *testing.T) {
		var buf bytes.Buffer
		logger := log.New(&buf)

		h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			w.Write([]byte("short and stout"))
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/x.wav", nil))

		out := buf.String()
		if !strings.Contains(out, "status=418") || !strings.Contains(out, "path=/audio/x.wav") {
			t.Errorf("unexpected log line: %s", out)
		}
	})

	t.Run("Recover", func(t *testing.T) {
		h := RecoverMiddleware(log.New(io.Discard))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		called := false
		h := CORSMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/analyze", nil))
		if called || rec.Code != http.StatusNoContent {
			t.Errorf("preflight should short-circuit, got %d called=%v", rec.Code, called)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("missing allow-origin header")
		}
	})

	t.Run("Order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mark("first"), mark("second"))
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
		if strings.Join(order, ",") != "first,second" {
			t.Errorf("unexpected middleware order %v", order)
		}

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
		if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
			t.Errorf("expected Allow: GET, got %q", allow)
		}
	})

	t.Run("RoutesAndNotFound", func(t *testing.T) {
		h, err := NewReplayHandler(ReplayOpts{Dir: t.TempDir()})
		if err != nil {
			t.Fatal(err)
		}
		router := NewBasicRouter()
		router.Handle("get", "/health", http.NotFoundHandler())
		router.Handler(h)

		want := "/analyze,/audio/,/re-analyze,GET /health"
		if got := strings.Join(router.Routes(), ","); got != want {
			t.Errorf("routes = %s, want %s", got, want)
		}

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
		var body services.ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Error != "Not found" {
			t.Errorf("expected JSON error body, got %q (%v)", rec.Body.String(), err)
		}
	})
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	errs := make(chan error, 1)

	go func() {
		errs <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), log.New(io.Discard), ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	cancel()
	if err := <-errs; err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}
