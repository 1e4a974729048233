package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/services"
	"github.com/desertthunder/stemdeck/internal/shared"
)

const maxUploadMemory = 32 << 20

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces a client-supplied name to a flat ASCII filename.
// Separators become spaces, whitespace runs become "_", anything else outside [A-Za-z0-9_.-] is dropped.
// The result may be empty.
func SecureFilename(name string) string {
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// ReplayOpts configures a [ReplayHandler].
type ReplayOpts struct {
	Dir    string        // fixtures and audio assets
	Delay  time.Duration // pause between streamed progress events
	Logger *log.Logger
}

// ReplayHandler serves the analysis backend API from recorded fixtures.
//
// A track fixture is {name}.json in Dir holding a TrackRecord; uploads are stored in Dir
// so they can be re-analyzed and fetched. Streams use the same NDJSON events as the real backend.
type ReplayHandler struct {
	dir    string
	delay  time.Duration
	logger *log.Logger
}

// NewReplayHandler creates a handler over opts.Dir, which must exist.
func NewReplayHandler(opts ReplayOpts) (*ReplayHandler, error) {
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: fixtures dir: %w", shared.ErrInvalidArgument, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", shared.ErrInvalidArgument, opts.Dir)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &ReplayHandler{
		dir:    opts.Dir,
		delay:  opts.Delay,
		logger: shared.WithLogger(opts.Logger, "component", "replay"),
	}, nil
}

// Routes returns the HTTP routes this handler serves.
func (h *ReplayHandler) Routes() []string {
	return []string{"/analyze", "/re-analyze", "/audio/"}
}

func (h *ReplayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/analyze":
		h.allow(w, r, http.MethodPost, h.analyze)
	case r.URL.Path == "/re-analyze":
		h.allow(w, r, http.MethodPost, h.reAnalyze)
	case strings.HasPrefix(r.URL.Path, "/audio/"):
		h.allow(w, r, http.MethodGet, h.audio)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *ReplayHandler) allow(w http.ResponseWriter, r *http.Request, method string, fn http.HandlerFunc) {
	if r.Method != method && !(method == http.MethodGet && r.Method == http.MethodHead) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	fn(w, r)
}

func (h *ReplayHandler) analyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}
	filename := SecureFilename(header.Filename)
	if filename == "" {
		writeError(w, http.StatusBadRequest, "Invalid filename")
		return
	}

	model := r.FormValue("model")
	if model == "" {
		model = shared.ModelSixStem
	}
	if err := shared.ValidateModel(model); err != nil {
		h.logger.Warn("rejected analyze request with invalid model", "model", model)
		writeError(w, http.StatusBadRequest, "Invalid model")
		return
	}

	if err := h.store(filename, file); err != nil {
		h.logger.Error("failed to store upload", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	h.logger.Info("queued analyze request", "filename", filename, "model", model)
	h.stream(r.Context(), w, filename, model)
}

func (h *ReplayHandler) reAnalyze(w http.ResponseWriter, r *http.Request) {
	var req services.ReAnalyzeRequest
	json.NewDecoder(r.Body).Decode(&req)

	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "No filename provided")
		return
	}
	if req.Model == "" {
		req.Model = shared.ModelSixStem
	}
	if err := shared.ValidateModel(req.Model); err != nil {
		h.logger.Warn("rejected re-analyze request with invalid model", "model", req.Model)
		writeError(w, http.StatusBadRequest, "Invalid model")
		return
	}

	filename := SecureFilename(filepath.Base(req.Filename))
	if filename == "" {
		writeError(w, http.StatusBadRequest, "Invalid filename")
		return
	}
	if _, err := os.Stat(filepath.Join(h.dir, filename)); err != nil {
		writeError(w, http.StatusNotFound, "File not found on server")
		return
	}

	h.stream(r.Context(), w, filename, req.Model)
}

func (h *ReplayHandler) audio(w http.ResponseWriter, r *http.Request) {
	filename := SecureFilename(strings.TrimPrefix(r.URL.Path, "/audio/"))
	if filename == "" {
		writeError(w, http.StatusBadRequest, "Invalid filename")
		return
	}

	path := filepath.Join(h.dir, filename)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	h.logger.Debug("serving audio file", "filename", filename)
	http.ServeFile(w, r, path)
}

func (h *ReplayHandler) store(filename string, src io.Reader) error {
	dst, err := os.Create(filepath.Join(h.dir, filename))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// stream writes the progress sequence for model followed by the fixture's complete event,
// or an error event when no fixture matches.
func (h *ReplayHandler) stream(ctx context.Context, w http.ResponseWriter, filename, model string) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	emit := func(line []byte) bool {
		if _, err := w.Write(line); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		if h.delay <= 0 {
			return ctx.Err() == nil
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(h.delay):
			return true
		}
	}

	for _, step := range progressSteps(model) {
		if !emit(models.ProgressLine(step.message, step.percent)) {
			h.logger.Debug("client went away", "filename", filename)
			return
		}
	}

	payload, err := h.fixture(filename, model)
	if err != nil {
		h.logger.Warn("no fixture for track", "filename", filename, "error", err)
		emit(models.ErrorLine("Analysis failed: " + err.Error()))
		return
	}
	emit(models.CompleteLine(payload))
}

type progressStep struct {
	message string
	percent int
}

func progressSteps(model string) []progressStep {
	return []progressStep{
		{"Loading audio file...", 5},
		{"Detecting BPM & Key...", 10},
		{"Fetching metadata...", 20},
		{fmt.Sprintf("Separating (%s)...", model), 30},
		{"Splitting Drums (Kick/Hats)...", 70},
		{"Generating Waveforms...", 80},
		{"Final Analysis...", 90},
	}
}

// fixture loads {name}.json for filename and rebinds its identity to filename.
// The high fidelity model has no piano or guitar stems.
func (h *ReplayHandler) fixture(filename, model string) ([]byte, error) {
	name := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".json"
	data, err := os.ReadFile(filepath.Join(h.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no recorded analysis for %s", filename)
	}
	if err != nil {
		return nil, err
	}

	var record map[string]json.RawMessage
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", name, err)
	}

	meta := map[string]any{}
	if raw, ok := record["meta"]; ok {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("fixture %s meta: %w", name, err)
		}
	}
	meta["filename"] = filename
	if record["meta"], err = json.Marshal(meta); err != nil {
		return nil, err
	}

	stemFiles := map[string]string{}
	if raw, ok := record["stem_files"]; ok {
		json.Unmarshal(raw, &stemFiles)
	}
	stemFiles[string(models.StemMain)] = filename
	if model == shared.ModelHighFidelity {
		stemFiles[string(models.StemPiano)] = ""
		stemFiles[string(models.StemGuitar)] = ""
	}
	if record["stem_files"], err = json.Marshal(stemFiles); err != nil {
		return nil, err
	}

	return json.Marshal(record)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(services.ErrorResponse{Error: message})
}
