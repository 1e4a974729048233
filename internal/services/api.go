// HTTP client for the analysis backend
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/stemdeck/internal/shared"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "http://localhost:5000"

// AnalyzerService talks to the analysis backend over HTTP.
//
// Streaming calls (Analyze, ReAnalyze, FetchAudio) are bounded by the caller's context only,
// so the configured timeout never cuts an in-flight analysis short.
type AnalyzerService struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// AnalyzerOpts configures [NewAnalyzerService].
type AnalyzerOpts struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Client  *http.Client
}

// NewAnalyzerService creates a client for the backend at opts.BaseURL.
//
// A non-empty token is attached as a bearer token through [oauth2.StaticTokenSource].
func NewAnalyzerService(opts AnalyzerOpts) *AnalyzerService {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, opts.Client)
		opts.Client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.Token,
			TokenType:   "Bearer",
		}))
	}

	return &AnalyzerService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.Client,
		timeout:    opts.Timeout,
	}
}

// NewAnalyzerFromConfig creates a client from the [backend] config section.
func NewAnalyzerFromConfig(cfg shared.BackendConfig) *AnalyzerService {
	return NewAnalyzerService(AnalyzerOpts{BaseURL: cfg.URL, Token: cfg.Token, Timeout: cfg.Timeout()})
}

// BaseURL returns the backend root without a trailing slash.
func (a *AnalyzerService) BaseURL() string { return a.baseURL }

// Analyze uploads the file at path as multipart fields "file" and "model".
//
// The body is streamed from disk through an [io.Pipe], so large files are never held in memory.
func (a *AnalyzerService) Analyze(ctx context.Context, path, model string) (io.ReadCloser, error) {
	if err := shared.ValidateModel(model); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer f.Close()
		err := writeUpload(mw, f, filepath.Base(path), model)
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/analyze", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/x-ndjson")

	return a.stream(req)
}

func writeUpload(mw *multipart.Writer, src io.Reader, name, model string) error {
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to stream upload: %w", err)
	}
	if err := mw.WriteField("model", model); err != nil {
		return err
	}
	return mw.Close()
}

// ReAnalyze asks the backend to run a file it already stores through model again.
func (a *AnalyzerService) ReAnalyze(ctx context.Context, filename, model string) (io.ReadCloser, error) {
	if err := shared.ValidateModel(model); err != nil {
		return nil, err
	}
	if filename == "" {
		return nil, fmt.Errorf("%w: filename", shared.ErrMissingArgument)
	}

	body, err := json.Marshal(ReAnalyzeRequest{Filename: filename, Model: model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/re-analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	return a.stream(req)
}

// AudioURL returns the URL of a stored asset.
func (a *AnalyzerService) AudioURL(filename string) string {
	return a.baseURL + "/audio/" + url.PathEscape(filename)
}

// FetchAudio downloads a stored asset into w and returns the byte count.
func (a *AnalyzerService) FetchAudio(ctx context.Context, filename string, w io.Writer) (int64, error) {
	if filename == "" {
		return 0, fmt.Errorf("%w: filename", shared.ErrMissingArgument)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.AudioURL(filename), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := a.stream(req)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("%w: %v", shared.ErrBackendUnreachable, err)
	}
	return n, nil
}

// Ping checks that the backend answers HTTP at all, within the configured timeout.
//
// Any HTTP status counts as reachable.
func (a *AnalyzerService) Ping(ctx context.Context) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", shared.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", shared.ErrBackendUnreachable, err)
	}
	resp.Body.Close()
	return nil
}

// stream performs req and returns the body of a 2xx response unread.
func (a *AnalyzerService) stream(req *http.Request) (io.ReadCloser, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrBackendUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, rejection(resp)
	}
	return resp.Body, nil
}

// rejection builds an [shared.ErrAnalysisRejected] error from a non-2xx response.
func rejection(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var e ErrorResponse
	msg := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		msg = e.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w: %s", shared.ErrAnalysisRejected, shared.ErrTrackNotFound, msg)
	}
	return fmt.Errorf("%w: %s (status %d)", shared.ErrAnalysisRejected, msg, resp.StatusCode)
}
