package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemdeck/internal/mixer"
	"github.com/desertthunder/stemdeck/internal/repositories"
	"github.com/desertthunder/stemdeck/internal/services"
	"github.com/desertthunder/stemdeck/internal/shared"
	"github.com/desertthunder/stemdeck/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	api        *services.AnalyzerService
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	newMixer   func() *mixer.Synchronizer

	db     *sql.DB
	ownsDB bool
	tracks *repositories.TrackRepository
	runs   *repositories.RunRepository
	engine *tasks.IngestEngine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	API        *services.AnalyzerService
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	DB         *sql.DB // migrated library; opened from Config.Database on first use when nil
	NewMixer   func() *mixer.Synchronizer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.API == nil {
		opts.API = services.NewAnalyzerService(services.AnalyzerOpts{
			BaseURL: opts.Config.Backend.URL,
			Token:   opts.Config.Backend.Token,
			Timeout: opts.Config.Backend.Timeout(),
			Client:  opts.HTTPClient,
		})
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		api:        opts.API,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		newMixer:   opts.NewMixer,
		db:         opts.DB,
	}
	if r.newMixer == nil {
		r.newMixer = func() *mixer.Synchronizer { return mixer.NewFromConfig(r.config.Mixer, r.logger) }
	}
	return r
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, analyzeCommand, reanalyzeCommand, watchCommand, tracksCommand, runsCommand,
		audioCommand, playCommand, replayCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// library opens the track library on first use and wires the ingest engine to it.
//
// The in-session collection is seeded from the stored tracks, newest first.
func (r *Runner) library() (*tasks.IngestEngine, error) {
	if r.engine != nil {
		return r.engine, nil
	}

	if r.db == nil {
		db, err := shared.OpenLibrary(r.config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open library: %w", err)
		}
		r.db, r.ownsDB = db, true
	}

	r.tracks = repositories.NewTrackRepository(r.db)
	r.runs = repositories.NewRunRepository(r.db)

	seed, err := r.tracks.Records()
	if err != nil {
		return nil, fmt.Errorf("failed to load library: %w", err)
	}

	r.engine = tasks.NewIngestEngine(tasks.EngineOpts{
		API:    r.api,
		Tracks: tasks.NewTrackCollection(seed...),
		Cacher: repositories.NewTrackCacheAdapter(r.tracks),
		Runs:   r.runs,
		Logger: r.logger,
	})
	r.logger.Debug("library opened", "path", r.config.Database.Path, "tracks", len(seed))
	return r.engine, nil
}

// SetLogger replaces the logger used by subsequently created components.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// Close releases the library database when the runner opened it.
func (r *Runner) Close() error {
	if r.db == nil || !r.ownsDB {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func (r *Runner) model(cmd *cli.Command) (string, error) {
	model := cmd.String("model")
	if model == "" {
		model = r.config.Backend.Model
	}
	if err := shared.ValidateModel(model); err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrInvalidFlag, err)
	}
	return model, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// notFound rewrites repository misses into a user-facing message.
func notFound(filename string, err error) error {
	if errors.Is(err, shared.ErrTrackNotFound) {
		return fmt.Errorf("%w: %s (run 'stemdeck tracks list')", shared.ErrTrackNotFound, filename)
	}
	return err
}
