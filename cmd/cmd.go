// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func modelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "model",
		Aliases: []string{"m"},
		Usage:   "Separation model (htdemucs_6s or htdemucs_ft); defaults to [backend] model",
	}
}

func filenameArg() cli.Argument {
	return &cli.StringArg{Name: "filename", UsageText: "backend filename of an analyzed track"}
}

// setupCommand handles config creation and database migrations.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file, initialize the library database and check the backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "skip-ping",
				Usage: "Do not probe the analysis backend",
			},
		},
		Action: r.Setup,
	}
}

// analyzeCommand uploads local audio files.
func analyzeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Aliases:   []string{"scan"},
		Usage:     "Upload audio files for analysis and add them to the library",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			modelFlag(),
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Concurrent uploads when analyzing several files; defaults to [watch] workers",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the run summaries as JSON",
			},
		},
		Action: r.Analyze,
	}
}

// reanalyzeCommand re-runs separation for a stored file.
func reanalyzeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "reanalyze",
		Usage:     "Analyze a file the backend already holds again, e.g. with the high fidelity model",
		Arguments: []cli.Argument{filenameArg()},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Separation model",
				Value:   "htdemucs_ft",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the run summary as JSON",
			},
		},
		Action: r.ReAnalyze,
	}
}

// watchCommand analyzes files dropped into a directory.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Analyze audio files as they appear in a directory",
		Arguments: []cli.Argument{&cli.StringArg{Name: "dir"}},
		Flags: []cli.Flag{
			modelFlag(),
			&cli.DurationFlag{
				Name:  "settle",
				Usage: "Quiet period before a new file counts as fully written",
				Value: 0,
			},
		},
		Action: r.Watch,
	}
}

// tracksCommand manages the stored library.
func tracksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tracks",
		Aliases: []string{"library"},
		Usage:   "Inspect and manage analyzed tracks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tracks, newest first",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.TracksList,
			},
			{
				Name:      "show",
				Usage:     "Show a track's analysis",
				Arguments: []cli.Argument{filenameArg()},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output the stored record"},
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output", Value: true},
				},
				Action: r.TracksShow,
			},
			{
				Name:      "cues",
				Usage:     "List a track's cue points",
				Arguments: []cli.Argument{filenameArg()},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "csv", Usage: "Output CSV"},
				},
				Action: r.TracksCues,
			},
			{
				Name:      "export",
				Usage:     "Export a track as text, markdown or CSV",
				Arguments: []cli.Argument{filenameArg()},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: txt, markdown, or csv",
						Value:   "markdown",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (markdown) or file base path",
						Value:   ".",
					},
				},
				Action: r.TracksExport,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Remove a track from the library",
				Arguments: []cli.Argument{filenameArg()},
				Action:    r.TracksDelete,
			},
		},
	}
}

// runsCommand lists recorded invocations.
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recent analyze and re-analyze invocations",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of runs to show (0 for all)", Value: 20},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.Runs,
	}
}

// audioCommand fetches assets from the backend.
func audioCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "audio",
		Usage: "Download or open a track's audio assets",
		Commands: []*cli.Command{
			{
				Name:      "fetch",
				Usage:     "Download the main mix, and optionally its stems and MIDI files",
				Arguments: []cli.Argument{filenameArg()},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "stems", Usage: "Also download every available stem"},
					&cli.BoolFlag{Name: "midi", Usage: "Also download MIDI transcriptions"},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory",
						Value:   ".",
					},
				},
				Action: r.AudioFetch,
			},
			{
				Name:      "open",
				Usage:     "Open the main mix URL with the system handler",
				Arguments: []cli.Argument{filenameArg()},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "stem", Usage: "Open a stem instead of the main mix"},
				},
				Action: r.AudioOpen,
			},
		},
	}
}

// playCommand runs the mixer without the TUI.
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Play a track through the stem mixer until interrupted",
		Arguments: []cli.Argument{filenameArg()},
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "stems",
				Usage: "Stems to solo instead of the main mix (e.g. vocal,bass)",
			},
			&cli.FloatFlag{
				Name:  "seek",
				Usage: "Start position in seconds",
			},
			&cli.DurationFlag{
				Name:  "for",
				Usage: "Stop after this long (0 plays until the main mix ends)",
			},
		},
		Action: r.Play,
	}
}

// replayCommand serves recorded fixtures as a local backend.
func replayCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "Serve recorded analyses as an offline backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "fixtures",
				Usage:    "Directory of {name}.json track records and audio assets",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on; defaults to [server] port",
			},
			&cli.DurationFlag{
				Name:  "delay",
				Usage: "Pause between streamed progress events",
				Value: 0,
			},
		},
		Action: r.Replay,
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive library, scan and mixer UI",
		Action:  r.TUI,
	}
}
