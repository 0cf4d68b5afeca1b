package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notesync/internal"
	"github.com/starford/notesync/internal/backup"
	pkgconfig "github.com/starford/notesync/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

// withApp opens the wired application for a one-shot command.
func withApp(ctx context.Context, cmd *cli.Command, fn func(*internal.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := internal.Open(ctx, internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func printResult(res backup.Result) error {
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	if res.Err != nil {
		return cli.Exit(res.Error, 1)
	}
	return nil
}

func runBackup(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(app *internal.App) error {
		return printResult(app.Service.Backup(ctx, cmd.String("user")))
	})
}

func runRestore(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(app *internal.App) error {
		return printResult(app.Service.Restore(ctx, cmd.String("user"), cmd.String("date")))
	})
}

func runReindex(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(app *internal.App) error {
		if !app.Index.Build(ctx) {
			return cli.Exit("index rebuild failed", 1)
		}
		idx := app.Index.Load(ctx)
		fmt.Printf("indexed %d categories, %d favorites, %d months\n",
			len(idx.Categories), len(idx.Favorites), len(idx.Dates))
		return nil
	})
}

func runImport(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.Args().First()
	if dir == "" {
		return cli.Exit("import: directory argument is required", 2)
	}
	return withApp(ctx, cmd, func(app *internal.App) error {
		n, err := app.Service.ImportDir(ctx, dir)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d notes from %s\n", n, dir)
		return nil
	})
}

func main() {
	userFlag := &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "User id to act as (defaults to backup.user_id)",
		Sources: cli.EnvVars("NOTESYNC_USER"),
	}

	cmd := &cli.Command{
		Name:           "notesync",
		Usage:          "Local note store with encrypted, merged cloud backups",
		DefaultCommand: "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream, index watcher and backup scheduler",
				Action: serve,
			},
			{
				Name:   "backup",
				Usage:  "Back up local notes now",
				Flags:  []cli.Flag{userFlag},
				Action: runBackup,
			},
			{
				Name:  "restore",
				Usage: "Merge a remote snapshot into local notes",
				Flags: []cli.Flag{
					userFlag,
					&cli.StringFlag{
						Name:  "date",
						Usage: "Exact backup_date of the snapshot to restore (default: latest)",
					},
				},
				Action: runRestore,
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the category, favorite and date indices",
				Action: runReindex,
			},
			{
				Name:      "import",
				Usage:     "Create notes from the Markdown files under a directory",
				ArgsUsage: "<dir>",
				Action:    runImport,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
