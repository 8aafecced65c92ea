package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/sumi/internal"
	"github.com/starford/sumi/internal/tree"
	pkgconfig "github.com/starford/sumi/pkg/config"
)

// loadConfig reads the config file when it exists; otherwise the defaults
// apply.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// options builds the application options shared by every command.
func options(cmd *cli.Command, unlock bool) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	opts := []internal.Option{internal.WithConfig(cfg)}
	if unlock && cmd.IsSet("password") {
		opts = append(opts, internal.WithPassword(cmd.String("password")))
	}
	return opts, nil
}

// openQuiet opens the application with logs on stderr so stdout carries
// only command output. With unlock set the store is always unlocked; a
// missing password means a plain store.
func openQuiet(ctx context.Context, cmd *cli.Command, unlock bool) (*internal.App, error) {
	opts, err := options(cmd, false)
	if err != nil {
		return nil, err
	}
	if unlock {
		opts = append(opts, internal.WithPassword(cmd.String("password")))
	}
	opts = append(opts, internal.WithLogOutput(os.Stderr))
	return internal.Open(ctx, opts...)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, true)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, true)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, opts...); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func create(ctx context.Context, cmd *cli.Command) error {
	if !cmd.IsSet("password") && !cmd.Bool("plain") {
		return errors.New("a password is required; use --plain for an unencrypted store")
	}
	app, err := openQuiet(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	if err := app.Service.Create(ctx, cmd.String("password")); err != nil {
		return errors.New(app.Alerts.Report("create failed", err))
	}
	st := app.Service.Status(ctx)
	_, err = fmt.Fprintf(cmd.Root().Writer, "created %s at %s\n", st.Name, st.Path)
	return err
}

func show(ctx context.Context, cmd *cli.Command) error {
	app, err := openQuiet(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	v, err := app.Service.Tree(ctx)
	if err != nil {
		return errors.New(app.Alerts.Report("show failed", err))
	}
	out := cmd.Root().Writer
	if cmd.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	printTree(out, v, 0)
	return nil
}

func add(ctx context.Context, cmd *cli.Command) error {
	kind, err := tree.ParseKind(cmd.String("kind"))
	if err != nil {
		return err
	}
	app, err := openQuiet(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	v, err := app.Service.AddNode(ctx, cmd.String("parent"), kind, cmd.String("label"), cmd.String("content"), -1)
	if err != nil {
		return errors.New(app.Alerts.Report("add failed", err))
	}
	if err := app.Service.Save(ctx); err != nil {
		return errors.New(app.Alerts.Report("save failed", err))
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, v.ID)
	return err
}

func passwd(ctx context.Context, cmd *cli.Command) error {
	app, err := openQuiet(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	if err := app.Service.ChangePassword(ctx, cmd.String("password"), cmd.String("new")); err != nil {
		return errors.New(app.Alerts.Report("change password failed", err))
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, "password changed")
	return err
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:   "sumi",
		Usage:  "Encrypted card cabinet with full-text search, an HTTP API and MCP tools",
		Writer: os.Stdout,
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Store password",
				Sources: cli.EnvVars("SUMI_PASSWORD"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:   "create",
				Usage:  "Create a new store",
				Action: create,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "plain", Usage: "Create an unencrypted store"},
				},
			},
			{
				Name:   "show",
				Usage:  "Print the store tree",
				Action: show,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
				},
			},
			{
				Name:   "add",
				Usage:  "Add a node and save",
				Action: add,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "parent", Usage: "Parent id (empty for the cabinet)"},
					&cli.StringFlag{Name: "kind", Usage: "folder, card, line or text", Required: true},
					&cli.StringFlag{Name: "label", Usage: "Node label", Required: true},
					&cli.StringFlag{Name: "content", Usage: "Entry text"},
				},
			},
			{
				Name:   "passwd",
				Usage:  "Change the store password",
				Action: passwd,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "new",
						Usage:    "New password",
						Sources:  cli.EnvVars("SUMI_NEW_PASSWORD"),
						Required: true,
					},
				},
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
