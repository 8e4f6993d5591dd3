package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/codewandler/vfs-es/core/app"
	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/internal/config"
	"github.com/codewandler/vfs-es/internal/logging"
)

type cli struct {
	stdout  io.Writer
	stderr  io.Writer
	cfgPath string
	actor   string
	json    bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:          "vfsctl",
		Short:        "Event sourced virtual file system",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.cfgPath, "config", "c", os.Getenv("VFS_CONFIG"), "path to the TOML config file")
	flags.StringVar(&c.actor, "as", os.Getenv("USER"), "user id the command runs as")
	flags.BoolVar(&c.json, "json", false, "print JSON")

	root.AddCommand(
		c.configCmd(),
		c.migrateCmd(),
		c.serveCmd(),
		c.nodeCmd(fileOps),
		c.nodeCmd(folderOps),
		c.lsCmd(),
		c.statCmd(),
		c.searchCmd(),
		c.treeCmd(),
		c.checkCmd(),
		c.rebuildCmd(),
		c.eventsCmd(),
	)
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp builds the app for one command. The caller must Close it.
func (c *cli) newApp(cmd *cobra.Command, opts app.Options) (*app.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(c.stderr, cfg.Log)
	if err != nil {
		return nil, err
	}
	opts.Config, opts.Log = cfg, log
	a, err := app.New(cmd.Context(), opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withApp runs fn against an app whose projector is in-process, so reads
// after a command see its effect.
func (c *cli) withApp(fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := c.newApp(cmd, app.Options{Projector: true})
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type changed struct {
	Kind    string     `json:"kind"`
	ID      string     `json:"id"`
	Version es.Version `json:"version"`
}

func (c *cli) printChanged(kind string, agg es.Aggregate) error {
	if c.json {
		return c.printJSON(changed{Kind: kind, ID: agg.GetID(), Version: agg.GetVersion()})
	}
	_, err := fmt.Fprintf(c.stdout, "%s %s v%d\n", kind, agg.GetID(), agg.GetVersion())
	return err
}

func (c *cli) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			return config.Write(c.stdout, cfg)
		},
	}
}
