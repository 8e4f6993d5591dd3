package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	promadapter "github.com/codewandler/vfs-es/adapters/prometheus"
	"github.com/codewandler/vfs-es/core/app"
	"github.com/codewandler/vfs-es/core/es"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			v, err := a.DB().MigrationVersion(cmd.Context())
			if err != nil {
				return err
			}
			if c.json {
				return c.printJSON(map[string]int64{"version": v})
			}
			_, err = fmt.Fprintf(c.stdout, "schema at version %d\n", v)
			return err
		},
	}
}

// serveCmd keeps the projector running and exposes metrics until the
// context is cancelled.
func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the projector and serve /metrics and /healthz",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd, app.Options{Projector: true})
			if err != nil {
				return err
			}
			defer a.Close()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promadapter.Handler(a.Registry()))
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				if err := a.DB().PingContext(r.Context()); err != nil {
					http.Error(w, err.Error(), http.StatusServiceUnavailable)
					return
				}
				_, _ = w.Write([]byte("ok\n"))
			})
			srv := &http.Server{
				Addr:              a.Config().Metrics.Addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				a.Log().Info("serving", slog.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func (c *cli) rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Drop the read model and replay the whole event log into it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			n, err := es.Rebuild(cmd.Context(), a.Env().Store(), a.Env().Registry(), a.Projection(),
				es.WithBatchSize(a.Config().Projection.BatchSize),
				es.WithLog(a.Log()),
			)
			if err != nil {
				return err
			}
			if c.json {
				return c.printJSON(map[string]any{"events": n, "took": time.Since(start).String()})
			}
			_, err = fmt.Fprintf(c.stdout, "replayed %d events in %s\n", n, time.Since(start).Round(time.Millisecond))
			return err
		},
	}
}

func (c *cli) eventsCmd() *cobra.Command {
	var (
		from  uint64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the global event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			envs, err := a.Env().Store().LoadAll(cmd.Context(), from, limit)
			if err != nil {
				return err
			}
			if c.json {
				if envs == nil {
					envs = []es.Envelope{}
				}
				return c.printJSON(envs)
			}
			w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tAGGREGATE\tVERSION\tTYPE\tACTOR\tOCCURRED")
			for _, e := range envs {
				fmt.Fprintf(w, "%d\t%s/%s\t%d\t%s\t%s\t%s\n",
					e.Seq, e.AggregateType, e.AggregateID, e.Version, e.Type, e.Metadata.ActorID, e.OccurredAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "print events after this position")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	return cmd
}
