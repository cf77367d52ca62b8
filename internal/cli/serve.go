package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"evcal/internal/auth"
	"evcal/internal/config"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/store"
	"evcal/internal/web"
)

type configLoader func() (*config.Config, error)

func newServeCommand(ctx context.Context, load configLoader) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, ICS refresh and session pruning.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			// --listen overrides the config file.
			if listen != "" {
				cfg.Listen = listen
			}
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"store", cfg.Store.Driver,
		"users", len(cfg.Users),
		"ics_count", len(cfg.ICS),
		"refresh", cfg.RefreshCron,
		"consistent_layers", cfg.Layout.ConsistentLayers,
	)

	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			appLog.Error("failed to close store", err)
		}
	}()

	users, err := auth.NewUsers(cfg.Users)
	if err != nil {
		return fmt.Errorf("users: %w", err)
	}
	sessions := auth.NewSessions(cfg.Session.TTL)

	srv, err := web.NewServer(cfg, st, users, sessions)
	if err != nil {
		return fmt.Errorf("web server: %w", err)
	}

	sched, err := newScheduler(ctx, cfg, st, sessions)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		sched.Stop()
		appLog.Info("scheduler stopped")
	}()

	return srv.ListenAndServe(ctx)
}

// scheduler runs ICS refresh and session pruning on cron schedules, plus
// one refresh right after Start.
type scheduler struct {
	cron    *cron.Cron
	refresh func()
	initial sync.WaitGroup
}

// Start begins the schedules and the initial refresh.
func (s *scheduler) Start() {
	s.cron.Start()
	if s.refresh == nil {
		return
	}
	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.refresh()
	}()
}

// Stop halts the schedules and waits for running jobs, the initial refresh
// included.
func (s *scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.initial.Wait()
}

func newScheduler(ctx context.Context, cfg *config.Config, st store.Store, sessions *auth.Sessions) (*scheduler, error) {
	loc := cfg.Location()
	s := &scheduler{cron: cron.New(cron.WithLocation(loc))}

	feeds, err := ics.FeedsFromConfig(cfg.ICS)
	if err != nil {
		return nil, fmt.Errorf("ics: %w", err)
	}
	if len(feeds) > 0 {
		im := ics.NewImporter(ics.NewFetcher(cfg.CacheDir, nil), st, feeds, loc, cfg.ImportHorizonDays)
		refresh := func() {
			if err := im.ImportAll(ctx); err != nil {
				appLog.Warn("ics refresh finished with errors", "error", err)
			}
		}
		if _, err := s.cron.AddFunc(cfg.RefreshCron, refresh); err != nil {
			return nil, fmt.Errorf("refresh schedule %q: %w", cfg.RefreshCron, err)
		}
		s.refresh = refresh
	}

	_, err = s.cron.AddFunc(cfg.Session.PruneCron, func() {
		if n := sessions.Prune(); n > 0 {
			appLog.Info("expired sessions pruned", "count", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("prune schedule %q: %w", cfg.Session.PruneCron, err)
	}
	return s, nil
}
