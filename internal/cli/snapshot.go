package cli

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"evcal/internal/auth"
	"evcal/internal/caldate"
	"evcal/internal/capture"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/store"
	"evcal/internal/web"
)

const snapshotUser = "snapshot"

func newSnapshotCommand(ctx context.Context, load configLoader) *cobra.Command {
	var (
		month  string
		out    string
		width  int
		height int
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render one month page to a PNG with headless Chromium.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			anchor, err := parseMonth(month, cfg.Location())
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			users, err := auth.NewUsers(cfg.Users)
			if err != nil {
				return fmt.Errorf("users: %w", err)
			}
			srv, err := web.NewServer(cfg, st, users, auth.NewSessions(cfg.Session.TTL))
			if err != nil {
				return fmt.Errorf("web server: %w", err)
			}
			return snapshot(ctx, srv, anchor, capture.Options{OutputPath: out, Width: width, Height: height})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month to render as YYYY-MM (default: current month)")
	cmd.Flags().StringVar(&out, "out", "snapshot.png", "Output PNG path")
	cmd.Flags().IntVar(&width, "width", capture.DefaultWidth, "Viewport width in pixels")
	cmd.Flags().IntVar(&height, "height", capture.DefaultHeight, "Viewport height in pixels")
	return cmd
}

// snapshot serves srv on a loopback port for the duration of one capture.
func snapshot(ctx context.Context, srv *web.Server, anchor caldate.Date, opts capture.Options) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}

	srvCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(srvCtx, ln) }()

	cookie := srv.MintSession(model.User{ID: auth.UserID(snapshotUser), Username: snapshotUser})
	opts.URL = fmt.Sprintf("http://%s/month/%d/%d", ln.Addr().String(), anchor.Year, int(anchor.Month))
	opts.Cookies = []capture.Cookie{{Name: cookie.Name, Value: cookie.Value}}

	appLog.Info("snapshot: capturing", "url", opts.URL, "out", opts.OutputPath)
	err = capture.PagePNG(ctx, opts)

	stop()
	if serr := <-errCh; serr != nil && err == nil {
		err = serr
	}
	return err
}

// parseMonth reads YYYY-MM. Empty means the current month in loc.
func parseMonth(s string, loc *time.Location) (caldate.Date, error) {
	if s == "" {
		return caldate.Today(loc).FirstOfMonth(), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return caldate.Date{}, fmt.Errorf("invalid --month %q, want YYYY-MM", s)
	}
	return caldate.New(t.Year(), t.Month(), 1), nil
}
