package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/bootstrap"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/config"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/controller"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/usecase"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/view"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	flagBackend string
	flagStore   string
	flagHTML    bool
	flagVerbose bool
)

// session is one CLI invocation: the wired core and the local app state.
type session struct {
	core     *bootstrap.Core
	app      *controller.App
	renderer *view.Renderer
	baseURL  string
	out      io.Writer
}

// newSession loads config, opens the local store and restores the persisted
// identity. The caller must defer s.Close().
func newSession(cmd *cobra.Command) (*session, error) {
	level := "error"
	if flagVerbose {
		level = "debug"
	}
	log := logger.New(&logger.LoggerConfig{Level: level, Format: "console", OutputFile: "stderr"})

	cfg, err := config.LoadConfig(log)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flagBackend != "" {
		cfg.StoreBackend = flagBackend
	}
	if flagStore != "" {
		cfg.StorePath = flagStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// The CLI is a single local user: no event bus, no moderation mail.
	cfg.NATSURL = ""
	cfg.SMTPHost = ""

	ctx := cmd.Context()
	core, err := bootstrap.Build(ctx, cfg, log, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	renderer := view.MustNewRenderer()
	app := controller.NewApp(controller.Deps{
		Session:   usecase.NewSession(core.Store, "", log),
		Catalog:   core.Catalog,
		Favorites: core.Favorites,
		Renderer:  renderer,
		Verifier:  core.Verifier,
		Logger:    log,
		BaseURL:   cfg.PublicBaseURL,
	})
	s := &session{core: core, app: app, renderer: renderer, baseURL: cfg.PublicBaseURL, out: cmd.OutOrStdout()}
	if _, err := s.dispatch(ctx, event("app", "start")); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	_ = s.core.Close()
}

// dispatch runs one action and prints its notices. An error notice becomes
// the command error; warnings are printed and the command goes on.
func (s *session) dispatch(ctx context.Context, ev controller.Event) (controller.Result, error) {
	res := s.app.Dispatch(ctx, ev)
	notices := res.Notices
	if len(notices) == 0 && res.Notice != nil {
		notices = []controller.Notice{*res.Notice}
	}
	for _, n := range notices {
		if n.Level == controller.LevelError {
			return res, errors.New(n.Message)
		}
		fmt.Fprintln(s.out, n.Message)
	}
	return res, nil
}

func event(component, action string) controller.Event {
	return controller.Event{Binding: controller.Binding{Component: component, Action: action}}
}

func (s *session) printFragment(res controller.Result) {
	fmt.Fprintln(s.out, res.Fragment)
}

func (s *session) printProducts(products []*domain.Product, empty string) {
	if len(products) == 0 {
		fmt.Fprintln(s.out, empty)
		return
	}
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRICE\tRARITY\tCITY\tSTATUS")
	for _, p := range products {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Title, s.renderer.FormatPrice(p.Price), p.Rarity.Label(), p.City, p.Status.Label())
	}
	_ = w.Flush()
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", arg)
	}
	return id, nil
}

var rootCmd = &cobra.Command{
	Use:          "hwctl",
	Short:        "Hot Wheels Elite marketplace from the terminal",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "Store backend (memory|file|sqlite|redis|mongo), overrides STORE_BACKEND")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "Store path for file and sqlite backends, overrides STORE_PATH")
	rootCmd.PersistentFlags().BoolVar(&flagHTML, "html", false, "Print rendered HTML fragments instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging to stderr")
}
