package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openmargin/margind/internal/config"
	"github.com/openmargin/margind/internal/core/ledger"
	"github.com/openmargin/margind/internal/events"
	"github.com/openmargin/margind/internal/node"
	"github.com/openmargin/margind/internal/observability"
	"github.com/openmargin/margind/internal/storage/nodestore"
	"github.com/openmargin/margind/internal/storage/sqlstore"
)

// genesisHeader seeds a fresh database.
var genesisHeader = ledger.LedgerHeader{
	LedgerSeq:     1,
	LedgerVersion: 10,
	BaseReserve:   5000000,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ledger close loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func run(parent context.Context, cfg *config.Config) error {
	log := observability.NewLogger("margind", cfg.LogLevel)

	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN,
		observability.NewLogger("sqlstore", cfg.LogLevel))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InitSchema(genesisHeader); err != nil {
		return err
	}

	opts := []node.Option{}

	var hub *events.Hub
	if cfg.Feed.Enabled {
		hub = events.NewHub(observability.NewLogger("events", cfg.LogLevel))
		opts = append(opts, node.WithEventHub(hub))
	}

	if cfg.NodeStore.Enabled {
		archive, err := nodestore.Open(cfg.NodeStore.Path)
		if err != nil {
			return err
		}
		defer archive.Close()
		opts = append(opts, node.WithArchive(archive))
	}

	driver := node.New(store, cfg.TradingPairs(), observability.NewLogger("node", cfg.LogLevel), opts...)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := driver.Run(ctx, cfg.ClosePeriod())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if hub != nil {
		server := &http.Server{Addr: cfg.Feed.ListenAddr, Handler: hub}
		group.Go(func() error {
			log.Info().Str("addr", cfg.Feed.ListenAddr).Msg("event feed listening")
			err := server.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		group.Go(func() error {
			<-ctx.Done()
			return server.Shutdown(context.Background())
		})
	}

	return group.Wait()
}
