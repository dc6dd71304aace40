// Package node drives the ledger close loop: each close applies the funding
// operation and then the liquidation operation against a fresh transactional
// view, commits, archives a snapshot, and publishes events. Processing is
// single-threaded per close; a structural invariant violation panics and
// halts the replica rather than committing divergent state.
package node

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmargin/margind/internal/core/ledger"
	"github.com/openmargin/margind/internal/core/ledger/state"
	"github.com/openmargin/margind/internal/core/tx"
	"github.com/openmargin/margind/internal/events"
	"github.com/openmargin/margind/internal/storage/nodestore"
)

// Driver owns the close loop for one replica.
type Driver struct {
	root  state.Root
	pairs []tx.TradingPair
	log   zerolog.Logger

	// hub broadcasts close events when non-nil.
	hub *events.Hub

	// archive stores per-close snapshots when non-nil.
	archive *nodestore.Store
}

// Option configures a Driver.
type Option func(*Driver)

// WithEventHub attaches a websocket event hub.
func WithEventHub(hub *events.Hub) Option {
	return func(d *Driver) { d.hub = hub }
}

// WithArchive attaches a snapshot archive.
func WithArchive(archive *nodestore.Store) Option {
	return func(d *Driver) { d.archive = archive }
}

// New creates a Driver over the given root store and trading pairs.
func New(root state.Root, pairs []tx.TradingPair, log zerolog.Logger, opts ...Option) *Driver {
	d := &Driver{root: root, pairs: pairs, log: log}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CloseLedger performs one ledger close at the given close time.
func (d *Driver) CloseLedger(closeTime uint64) error {
	ls := state.New(d.root)
	header := ls.LoadHeader()
	lh := header.Current()
	lh.LedgerSeq++
	lh.CloseTime = closeTime

	seq := lh.LedgerSeq
	log := d.log.With().Uint32("seq", seq).Logger()

	fundingRes, ok := tx.ApplyOperation(ls, tx.Operation{
		Body: tx.OperationBody{Type: tx.OperationTypeInflation},
	}, d.pairs)
	if !ok {
		log.Debug().Stringer("code", fundingRes.Inflation.Code).Msg("funding not applied")
	} else {
		log.Info().Int("payouts", len(fundingRes.Inflation.Payouts)).Msg("funding applied")
	}

	liquidationRes, ok := tx.ApplyOperation(ls, tx.Operation{
		Body: tx.OperationBody{Type: tx.OperationTypeLiquidation},
	}, d.pairs)
	if !ok {
		log.Debug().Stringer("code", liquidationRes.Liquidation.Code).Msg("liquidation not applied")
	} else {
		log.Info().
			Int("marked", len(liquidationRes.Liquidation.Marked)).
			Int("cleared", len(liquidationRes.Liquidation.Cleared)).
			Msg("liquidation applied")
	}

	ls.Commit()

	if d.archive != nil {
		if err := d.snapshot(); err != nil {
			// The archive is an operational aid; a failed write does not
			// stop the close loop.
			log.Warn().Err(err).Msg("snapshot failed")
		}
	}

	d.publish(seq, closeTime, fundingRes.Inflation, liquidationRes.Liquidation)
	return nil
}

// snapshot archives the post-close state.
func (d *Driver) snapshot() error {
	header, err := d.root.Header()
	if err != nil {
		return err
	}
	snap := &nodestore.Snapshot{Header: header}
	err = d.root.ForEach(func(le *ledger.LedgerEntry) error {
		snap.Entries = append(snap.Entries, *le)
		return nil
	})
	if err != nil {
		return err
	}
	return d.archive.Put(snap)
}

// publish pushes the close's events to the hub.
func (d *Driver) publish(seq uint32, closeTime uint64, funding *tx.FundingResult, liquidation *tx.LiquidationResult) {
	if d.hub == nil {
		return
	}
	d.hub.Publish(events.Event{Type: events.EventLedgerClosed, LedgerSeq: seq, CloseTime: closeTime})

	if funding != nil && funding.Code == tx.FundingSuccess {
		for _, payout := range funding.Payouts {
			d.hub.Publish(events.Event{
				Type:      events.EventFundingPayout,
				LedgerSeq: seq,
				AccountID: payout.AccountID,
				Asset:     payout.Asset.String(),
				Amount:    payout.Amount,
			})
		}
	}
	if liquidation != nil && liquidation.Code == tx.LiquidationSuccess {
		for _, accountID := range liquidation.Marked {
			d.hub.Publish(events.Event{Type: events.EventLiquidationMark, LedgerSeq: seq, AccountID: accountID})
		}
		for _, accountID := range liquidation.Cleared {
			d.hub.Publish(events.Event{Type: events.EventLiquidationClear, LedgerSeq: seq, AccountID: accountID})
		}
	}
}

// Run closes ledgers on the given period until ctx is cancelled.
func (d *Driver) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	d.log.Info().Dur("period", period).Msg("close loop started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("close loop stopped")
			return ctx.Err()
		case now := <-ticker.C:
			if err := d.CloseLedger(uint64(now.Unix())); err != nil {
				return err
			}
		}
	}
}
