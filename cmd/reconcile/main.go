// Command reconcile runs reconciliation against the venue gateway from
// the command line: either one full pass, or a bounded status refresh
// for a single order.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/interbroker/bridge-api/internal/config"
	"github.com/interbroker/bridge-api/internal/database"
	"github.com/interbroker/bridge-api/internal/orders"
	"github.com/interbroker/bridge-api/internal/reconcile"
	"github.com/interbroker/bridge-api/internal/venue"
)

func main() {
	orderID := flag.Int64("order-id", 0, "refresh a single order by venue order id")
	all := flag.Bool("all", false, "run a full reconciliation pass")
	wait := flag.Int("wait", 5, "seconds to wait for venue updates")
	flag.Parse()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zlog.Logger = zerolog.New(output).With().Timestamp().Logger()

	if *orderID == 0 && !*all {
		zlog.Fatal().Msg("specify --order-id or --all")
	}

	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to open database")
	}

	gatewayCfg, err := config.NewDatabase(db).GetActive()
	if err != nil {
		zlog.Fatal().Err(err).Msg("no active gateway configuration")
	}

	session := venue.NewSession(gatewayCfg.Host, gatewayCfg.Port, gatewayCfg.ClientID)
	if err := session.Connect(); err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect to venue gateway")
	}
	defer session.Disconnect()

	ledger := orders.NewDatabase(db)

	if *all {
		engine := reconcile.NewEngine(ledger, session)
		summary, err := engine.Run()
		if err != nil {
			zlog.Fatal().
				Err(err).
				Bool("partial", summary.Partial).
				Int("created", summary.Created).
				Int("updated", summary.Updated).
				Msg("reconciliation pass aborted")
		}
		zlog.Info().
			Int("open_orders_seen", summary.OpenOrdersSeen).
			Int("executions_seen", summary.ExecutionsSeen).
			Int("matched", summary.Matched).
			Int("created", summary.Created).
			Int("updated", summary.Updated).
			Msg("reconciliation complete")
		return
	}

	refreshOrder(ledger, session, *orderID, time.Duration(*wait)*time.Second)
}

// refreshOrder waits for a status update for one order and writes any
// change back to the ledger.
func refreshOrder(ledger *orders.Database, session *venue.Session, orderID int64, wait time.Duration) {
	logger := zlog.With().Int64("venue_order_id", orderID).Logger()

	record, err := ledger.GetByVenueID(orderID)
	if err != nil {
		logger.Fatal().Err(err).Msg("ledger lookup failed")
	}
	if record == nil {
		logger.Fatal().Msg("order not found in ledger")
	}

	logger.Info().
		Str("symbol", record.Symbol).
		Str("status", record.Status).
		Msg("waiting for venue status update")

	event, ok, err := session.Feed().AwaitStatus(orderID, wait)
	if err != nil {
		logger.Fatal().Err(err).Msg("connection lost while waiting")
	}
	if !ok {
		logger.Warn().Msg("no status update received")
		return
	}

	oldStatus := record.Status
	if orders.ApplyStatus(record, event) {
		if err := ledger.Upsert(record); err != nil {
			logger.Fatal().Err(err).Msg("failed to update ledger record")
		}
	}
	logger.Info().
		Str("from", oldStatus).
		Str("to", record.Status).
		Str("filled", record.FilledQty.String()).
		Msg("order refreshed")
}
