package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/ledger"
	"github.com/alanyoungcy/settlecore/internal/matcher"
	"github.com/alanyoungcy/settlecore/internal/outcome"
	"github.com/alanyoungcy/settlecore/internal/registry"
	"github.com/alanyoungcy/settlecore/internal/server"
	"github.com/alanyoungcy/settlecore/internal/server/handler"
	"github.com/alanyoungcy/settlecore/internal/server/ws"
	"github.com/alanyoungcy/settlecore/internal/validator"
)

// ServeMode runs the settlement API: condition lifecycle, order matching,
// position operations, ledger endpoints, and the WebSocket event feed.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	admin := common.HexToAddress(a.cfg.Roles.AdminAddress)
	matcherAddr := common.HexToAddress(a.cfg.Chain.MatcherAddress)
	collateral := common.HexToAddress(a.cfg.Chain.CollateralAddress)

	// Core components, all sharing one state store.
	reg := registry.New(deps.State, admin, collateral, deps.Bus, a.logger)
	val := validator.New(deps.State, a.cfg.Chain.ChainID, matcherAddr)
	match := matcher.New(deps.State, val, collateral, deps.Bus, a.logger)
	engine := outcome.New(deps.State, collateral, deps.Bus, a.logger)
	led := ledger.New(deps.State, a.logger)

	// Bus consumers: durable stream mirror and operator notifications.
	if deps.Bus != nil {
		g.Go(func() error {
			return a.mirrorSettlementStream(ctx, deps.Bus)
		})
		g.Go(func() error {
			return a.forwardNotifications(ctx, deps)
		})
	}

	// Inline archive loop when enabled alongside the API.
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}

	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false; serve mode will only run bus consumers")
		return g.Wait()
	}

	// WebSocket hub (requires a bus to have anything to fan out).
	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	// Health checks cover the dependencies this node actually runs on.
	checks := map[string]handler.Check{
		"store": func(ctx context.Context) error {
			_, err := deps.State.Balance(ctx, common.Address{}, domain.AssetID{})
			return err
		},
	}
	if deps.Bus != nil {
		checks["bus"] = func(ctx context.Context) error {
			_, err := deps.Bus.StreamRead(ctx, domain.StreamSettlements, "0", 1)
			return err
		}
	}

	apiKeys := make(map[string]common.Address, len(a.cfg.Server.APIKeys))
	for key, addr := range a.cfg.Server.APIKeys {
		apiKeys[key] = common.HexToAddress(addr)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKeys:     apiKeys,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(a.cfg.Mode, checks, a.logger),
		Conditions:  handler.NewConditionHandler(reg, deps.State, a.logger),
		Orders:      handler.NewOrderHandler(match, a.logger),
		Positions:   handler.NewPositionHandler(engine, a.logger),
		Balances:    handler.NewBalanceHandler(deps.State, led, collateral, admin, a.logger),
		Settlements: handler.NewSettlementHandler(deps.State, a.logger),
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// ArchiveMode periodically exports aged settlements to blob storage. When a
// lock manager is available the export is serialized across nodes.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: blob storage is not configured")
	}
	return a.runArchiveLoop(ctx, deps)
}

// runArchiveLoop exports aged settlements on a fixed interval until the
// context is cancelled.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	a.logger.InfoContext(ctx, "starting archive loop",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	runOnce := func() {
		if deps.Locks != nil {
			release, err := deps.Locks.Acquire(ctx, "archive", interval)
			if err != nil {
				if errors.Is(err, domain.ErrLockHeld) {
					a.logger.InfoContext(ctx, "archive run skipped, another node holds the lock")
				} else {
					a.logger.ErrorContext(ctx, "archive lock failed", slog.String("error", err.Error()))
				}
				return
			}
			defer release()
		}

		cutoff := time.Now().UTC().Add(-retention)
		n, err := deps.Archiver.ArchiveSettlements(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			return
		}
		a.logger.InfoContext(ctx, "archive run completed",
			slog.Int64("settlements", n),
			slog.Time("cutoff", cutoff),
		)
	}

	runOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		}
	}
}

// mirrorSettlementStream copies every settlement event from the ephemeral
// Pub/Sub channel into the durable Redis stream so consumers that were
// offline can replay what they missed.
func (a *App) mirrorSettlementStream(ctx context.Context, bus domain.SignalBus) error {
	ch, err := bus.Subscribe(ctx, domain.ChannelSettlements)
	if err != nil {
		return fmt.Errorf("stream mirror: subscribe: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			if err := bus.StreamAppend(ctx, domain.StreamSettlements, payload); err != nil {
				a.logger.WarnContext(ctx, "stream mirror: append failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// forwardNotifications subscribes to settlement and condition events and
// dispatches the configured subset to the notification channels.
func (a *App) forwardNotifications(ctx context.Context, deps *Dependencies) error {
	settlements, err := deps.Bus.Subscribe(ctx, domain.ChannelSettlements)
	if err != nil {
		return fmt.Errorf("notify forwarder: subscribe settlements: %w", err)
	}
	conditions, err := deps.Bus.Subscribe(ctx, domain.ChannelConditions)
	if err != nil {
		return fmt.Errorf("notify forwarder: subscribe conditions: %w", err)
	}

	handle := func(payload []byte) {
		var ev domain.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			a.logger.WarnContext(ctx, "notify forwarder: bad event payload",
				slog.String("error", err.Error()),
			)
			return
		}
		if err := deps.Notifier.Notify(ctx, ev); err != nil {
			a.logger.WarnContext(ctx, "notify forwarder: dispatch failed",
				slog.String("event", ev.Type),
				slog.String("error", err.Error()),
			)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-settlements:
			if !ok {
				return nil
			}
			handle(payload)
		case payload, ok := <-conditions:
			if !ok {
				return nil
			}
			handle(payload)
		}
	}
}
