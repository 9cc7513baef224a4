package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/wagerpool/internal/crypto"
	"github.com/alanyoungcy/wagerpool/internal/custody"
	"github.com/alanyoungcy/wagerpool/internal/domain"
	"github.com/alanyoungcy/wagerpool/internal/engine"
	"github.com/alanyoungcy/wagerpool/internal/mirror"
	"github.com/alanyoungcy/wagerpool/internal/server"
	"github.com/alanyoungcy/wagerpool/internal/server/handler"
	"github.com/alanyoungcy/wagerpool/internal/server/ws"
	"github.com/alanyoungcy/wagerpool/internal/service"
)

// ServerMode runs the ledger behind the HTTP API with persistence and Redis
// infrastructure, without settlement archival.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	return a.runLedger(ctx, deps)
}

// FullMode runs every subsystem: the HTTP API, persistence, Redis
// infrastructure, notifications, and settlement archival.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runLedger(ctx, deps)
}

// runLedger builds the engine and service layer, rehydrates persisted state,
// and runs the HTTP server and WebSocket hub until the context is cancelled.
func (a *App) runLedger(ctx context.Context, deps *Dependencies) error {
	svc, err := a.buildService(deps)
	if err != nil {
		return err
	}
	if err := svc.Rehydrate(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc)
	} else {
		// Headless: keep the process alive for bus consumers until shutdown.
		g.Go(func() error {
			<-ctx.Done()
			return ctx.Err()
		})
	}

	return g.Wait()
}

// buildService constructs the engine ledger and wraps it in the service layer
// with whatever infrastructure Wire produced.
func (a *App) buildService(deps *Dependencies) (*service.LedgerService, error) {
	minBet, err := domain.ParseAmount(a.cfg.Engine.MinBet)
	if err != nil {
		return nil, fmt.Errorf("app: engine min_bet: %w", err)
	}
	maxBet, err := domain.ParseAmount(a.cfg.Engine.MaxBet)
	if err != nil {
		return nil, fmt.Errorf("app: engine max_bet: %w", err)
	}

	var owner common.Address
	switch {
	case deps.Signer != nil:
		owner = deps.Signer.Address()
	case a.cfg.Owner.Address != "":
		owner = common.HexToAddress(a.cfg.Owner.Address)
	}

	vault := custody.NewVault()
	ledger, err := engine.New(engine.Params{
		Owner:   owner,
		Custody: vault,
		FeeBps:  int64(a.cfg.Engine.FeeBps),
		MinBet:  minBet,
		MaxBet:  maxBet,
	})
	if err != nil {
		return nil, fmt.Errorf("app: engine: %w", err)
	}

	params := service.Params{
		Ledger: ledger,
		Vault:  vault,
		Stores: deps.Stores,
		Cache:  deps.MarketCache,
		Locks:  deps.LockManager,
		Bus:    deps.SignalBus,
		Signer: deps.Signer,
		Logger: a.logger,
	}
	if deps.Archiver != nil {
		params.Archiver = deps.Archiver
	}
	if deps.Notifier != nil {
		params.Notifier = deps.Notifier
	}

	svc, err := service.New(params)
	if err != nil {
		return nil, fmt.Errorf("app: service: %w", err)
	}
	return svc, nil
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully on context cancellation.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.LedgerService) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
		g.Go(func() error {
			err := hub.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		AdminKey:        a.cfg.Server.AdminKey,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
		ReadTimeout:     a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout:    a.cfg.Server.WriteTimeout.Duration,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Markets:    handler.NewMarketHandler(svc, a.logger),
		Bets:       handler.NewBetHandler(svc, a.logger),
		Settlement: handler.NewSettlementHandler(svc, a.logger),
		Treasury:   handler.NewTreasuryHandler(svc, a.logger),
		Accounts:   handler.NewAccountHandler(svc, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// demoClock is a manually advanced clock for the demo walkthrough, so a
// market can pass its deadline without waiting in real time.
type demoClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *demoClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *demoClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// DemoMode runs a scripted market lifecycle fully in memory: two seeded
// accounts bet against each other, the market resolves, the winner claims,
// and the owner withdraws fees. A mirror simulation shadows every step so the
// run also verifies that the simulated read-model stays in sync with the
// ledger.
func (a *App) DemoMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting demo mode")

	clock := &demoClock{t: time.Now().UTC()}

	ownerKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("demo: generate owner key: %w", err)
	}
	signer, err := crypto.NewSigner(hex.EncodeToString(ethcrypto.FromECDSA(ownerKey)))
	if err != nil {
		return fmt.Errorf("demo: signer: %w", err)
	}

	vault := custody.NewVault()
	alice := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	vault.Credit(alice, domain.NewAmount(1000))
	vault.Credit(bob, domain.NewAmount(1000))

	ledger, err := engine.New(engine.Params{
		Owner:   signer.Address(),
		Custody: vault,
		FeeBps:  int64(a.cfg.Engine.FeeBps),
		Now:     clock.now,
	})
	if err != nil {
		return fmt.Errorf("demo: engine: %w", err)
	}
	svc, err := service.New(service.Params{
		Ledger: ledger,
		Vault:  vault,
		Signer: signer,
		Logger: a.logger,
	})
	if err != nil {
		return fmt.Errorf("demo: service: %w", err)
	}
	shadow := mirror.New(clock.now)

	deadline := clock.now().Add(time.Hour)
	m, err := svc.CreateMarket(ctx, "Will the demo finish without errors?", deadline)
	if err != nil {
		return fmt.Errorf("demo: create market: %w", err)
	}
	if _, err := shadow.CreateMarket(m.Question, deadline); err != nil {
		return fmt.Errorf("demo: mirror create: %w", err)
	}
	a.logger.InfoContext(ctx, "demo: market created",
		slog.Int64("market_id", m.ID),
		slog.String("question", m.Question),
	)

	bets := []struct {
		account common.Address
		name    string
		side    domain.Side
		amount  int64
	}{
		{alice, "alice", domain.SideYes, 100},
		{bob, "bob", domain.SideNo, 60},
		{alice, "alice", domain.SideYes, 40},
	}
	for _, b := range bets {
		amount := domain.NewAmount(b.amount)
		if _, err := svc.PlaceBet(ctx, m.ID, b.account, b.side, amount); err != nil {
			return fmt.Errorf("demo: %s bet: %w", b.name, err)
		}
		if err := shadow.PlaceBet(b.account, m.ID, b.side, amount); err != nil {
			return fmt.Errorf("demo: mirror bet: %w", err)
		}
		a.logger.InfoContext(ctx, "demo: bet placed",
			slog.String("account", b.name),
			slog.String("side", string(b.side)),
			slog.String("amount", domain.FormatAmount(amount)),
		)
	}

	odds, err := svc.GetOdds(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("demo: odds: %w", err)
	}
	a.logger.InfoContext(ctx, "demo: implied odds",
		slog.Int64("yes_percent", odds.YesPercent),
		slog.Int64("no_percent", odds.NoPercent),
	)

	clock.advance(2 * time.Hour)

	resolved, receipt, err := svc.Resolve(ctx, m.ID, true)
	if err != nil {
		return fmt.Errorf("demo: resolve: %w", err)
	}
	if !resolved.Resolved || !resolved.OutcomeYes {
		return fmt.Errorf("demo: resolve left market %d unresolved", m.ID)
	}
	if err := shadow.Resolve(m.ID, true); err != nil {
		return fmt.Errorf("demo: mirror resolve: %w", err)
	}
	if err := crypto.VerifyReceipt(receipt, signer.Address()); err != nil {
		return fmt.Errorf("demo: receipt verification: %w", err)
	}
	a.logger.InfoContext(ctx, "demo: market resolved yes",
		slog.String("receipt_hash", receipt.Hash),
		slog.String("receipt_signer", receipt.Signer),
	)

	claim, err := svc.Claim(ctx, m.ID, alice)
	if err != nil {
		return fmt.Errorf("demo: claim: %w", err)
	}
	shadowPayout, err := shadow.Claim(alice, m.ID)
	if err != nil {
		return fmt.Errorf("demo: mirror claim: %w", err)
	}
	if claim.Payout.Cmp(shadowPayout) != 0 {
		return fmt.Errorf("demo: mirror diverged: ledger payout %s, mirror payout %s",
			domain.FormatAmount(claim.Payout), domain.FormatAmount(shadowPayout))
	}
	a.logger.InfoContext(ctx, "demo: winnings claimed",
		slog.String("payout", domain.FormatAmount(claim.Payout)),
		slog.String("fee", domain.FormatAmount(claim.Fee)),
		slog.String("user_share", domain.FormatAmount(claim.UserShare)),
	)

	fees, err := svc.WithdrawFees(ctx, signer.Address())
	if err != nil {
		return fmt.Errorf("demo: withdraw fees: %w", err)
	}

	a.logger.InfoContext(ctx, "demo: complete",
		slog.String("alice_balance", domain.FormatAmount(vault.BalanceOf(alice))),
		slog.String("bob_balance", domain.FormatAmount(vault.BalanceOf(bob))),
		slog.String("owner_fees", domain.FormatAmount(fees)),
		slog.String("dust_in_custody", domain.FormatAmount(ledger.Custodied())),
	)
	return nil
}
