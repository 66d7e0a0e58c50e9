package server

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	appbitcoin "bitpos/internal/application/bitcoin"
	appcurrency "bitpos/internal/application/currency"
	applightning "bitpos/internal/application/lightning"
	appusdt "bitpos/internal/application/usdt"
	"bitpos/internal/domain/currency"
	"bitpos/internal/domain/payment"
	"bitpos/internal/infrastructure/blockchain"
	"bitpos/internal/infrastructure/blockonomics"
	"bitpos/internal/infrastructure/btcpay"
	"bitpos/internal/infrastructure/config"
	"bitpos/internal/infrastructure/exchangerate"
	"bitpos/internal/infrastructure/feeds"
	"bitpos/internal/infrastructure/lnbits"
	"bitpos/internal/infrastructure/lnd"
	"bitpos/internal/infrastructure/manual"
	"bitpos/internal/infrastructure/persistence"
	httpapi "bitpos/internal/interfaces/http"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
)

// NewCommand returns the `serve` command that runs the POS core.
func NewCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the point-of-sale settlement server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
	}); err != nil {
		return err
	}
	log := logger.NewLogger()

	// Currency engine.
	store := currency.NewRateStore()
	engine := appcurrency.NewEngine(
		store,
		feeds.NewMempoolFeed(cfg.Currency.MempoolBaseURL),
		feeds.NewCoinGeckoFeed(cfg.Currency.CoinGeckoBaseURL),
		feeds.NewERAPIFeed(cfg.Currency.FiatRateBaseURL),
		appcurrency.EngineConfig{
			RefreshPeriod:       cfg.Currency.RefreshPeriod,
			FallbackBTCPriceUSD: cfg.Currency.FallbackBTCPriceUSD,
		},
		log,
	)
	if err := engine.Initialize(context.Background(), cfg.Currency.Base); err != nil {
		return err
	}
	defer engine.Close()

	// Lightning.
	lnBackend, err := buildLightningBackend(cfg, log)
	if err != nil {
		return err
	}
	lnService := applightning.NewService(lnBackend, applightning.Config{
		InvoiceExpiry:      cfg.Lightning.InvoiceExpiry,
		WatchInterval:      cfg.Lightning.WatchInterval,
		WatchErrorInterval: cfg.Lightning.WatchErrorInterval,
	}, log)
	defer lnService.StopAll()

	// Bitcoin on-chain.
	btcProvider, err := buildBitcoinProvider(cfg, log)
	if err != nil {
		return err
	}
	btcService := appbitcoin.NewService(btcProvider, engine, appbitcoin.Config{
		InvoiceExpiry:         cfg.Bitcoin.InvoiceExpiry,
		RequiredConfirmations: cfg.Bitcoin.RequiredConfirmations,
		WatchInterval:         cfg.Bitcoin.WatchInterval,
	}, log)
	defer btcService.StopAll()

	// USDT.
	monitors, addresses, err := buildUSDTMonitors(cfg, log)
	if err != nil {
		return err
	}
	usdtRates := exchangerate.NewUSDTRateService("", engine, log)
	usdtService := appusdt.NewService(monitors, usdtRates, appusdt.Config{
		Addresses:          addresses,
		DefaultNetwork:     payment.Network(cfg.USDT.DefaultNetwork),
		InvoiceExpiry:      cfg.USDT.InvoiceExpiry,
		AmountTolerance:    cfg.USDT.AmountTolerance,
		WatchInterval:      cfg.USDT.WatchInterval,
		WatchErrorInterval: cfg.USDT.WatchErrorInterval,
	}, log)
	defer usdtService.StopAll()

	// Persistence.
	db, err := persistence.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	proofs := persistence.NewProofRepository(db)

	handler := httpapi.NewHandler(engine, lnService, btcService, usdtService, proofs, log)
	router := httpapi.NewRouter(cfg.Server.Mode, handler, log)

	srv := &nethttp.Server{
		Addr:    cfg.Server.Address(),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server listening", "address", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Infow("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func buildLightningBackend(cfg *config.Config, log logger.Interface) (applightning.Backend, error) {
	switch cfg.Lightning.Backend {
	case "lnbits":
		return lnbits.NewClient(lnbits.Config{
			BaseURL:    cfg.Lightning.LNbits.BaseURL,
			InvoiceKey: cfg.Lightning.LNbits.InvoiceKey,
		}, log)
	case "lnd":
		return lnd.NewClient(lnd.Config{
			Host:         cfg.Lightning.LND.Host,
			TLSCertPath:  cfg.Lightning.LND.TLSCertPath,
			MacaroonPath: cfg.Lightning.LND.MacaroonPath,
		}, log)
	case "", "none":
		// Lightning disabled; the service reports a configuration
		// error on use.
		return nil, nil
	default:
		return nil, apperrors.NewConfigurationError("unknown lightning backend", cfg.Lightning.Backend)
	}
}

func buildBitcoinProvider(cfg *config.Config, log logger.Interface) (appbitcoin.Provider, error) {
	switch cfg.Bitcoin.Provider {
	case "btcpay":
		return btcpay.NewClient(btcpay.Config{
			ServerURL: cfg.Bitcoin.BTCPay.ServerURL,
			APIKey:    cfg.Bitcoin.BTCPay.APIKey,
			StoreID:   cfg.Bitcoin.BTCPay.StoreID,
		}, log)
	case "blockonomics":
		return blockonomics.NewClient(blockonomics.Config{
			APIKey: cfg.Bitcoin.Blockonomics.APIKey,
		}, log)
	case "manual":
		return manual.NewProvider(manual.Config{
			Address: cfg.Bitcoin.Manual.Address,
		}, log)
	case "", "none":
		return nil, nil
	default:
		return nil, apperrors.NewConfigurationError("unknown bitcoin provider", cfg.Bitcoin.Provider)
	}
}

func buildUSDTMonitors(cfg *config.Config, log logger.Interface) ([]appusdt.TransactionMonitor, map[payment.Network]string, error) {
	addresses := make(map[payment.Network]string)
	var monitors []appusdt.TransactionMonitor

	for raw, address := range cfg.USDT.Addresses {
		if address == "" {
			continue
		}
		network, err := payment.NewNetwork(raw)
		if err != nil {
			return nil, nil, apperrors.NewConfigurationError("unknown USDT network", raw)
		}
		addresses[network] = address

		switch network {
		case payment.NetworkTRC:
			monitors = append(monitors, blockchain.NewTronMonitor(blockchain.TronGridConfig{
				APIKey: cfg.USDT.TronGrid.APIKey,
			}, log))
		case payment.NetworkPOL, payment.NetworkETH:
			m, err := blockchain.NewEVMMonitor(network, blockchain.EVMConfig{
				APIKey: cfg.USDT.Etherscan.APIKey,
			}, log)
			if err != nil {
				return nil, nil, err
			}
			monitors = append(monitors, m)
		}
	}
	return monitors, addresses, nil
}
