package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"bondchain/config"
	"bondchain/core"
	"bondchain/crypto"
	"bondchain/observability/logging"
	"bondchain/rpc"
	"bondchain/storage"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	logger := logging.Setup("bondchaind", cfg.NetworkName, level)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	admin, err := resolveAdmin(cfg, logger)
	if err != nil {
		logger.Error("Failed to resolve admin address", slog.Any("error", err))
		os.Exit(1)
	}

	node := core.NewNode(db, admin, logger)
	node.PauseModules(cfg.PausedModules)

	if err := node.ApplyGenesis(genesisFromConfig(cfg)); err != nil {
		logger.Error("Failed to apply genesis", slog.Any("error", err))
		os.Exit(1)
	}

	if strings.TrimSpace(cfg.RPCAuthToken) == "" {
		logger.Warn("RPCAuthToken is not configured; all mutating RPC calls will be rejected")
	}

	go serveMetrics(cfg.MetricsAddress, logger)

	logger.Info("Node booted",
		slog.String("network", cfg.NetworkName),
		slog.String("admin", admin.String()),
		slog.String("data_dir", cfg.DataDir),
	)

	server := rpc.NewServer(node, cfg.RPCAuthToken)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// resolveAdmin decodes the configured admin address or, when none is set,
// generates a throwaway key for local development and logs the address.
func resolveAdmin(cfg *config.Config, logger *slog.Logger) (crypto.Address, error) {
	if strings.TrimSpace(cfg.AdminAddress) != "" {
		return crypto.DecodeAddress(cfg.AdminAddress)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return crypto.Address{}, err
	}
	addr := key.PubKey().Address()
	logger.Warn("AdminAddress not configured; generated an ephemeral admin for this run",
		slog.String("admin", addr.String()),
	)
	return addr, nil
}

func genesisFromConfig(cfg *config.Config) core.Genesis {
	gen := core.Genesis{MaxBonds: cfg.MaxBonds}
	for _, token := range cfg.Genesis.Tokens {
		gen.Tokens = append(gen.Tokens, core.GenesisToken{
			Symbol:   token.Symbol,
			Name:     token.Name,
			Decimals: token.Decimals,
		})
	}
	for _, bond := range cfg.Genesis.Bonds {
		gen.Bonds = append(gen.Bonds, core.GenesisBond{
			Symbol:         bond.Symbol,
			Name:           bond.Name,
			Underlying:     bond.Underlying,
			ExpirationTime: bond.ExpirationTime,
		})
	}
	for _, feed := range cfg.Genesis.Feeds {
		gen.Feeds = append(gen.Feeds, core.GenesisFeed{
			Symbol:      feed.Symbol,
			Asset:       feed.Asset,
			Description: feed.Description,
		})
	}
	return gen
}

func serveMetrics(addr string, logger *slog.Logger) {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("Metrics server stopped", slog.Any("error", err))
	}
}
