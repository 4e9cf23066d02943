// Command settlecore is the settlement core entry point. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the application in the configured mode.
//
// Two utility subcommands support operators:
//
//	settlecore encrypt-key   encrypt a raw private key into a key file
//	settlecore sign-order    sign an order JSON with the configured key
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/settlecore/internal/app"
	"github.com/alanyoungcy/settlecore/internal/config"
	"github.com/alanyoungcy/settlecore/internal/crypto"
	"github.com/alanyoungcy/settlecore/internal/domain"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "encrypt-key":
			encryptKeyCmd(os.Args[2:])
			return
		case "sign-order":
			signOrderCmd(os.Args[2:])
			return
		}
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("settlement core starting",
		slog.String("mode", cfg.Mode),
		slog.String("storage", cfg.Storage),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("settlement core stopped")
}

// encryptKeyCmd encrypts a raw hex private key into an encrypted key file
// that the signer config can reference via encrypted_key_path.
func encryptKeyCmd(args []string) {
	fs := flag.NewFlagSet("encrypt-key", flag.ExitOnError)
	keyHex := fs.String("key", "", "hex-encoded private key (0x prefix optional)")
	password := fs.String("password", "", "encryption password")
	out := fs.String("out", "signer.key.json", "output file path")
	_ = fs.Parse(args)

	if *keyHex == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "encrypt-key: -key and -password are required")
		os.Exit(2)
	}

	blob, err := crypto.EncryptKey(*keyHex, *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encrypt-key: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "encrypt-key: write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("encrypted key written to %s\n", *out)
}

// orderFile is the JSON layout accepted by sign-order. It mirrors the order
// payload the match endpoint accepts, minus the signature.
type orderFile struct {
	Maker    string `json:"maker"`
	TokenID  string `json:"token_id"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
	Side     string `json:"side"`
	Deadline int64  `json:"deadline"`
	Salt     string `json:"salt"`
}

// signOrderCmd signs an order JSON file with the key from the signer config
// section and prints the hex signature plus the order digest.
func signOrderCmd(args []string) {
	fs := flag.NewFlagSet("sign-order", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	orderPath := fs.String("order", "", "path to order JSON file")
	_ = fs.Parse(args)

	if *orderPath == "" {
		fmt.Fprintln(os.Stderr, "sign-order: -order is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign-order: load config: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(*orderPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign-order: read order: %v\n", err)
		os.Exit(1)
	}
	var of orderFile
	if err := json.Unmarshal(data, &of); err != nil {
		fmt.Fprintf(os.Stderr, "sign-order: parse order: %v\n", err)
		os.Exit(1)
	}

	order, err := of.toOrder()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign-order: %v\n", err)
		os.Exit(1)
	}

	key, err := crypto.LoadSigningKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Signer.PrivateKey,
		EncryptedKeyPath: cfg.Signer.EncryptedKeyPath,
		KeyPassword:      cfg.Signer.KeyPassword,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign-order: load key: %v\n", err)
		os.Exit(1)
	}

	matcherAddr := common.HexToAddress(cfg.Chain.MatcherAddress)
	sig, err := crypto.SignOrder(order, cfg.Chain.ChainID, matcherAddr, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign-order: %v\n", err)
		os.Exit(1)
	}

	digest := crypto.OrderDigest(order, cfg.Chain.ChainID, matcherAddr)
	fmt.Printf("digest:    %s\nsignature: %s\n", digest.Hex(), hexutil.Encode(sig))
}

func (of orderFile) toOrder() (domain.Order, error) {
	if !common.IsHexAddress(of.Maker) {
		return domain.Order{}, fmt.Errorf("invalid maker address %q", of.Maker)
	}
	quantity, ok := new(big.Int).SetString(of.Quantity, 10)
	if !ok {
		return domain.Order{}, fmt.Errorf("invalid quantity %q", of.Quantity)
	}
	price, ok := new(big.Int).SetString(of.Price, 10)
	if !ok {
		return domain.Order{}, fmt.Errorf("invalid price %q", of.Price)
	}
	salt, ok := new(big.Int).SetString(of.Salt, 10)
	if !ok {
		return domain.Order{}, fmt.Errorf("invalid salt %q", of.Salt)
	}
	side := domain.OrderSide(of.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		return domain.Order{}, fmt.Errorf("invalid side %q", of.Side)
	}

	return domain.Order{
		Maker:    common.HexToAddress(of.Maker),
		TokenID:  common.HexToHash(of.TokenID),
		Quantity: quantity,
		Price:    price,
		Side:     side,
		Deadline: big.NewInt(of.Deadline),
		Salt:     salt,
	}, nil
}
