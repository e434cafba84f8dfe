// Command decodeproposal is the minimal runnable entry point for the
// decoder engine: load config from the environment, decode one proposal,
// print the tree as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/chainsecurity/proposal-decoder/internal/decoder"
	"github.com/chainsecurity/proposal-decoder/internal/explorer"
	"github.com/chainsecurity/proposal-decoder/internal/handlers"
	"github.com/chainsecurity/proposal-decoder/internal/metadata"
	"github.com/chainsecurity/proposal-decoder/internal/models"
	"github.com/chainsecurity/proposal-decoder/internal/proxy"
	"github.com/chainsecurity/proposal-decoder/internal/rpcclient"
	"github.com/chainsecurity/proposal-decoder/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found or error loading it: %v", err)
	}

	var (
		inputPath    = flag.String("input", "", "path to a proposal JSON file (default: stdin)")
		proposalID   = flag.String("proposal-id", "", "numeric proposal id to look up on-chain instead of reading -input")
		governor     = flag.String("governor", "", "governor contract address (required with -proposal-id)")
		chainID      = flag.Int64("chain", 1, "chain id the governor and root actions live on")
		trackSources = flag.Bool("track-sources", false, "attach a DataSource provenance record to every decoded field")
		proxyTimeout = flag.Duration("proxy-timeout", 10*time.Second, "wall-clock cap for ProxyResolver's scheme race")
		pretty       = flag.Bool("pretty", os.Getenv("NODE_ENV") != "production", "pretty-print the output JSON")
	)
	flag.Parse()

	logLevel := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logLevel = lvl
	}
	var logger zerolog.Logger
	if *pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(logLevel)
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(logLevel)
	}

	cfg := models.LoadConfigFromEnv()

	d, err := buildDecoder(cfg, *chainID, *trackSources, *proxyTimeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize decoder")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	opts := models.DecodeOptions{TrackSources: *trackSources, ProxyTimeout: proxyTimeout.Milliseconds()}

	var proposal *models.Proposal
	if *proposalID != "" {
		id, ok := new(big.Int).SetString(*proposalID, 10)
		if !ok {
			exitWith(2, "invalid -proposal-id: not a base-10 integer")
		}
		if *governor == "" {
			exitWith(2, "-governor is required with -proposal-id")
		}
		proposal, err = d.DecodeProposalByID(ctx, *chainID, *governor, id, opts)
	} else {
		var raw []byte
		raw, err = readInput(*inputPath)
		if err != nil {
			exitWith(1, fmt.Sprintf("reading input: %v", err))
		}
		var details *models.ProposalDetails
		details, err = parseProposalInput(raw)
		if err == nil {
			proposal, err = d.DecodeProposal(ctx, details, opts)
		}
	}
	if err != nil {
		exitWith(exitCodeFor(err), err.Error())
	}

	out := os.Stdout
	enc := json.NewEncoder(out)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(proposal); err != nil {
		logger.Fatal().Err(err).Msg("failed to encode decoded proposal")
	}
}

// parseProposalInput defers to decoder.ParseInput, which accepts a JSON
// document, a {details,metadata} wrapper, or a raw propose() calldata
// blob.
func parseProposalInput(raw []byte) (*models.ProposalDetails, error) {
	return decoder.ParseInput(raw)
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// exitCodeFor maps errors to exit codes: 0 on successful decode
// regardless of per-node diagnostics (handled by the normal return path
// above), non-zero only for the three halting error classes.
func exitCodeFor(err error) int {
	switch err.(type) {
	case *decoder.InputError:
		return 2
	case *decoder.ChainRevertError:
		return 3
	case *explorer.AuthError:
		return 4
	default:
		return 1
	}
}

func exitWith(code int, msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(code)
}

// buildDecoder wires the store, explorer, RPC clients, proxy resolvers,
// metadata resolver and handler registry into one Decoder: constructed
// once at entry and passed through contexts rather than held in any
// process-wide singleton.
func buildDecoder(cfg models.Config, defaultChainID int64, trackSources bool, proxyTimeout time.Duration, log zerolog.Logger) (*decoder.Decoder, error) {
	st, err := store.New(cfg.CacheRoot, log)
	if err != nil {
		return nil, fmt.Errorf("building artifact store: %w", err)
	}

	exp := explorer.New(cfg.Networks, cfg.EtherscanAPIKey, log)

	chainRPC := make(map[int64]*rpcclient.Client, len(cfg.Networks))
	proxyResolvers := make(map[int64]*proxy.Resolver, len(cfg.Networks))
	for id, network := range cfg.Networks {
		client := rpcclient.New(network)
		chainRPC[id] = client
		if client.HasRPC() {
			proxyResolvers[id] = proxy.New(client, proxyTimeout, log)
		}
	}

	static := metadata.NewStaticProvider(log)
	metaResolver := metadata.New(static, nil, exp, st, chainRPC, trackSources, log)
	metaResolver.SetProxyProber(proxy.NewMultiChainProber(proxyResolvers))

	priceOracle := handlers.NewCoingeckoOracle()
	registry := handlers.NewDefaultRegistry(chainRPC, metaResolver, priceOracle, static)

	progress := models.NewProgressTracker(nil)

	return decoder.New(chainRPC, proxyResolvers, st, exp, metaResolver, registry, progress, defaultChainID, log), nil
}
