package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	oracletypes "github.com/classic-terra/core/v3/x/oracle/types"
	sdkclient "github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/std"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/x/auth/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	vestingtypes "github.com/cosmos/cosmos-sdk/x/auth/vesting/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"golang.org/x/sync/errgroup"

	"tc.com/oracle-feeder/pkg/aggregator"
	"tc.com/oracle-feeder/pkg/config"
	feederclient "tc.com/oracle-feeder/pkg/feeder/client"
	"tc.com/oracle-feeder/pkg/feeder/keystore"
	"tc.com/oracle-feeder/pkg/feeder/network"
	"tc.com/oracle-feeder/pkg/feeder/submit"
	"tc.com/oracle-feeder/pkg/feeder/voter"
	"tc.com/oracle-feeder/pkg/logging"
	"tc.com/oracle-feeder/pkg/metrics"
	"tc.com/oracle-feeder/pkg/server/api"
	"tc.com/oracle-feeder/pkg/sources"
	"tc.com/oracle-feeder/pkg/version"
)

const defaultGasLimit = 150000

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version and exit")
	dryRun     = flag.Bool("dry-run", false, "Build votes but never broadcast them")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("oracle-feeder version %s\n", version.Version)
		os.Exit(0)
	}

	// Terra Classic prefixes; must be set before any address parsing.
	sdkConfig := sdk.GetConfig()
	sdkConfig.SetBech32PrefixForAccount("terra", "terrapub")
	sdkConfig.SetBech32PrefixForValidator("terravaloper", "terravaloperpub")
	sdkConfig.SetBech32PrefixForConsensusNode("terravalcons", "terravalconspub")
	sdkConfig.SetCoinType(330)
	sdkConfig.SetPurpose(44)
	sdkConfig.Seal()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		for i := range cfg.Networks {
			cfg.Networks[i].DryRun = true
		}
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, logging.Rotation{
		MaxSize:    cfg.Logging.File.MaxSize,
		MaxBackups: cfg.Logging.File.MaxBackups,
		MaxAge:     cfg.Logging.File.MaxAge,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting oracle-feeder",
		"version", version.Version,
		"networks", len(cfg.Networks),
		"sources", len(cfg.Sources))

	if *dryRun {
		logger.Warn("DRY RUN MODE ENABLED - votes are built but never broadcast")
	}

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Feeder failed", "error", err)
	}
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	srcs, err := buildSources(cfg, logger)
	if err != nil {
		return err
	}

	agg, err := aggregator.New(
		cfg.Aggregation.Statistic,
		cfg.Aggregation.MaxQuoteAge.ToDuration(),
		cfg.Aggregation.OutlierTolerance,
	)
	if err != nil {
		return fmt.Errorf("failed to create aggregator: %w", err)
	}

	sampler := network.NewSampler(srcs, agg, sampleInterval(cfg), logger.Component("sampler"))

	encCfg := makeEncodingConfig()

	coordinators := make([]*network.Coordinator, 0, len(cfg.Networks))
	statuses := make([]api.StatusProvider, 0, len(cfg.Networks))
	for i := range cfg.Networks {
		coord, closeFn, err := buildNetwork(&cfg.Networks[i], encCfg, logger)
		if err != nil {
			return fmt.Errorf("network %s: %w", cfg.Networks[i].Name, err)
		}
		defer closeFn()

		coordinators = append(coordinators, coord)
		statuses = append(statuses, coord)
		sampler.AddSink(coord)
	}

	var stream *api.RateStream
	if cfg.Listen.WebSocket {
		stream = api.NewRateStream(logger.Component("ws"))
		sampler.AddSink(stream)
	}

	apiServer := api.NewServer(cfg.Listen.Addr, sampler, statuses, stream, logger.Component("api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sampler.Run(gctx) })
	for _, coord := range coordinators {
		coord := coord
		g.Go(func() error { return coord.Run(gctx) })
	}
	if stream != nil {
		g.Go(func() error { return stream.Run(gctx) })
	}
	g.Go(apiServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return apiServer.Stop(shutdownCtx)
	})

	return g.Wait()
}

// buildSources creates every enabled source connector.
func buildSources(cfg *config.Config, logger *logging.Logger) ([]sources.Source, error) {
	var srcs []sources.Source
	for _, sourceCfg := range cfg.Sources {
		if !sourceCfg.Enabled {
			continue
		}

		src, err := sources.Create(sourceCfg, logger.Component(sourceCfg.Name))
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sourceCfg.Name, err)
		}
		srcs = append(srcs, src)

		logger.Info("Initialized source",
			"type", sourceCfg.Type,
			"name", src.Name(),
			"symbols", src.Symbols())
	}
	if len(srcs) == 0 {
		return nil, fmt.Errorf("no sources enabled")
	}
	return srcs, nil
}

// buildNetwork wires the gRPC client, keystore, submitter, voter, and
// coordinator for one network.
func buildNetwork(netCfg *config.NetworkConfig, encCfg encodingConfig, logger *logging.Logger) (*network.Coordinator, func(), error) {
	netLogger := logger.Component(netCfg.Name)

	validator, err := sdk.ValAddressFromBech32(netCfg.Validator)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid validator address %s: %w", netCfg.Validator, err)
	}

	endpoints := make([]feederclient.EndpointConfig, 0, len(netCfg.GRPCEndpoints))
	for _, ep := range netCfg.GRPCEndpoints {
		endpoints = append(endpoints, feederclient.EndpointConfig{Address: ep.Address, TLS: ep.TLS})
	}

	grpcClient, err := feederclient.New(feederclient.Config{
		Endpoints:         endpoints,
		ChainID:           netCfg.ChainID,
		InterfaceRegistry: encCfg.InterfaceRegistry,
		Logger:            netLogger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gRPC client: %w", err)
	}

	feederAddr, signer, err := buildSigner(netCfg, encCfg, validator, netLogger)
	if err != nil {
		grpcClient.Close()
		return nil, nil, err
	}

	submitter := submit.New(submit.Config{
		Client:      grpcClient,
		Signer:      signer,
		Feeder:      feederAddr,
		Network:     netCfg.Name,
		Logger:      netLogger,
		MaxAttempts: netCfg.MaxSubmitAttempts,
		BaseBackoff: netCfg.SubmitBackoff.ToDuration(),
		DryRun:      netCfg.DryRun,
		ConfirmTx:   netCfg.ConfirmTx,
	})

	// In dry-run mode no prevote ever lands, so skip the on-chain check.
	var prevoteChain voter.PrevoteQuerier
	if !netCfg.DryRun {
		prevoteChain = grpcClient
	}

	v := voter.New(voter.Config{
		Network:    netCfg.Name,
		Validator:  validator,
		Feeder:     feederAddr,
		Submitter:  submitter,
		Chain:      prevoteChain,
		Logger:     netLogger,
		VotePeriod: int64(netCfg.VotePeriod),
		MaxRateAge: netCfg.PollInterval.ToDuration() * 3,
	})

	coord := network.New(network.Config{
		Name:           netCfg.Name,
		Client:         grpcClient,
		Voter:          v,
		Logger:         netLogger,
		Denoms:         netCfg.Denoms,
		PollInterval:   netCfg.PollInterval.ToDuration(),
		ParamsInterval: netCfg.ParamsInterval.ToDuration(),
	})

	return coord, func() { _ = grpcClient.Close() }, nil
}

// buildSigner resolves the feeder key. In dry-run mode a network may run
// without a mnemonic; the validator's account address stands in so
// messages can still be built.
func buildSigner(netCfg *config.NetworkConfig, encCfg encodingConfig, validator sdk.ValAddress, logger *logging.Logger) (sdk.AccAddress, submit.Signer, error) {
	mnemonic := netCfg.Mnemonic
	if netCfg.MnemonicEnv != "" {
		mnemonic = os.Getenv(netCfg.MnemonicEnv)
		if mnemonic == "" {
			return nil, nil, fmt.Errorf("environment variable %s not set", netCfg.MnemonicEnv)
		}
	}

	if mnemonic == "" {
		if !netCfg.DryRun {
			return nil, nil, fmt.Errorf("no mnemonic configured")
		}
		logger.Warn("No mnemonic configured, using validator account address for dry run")
		return sdk.AccAddress(validator), nil, nil
	}

	hdPath := netCfg.HDPath
	if hdPath == "" && netCfg.CoinType != 0 {
		hdPath = fmt.Sprintf("m/44'/%d'/0'/0/0", netCfg.CoinType)
	}

	ks, err := keystore.FromMnemonic(mnemonic, hdPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive feeder key: %w", err)
	}
	logger.Info("Loaded feeder account", "address", ks.FeederAddress().String())

	gasLimit := netCfg.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}

	signer, err := submit.NewTxSigner(submit.TxSignerConfig{
		Keyring:  ks.Keyring(),
		TxConfig: encCfg.TxConfig,
		ChainID:  netCfg.ChainID,
		Feeder:   ks.FeederAddress(),
		GasPrice: netCfg.GasPrice,
		FeeDenom: netCfg.FeeDenom,
		GasLimit: gasLimit,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create signer: %w", err)
	}

	return ks.FeederAddress(), signer, nil
}

// sampleInterval picks the shortest poll interval across networks so the
// sampler is always at least as fresh as the fastest chain.
func sampleInterval(cfg *config.Config) time.Duration {
	interval := time.Duration(0)
	for _, n := range cfg.Networks {
		d := n.PollInterval.ToDuration()
		if interval == 0 || d < interval {
			interval = d
		}
	}
	if interval == 0 {
		interval = 5 * time.Second
	}
	return interval
}

// makeEncodingConfig creates an encoding config covering every account
// type the chains may return.
func makeEncodingConfig() encodingConfig {
	amino := codec.NewLegacyAmino()
	interfaceRegistry := codectypes.NewInterfaceRegistry()

	std.RegisterLegacyAminoCodec(amino)
	std.RegisterInterfaces(interfaceRegistry)

	authtypes.RegisterLegacyAminoCodec(amino)
	authtypes.RegisterInterfaces(interfaceRegistry)

	vestingtypes.RegisterInterfaces(interfaceRegistry)
	banktypes.RegisterInterfaces(interfaceRegistry)
	oracletypes.RegisterInterfaces(interfaceRegistry)

	interfaceRegistry.RegisterImplementations(
		(*authtypes.AccountI)(nil),
		&authtypes.BaseAccount{},
		&vestingtypes.PeriodicVestingAccount{},
		&vestingtypes.ContinuousVestingAccount{},
		&vestingtypes.DelayedVestingAccount{},
		&vestingtypes.PermanentLockedAccount{},
	)
	interfaceRegistry.RegisterImplementations(
		(*authtypes.GenesisAccount)(nil),
		&authtypes.BaseAccount{},
		&authtypes.ModuleAccount{},
	)

	marshaler := codec.NewProtoCodec(interfaceRegistry)
	txCfg := tx.NewTxConfig(marshaler, tx.DefaultSignModes)

	return encodingConfig{
		InterfaceRegistry: interfaceRegistry,
		Codec:             marshaler,
		TxConfig:          txCfg,
		Amino:             amino,
	}
}

// encodingConfig specifies the concrete encoding types in use.
type encodingConfig struct {
	InterfaceRegistry codectypes.InterfaceRegistry
	Codec             codec.Codec
	TxConfig          sdkclient.TxConfig
	Amino             *codec.LegacyAmino
}
