package config

import "time"

// Config is the root configuration structure
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Sources     []SourceConfig    `yaml:"sources"`
	Networks    []NetworkConfig   `yaml:"networks"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ListenConfig configures the read-only status listener
type ListenConfig struct {
	Addr      string `yaml:"addr"`
	WebSocket bool   `yaml:"websocket"`
}

// AggregationConfig configures how per-source quotes are combined
type AggregationConfig struct {
	// Statistic is the combination rule over surviving quotes: "mean" or "median"
	Statistic string `yaml:"statistic"`
	// MaxQuoteAge discards quotes older than this before combination
	MaxQuoteAge Duration `yaml:"max_quote_age"`
	// OutlierTolerance is the max relative deviation from the median (e.g. 0.1 = 10%)
	OutlierTolerance float64 `yaml:"outlier_tolerance"`
}

// SourceConfig configures a price source
type SourceConfig struct {
	Type    string            `yaml:"type"`    // connector type: binance, kraken, okx, frankfurter, currencylayer, sdr
	Name    string            `yaml:"name"`    // instance name, defaults to type
	Enabled bool              `yaml:"enabled"`
	Timeout Duration          `yaml:"timeout"` // per-fetch timeout
	APIKey  string            `yaml:"api_key"`
	Pairs   map[string]string `yaml:"pairs"` // unified symbol -> source-specific symbol
}

// NetworkConfig configures one blockchain network to feed
type NetworkConfig struct {
	Name          string         `yaml:"name"`     // short identifier used in logs and metrics
	ChainID       string         `yaml:"chain_id"` // e.g. "columbus-5"
	GRPCEndpoints []GRPCEndpoint `yaml:"grpc_endpoints"`
	Validator     string         `yaml:"validator"`    // validator operator address (bech32)
	Mnemonic      string         `yaml:"mnemonic"`     // BIP39 mnemonic (or use MnemonicEnv)
	MnemonicEnv   string         `yaml:"mnemonic_env"` // environment variable holding the mnemonic
	HDPath        string         `yaml:"hd_path"`
	CoinType      uint32         `yaml:"coin_type"`
	GasPrice      string         `yaml:"gas_price"`
	FeeDenom      string         `yaml:"fee_denom"`
	GasLimit      uint64         `yaml:"gas_limit"` // 0 = built-in default

	// Denoms maps unified price symbols to oracle denoms, e.g. "KRW/USD" -> "ukrw".
	Denoms map[string]string `yaml:"denoms"`

	PollInterval   Duration `yaml:"poll_interval"`   // source polling + height check cadence
	ParamsInterval Duration `yaml:"params_interval"` // on-chain oracle params refresh cadence
	VotePeriod     uint64   `yaml:"vote_period"`     // fallback until on-chain params load

	MaxSubmitAttempts int      `yaml:"max_submit_attempts"`
	SubmitBackoff     Duration `yaml:"submit_backoff"` // base delay of the backoff schedule
	ConfirmTx         bool     `yaml:"confirm_tx"`     // verify accepted txs landed in a block

	DryRun bool `yaml:"dry_run"` // build votes but never broadcast
}

// GRPCEndpoint is a single gRPC endpoint with its TLS setting
type GRPCEndpoint struct {
	Address string `yaml:"address"`
	TLS     bool   `yaml:"tls"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"`
	Output string        `yaml:"output"`
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig configures log file rotation
type LogFileConfig struct {
	MaxSize    int `yaml:"max_size"`
	MaxBackups int `yaml:"max_backups"`
	MaxAge     int `yaml:"max_age"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
