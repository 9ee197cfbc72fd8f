package config

import "errors"

// Configuration validation errors.
var (
	ErrNoNetworks          = errors.New("at least one network must be configured")
	ErrNoSources           = errors.New("at least one source must be enabled")
	ErrNoGRPCEndpoints     = errors.New("network has no gRPC endpoints")
	ErrNoValidator         = errors.New("network has no validator address")
	ErrNoMnemonic          = errors.New("network has no mnemonic or mnemonic_env")
	ErrNoDenoms            = errors.New("network has no denom mappings")
	ErrInvalidStatistic    = errors.New("aggregation statistic must be \"mean\" or \"median\"")
	ErrInvalidTolerance    = errors.New("outlier tolerance must be in (0, 1)")
	ErrDuplicateNetwork    = errors.New("duplicate network name")
	ErrDuplicateSourceName = errors.New("duplicate source name")
	ErrUnknownSymbol       = errors.New("network denom references symbol not provided by any source")
)
