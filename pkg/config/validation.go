package config

import "fmt"

// Validate checks a loaded configuration for internal consistency.
// It returns the first problem found; startup aborts on any error here.
func Validate(cfg *Config) error {
	switch cfg.Aggregation.Statistic {
	case "mean", "median":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatistic, cfg.Aggregation.Statistic)
	}

	if cfg.Aggregation.OutlierTolerance <= 0 || cfg.Aggregation.OutlierTolerance >= 1 {
		return fmt.Errorf("%w: %v", ErrInvalidTolerance, cfg.Aggregation.OutlierTolerance)
	}

	enabledSources := 0
	sourceNames := make(map[string]bool)
	providedSymbols := make(map[string]bool)
	for _, src := range cfg.Sources {
		if sourceNames[src.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateSourceName, src.Name)
		}
		sourceNames[src.Name] = true

		if !src.Enabled {
			continue
		}
		enabledSources++
		for symbol := range src.Pairs {
			providedSymbols[symbol] = true
		}
	}
	if enabledSources == 0 {
		return ErrNoSources
	}

	if len(cfg.Networks) == 0 {
		return ErrNoNetworks
	}

	networkNames := make(map[string]bool)
	for _, n := range cfg.Networks {
		if networkNames[n.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateNetwork, n.Name)
		}
		networkNames[n.Name] = true

		if len(n.GRPCEndpoints) == 0 {
			return fmt.Errorf("%w: %s", ErrNoGRPCEndpoints, n.Name)
		}
		if n.Validator == "" {
			return fmt.Errorf("%w: %s", ErrNoValidator, n.Name)
		}
		if n.Mnemonic == "" && n.MnemonicEnv == "" && !n.DryRun {
			return fmt.Errorf("%w: %s", ErrNoMnemonic, n.Name)
		}
		if len(n.Denoms) == 0 {
			return fmt.Errorf("%w: %s", ErrNoDenoms, n.Name)
		}
		for symbol, denom := range n.Denoms {
			if !providedSymbols[symbol] {
				return fmt.Errorf("%w: %s (denom %s, network %s)", ErrUnknownSymbol, symbol, denom, n.Name)
			}
		}
	}

	return nil
}
