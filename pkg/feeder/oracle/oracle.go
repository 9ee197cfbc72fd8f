// Package oracle builds commit-reveal vote material for the on-chain
// oracle module.
package oracle

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"

	oracletypes "github.com/classic-terra/core/v3/x/oracle/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/shopspring/decimal"
)

// maxSaltNumber bounds the random salt. The oracle module limits salt
// length to 4 characters.
var maxSaltNumber = big.NewInt(9999)

// decPrecision is the sdk.Dec decimal place limit.
const decPrecision = 18

// Rate is one exchange rate keyed by its chain denomination.
type Rate struct {
	Denom string
	Rate  decimal.Decimal
}

// Commitment is the full material for one commit-reveal round: the rates
// being committed to, the serialized vote string, the salt, and the hash
// that goes into the prevote. The vote string and salt are revealed one
// vote period after the prevote lands.
type Commitment struct {
	Rates     []Rate
	VoteStr   string
	Salt      string
	Hash      oracletypes.AggregateVoteHash
	Period    int64
	validator sdk.ValAddress
	feeder    sdk.AccAddress
}

// NewCommitment creates a commitment for the given vote period.
// The hash is SHA256("{salt}:{vote}:{validator}") as computed by the
// oracle module.
func NewCommitment(rates []Rate, validator sdk.ValAddress, feeder sdk.AccAddress, period int64) (*Commitment, error) {
	if len(rates) == 0 {
		return nil, ErrNoRates
	}

	voteStr := BuildExchangeRatesString(rates)

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	return &Commitment{
		Rates:     rates,
		VoteStr:   voteStr,
		Salt:      salt,
		Hash:      oracletypes.GetAggregateVoteHash(salt, voteStr, validator),
		Period:    period,
		validator: validator,
		feeder:    feeder,
	}, nil
}

// PrevoteMsg returns the hash-commitment message.
func (c *Commitment) PrevoteMsg() *oracletypes.MsgAggregateExchangeRatePrevote {
	return oracletypes.NewMsgAggregateExchangeRatePrevote(c.Hash, c.feeder, c.validator)
}

// VoteMsg returns the reveal message carrying the salt and rates.
func (c *Commitment) VoteMsg() *oracletypes.MsgAggregateExchangeRateVote {
	return oracletypes.NewMsgAggregateExchangeRateVote(c.Salt, c.VoteStr, c.feeder, c.validator)
}

// VerifyHash checks the commitment hash against the prevote recorded
// on chain.
func (c *Commitment) VerifyHash(chainHash string) bool {
	return c.Hash.String() == chainHash
}

// BuildExchangeRatesString serializes rates as "rate1denom1,rate2denom2,..."
// sorted by denom. The order must be stable or the reveal hash will not
// match the commitment.
func BuildExchangeRatesString(rates []Rate) string {
	sorted := make([]Rate, len(rates))
	copy(sorted, rates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Denom < sorted[j].Denom
	})

	parts := make([]string, len(sorted))
	for i, r := range sorted {
		parts[i] = r.Rate.Truncate(decPrecision).String() + NormalizeDenom(r.Denom)
	}
	return strings.Join(parts, ",")
}

// NormalizeDenom ensures the micro prefix on a denomination.
func NormalizeDenom(denom string) string {
	if strings.HasPrefix(denom, "u") {
		return denom
	}
	return "u" + strings.ToLower(denom)
}

// GenerateSalt returns a random 1-4 digit salt.
func GenerateSalt() (string, error) {
	n, err := rand.Int(rand.Reader, maxSaltNumber)
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return n.String(), nil
}

// ParseExchangeRates parses a comma-separated exchange rate string into a
// map of denom to rate.
func ParseExchangeRates(exchangeRates string) (map[string]sdk.Dec, error) {
	if exchangeRates == "" {
		return nil, ErrEmptyRates
	}

	tuples, err := oracletypes.ParseExchangeRateTuples(exchangeRates)
	if err != nil {
		return nil, fmt.Errorf("failed to parse exchange rate tuples: %w", err)
	}

	result := make(map[string]sdk.Dec, len(tuples))
	for _, tuple := range tuples {
		result[tuple.Denom] = tuple.ExchangeRate
	}

	return result, nil
}

// FilterByWhitelist keeps only rates whose denom is in the oracle
// module's whitelist.
func FilterByWhitelist(rates []Rate, whitelist []string) []Rate {
	allowed := make(map[string]bool, len(whitelist))
	for _, denom := range whitelist {
		allowed[denom] = true
	}

	var result []Rate
	for _, r := range rates {
		if allowed[NormalizeDenom(r.Denom)] {
			result = append(result, Rate{Denom: NormalizeDenom(r.Denom), Rate: r.Rate})
		}
	}
	return result
}
