// Package normalize turns raw explorer transfers into storage-ready records.
//
// Every numeric field arrives string-encoded. Parsing happens once, here, and
// a record that fails to parse is reported as domain.ErrMalformedRecord so the
// caller can drop it and move on.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/vietddude/tokenwatch/internal/core/domain"
)

// nativeDecimals is the wei exponent of the chain's native currency.
const nativeDecimals = 18

// Config holds the thresholds and defaults applied during normalization.
type Config struct {
	WhaleThreshold     decimal.Decimal // token units
	FeeFiatRate        decimal.Decimal // fiat per native unit
	DefaultDecimals    int32
	DefaultTokenName   string
	DefaultTokenSymbol string
}

// DefaultConfig returns the WBTC defaults.
func DefaultConfig() Config {
	return Config{
		WhaleThreshold:     decimal.NewFromInt(5),
		FeeFiatRate:        decimal.NewFromInt(26_000),
		DefaultDecimals:    8,
		DefaultTokenName:   "Wrapped Bitcoin",
		DefaultTokenSymbol: "WBTC",
	}
}

// Normalizer is a pure mapping from RawTransfer to CanonicalTransfer.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	cfg Config
}

// New creates a Normalizer.
func New(cfg Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Normalize parses raw into its canonical form.
func (n *Normalizer) Normalize(raw domain.RawTransfer) (domain.CanonicalTransfer, error) {
	p := parser{}

	out := domain.CanonicalTransfer{
		TxHash:            p.hash("hash", raw.Hash),
		BlockNumber:       p.unsigned("blockNumber", raw.BlockNumber),
		BlockHash:         strings.TrimSpace(raw.BlockHash),
		Timestamp:         p.timestamp("timeStamp", raw.TimeStamp),
		Nonce:             p.unsigned("nonce", raw.Nonce),
		TransactionIndex:  uint32(p.uintBits("transactionIndex", raw.TransactionIndex, 32)),
		From:              p.address("from", raw.From),
		To:                p.address("to", raw.To),
		ContractAddress:   p.address("contractAddress", raw.ContractAddress),
		TokenName:         orDefault(raw.TokenName, n.cfg.DefaultTokenName),
		TokenSymbol:       orDefault(raw.TokenSymbol, n.cfg.DefaultTokenSymbol),
		TokenDecimal:      n.cfg.DefaultDecimals,
		ValueRaw:          p.number("value", raw.Value),
		CumulativeGasUsed: p.number("cumulativeGasUsed", raw.CumulativeGasUsed),
		Confirmations:     p.unsigned("confirmations", raw.Confirmations),
		GasLimit:          p.optionalUint("gas", raw.Gas),
		GasPrice:          p.optionalDecimal("gasPrice", raw.GasPrice),
		GasUsed:           p.optionalUint("gasUsed", raw.GasUsed),
		Input:             optionalString(raw.Input),
		MethodID:          optionalString(raw.MethodID),
		FunctionName:      optionalString(raw.FunctionName),
	}
	if s := strings.TrimSpace(raw.TokenDecimal); s != "" {
		out.TokenDecimal = int32(p.uintBits("tokenDecimal", s, 8))
	}
	if p.err != nil {
		return domain.CanonicalTransfer{}, p.err
	}
	if out.ValueRaw.IsNegative() {
		return domain.CanonicalTransfer{}, fmt.Errorf("%w: negative value %s", domain.ErrMalformedRecord, raw.Value)
	}

	out.Value = out.ValueRaw
	if out.TokenDecimal > 0 {
		out.Value = out.ValueRaw.Shift(-out.TokenDecimal)
	}
	out.IsWhale = out.Value.GreaterThanOrEqual(n.cfg.WhaleThreshold)

	if out.GasPrice != nil && out.GasUsed != nil {
		native := out.GasPrice.Mul(decimal.NewFromUint64(*out.GasUsed)).Shift(-nativeDecimals)
		fiat := native.Mul(n.cfg.FeeFiatRate)
		out.TxFeeNative = &native
		out.TxFeeFiat = &fiat
	}

	return out, nil
}

// parser accumulates the first field error so Normalize reads top to bottom.
type parser struct {
	err error
}

func (p *parser) fail(field, value, reason string) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: field %s=%q: %s", domain.ErrMalformedRecord, field, value, reason)
	}
}

func (p *parser) required(field, value string) (string, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		p.fail(field, value, "missing")
		return "", false
	}
	return s, true
}

func (p *parser) uintBits(field, value string, bits int) uint64 {
	s, ok := p.required(field, value)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		p.fail(field, value, "not an unsigned integer")
		return 0
	}
	return n
}

func (p *parser) unsigned(field, value string) uint64 {
	return p.uintBits(field, value, 64)
}

func (p *parser) optionalUint(field, value string) *uint64 {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	n := p.unsigned(field, value)
	return &n
}

func (p *parser) number(field, value string) decimal.Decimal {
	s, ok := p.required(field, value)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.fail(field, value, "not a number")
		return decimal.Zero
	}
	return d
}

func (p *parser) optionalDecimal(field, value string) *decimal.Decimal {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	d := p.number(field, value)
	return &d
}

func (p *parser) timestamp(field, value string) time.Time {
	secs := p.unsigned(field, value)
	return time.Unix(int64(secs), 0).UTC()
}

func (p *parser) address(field, value string) string {
	s, ok := p.required(field, value)
	if !ok {
		return ""
	}
	if !common.IsHexAddress(s) {
		p.fail(field, value, "not a hex address")
		return ""
	}
	return strings.ToLower(s)
}

func (p *parser) hash(field, value string) string {
	s, ok := p.required(field, value)
	if !ok {
		return ""
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		p.fail(field, value, "not a 32-byte hex hash")
		return ""
	}
	return strings.ToLower(s)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
