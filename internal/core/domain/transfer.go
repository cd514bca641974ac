package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTransfer is one token-transfer event exactly as the explorer reported it.
// Numeric fields stay string-encoded until the normalizer parses them.
type RawTransfer struct {
	Hash              string `json:"hash"`
	BlockNumber       string `json:"blockNumber"`
	BlockHash         string `json:"blockHash"`
	TimeStamp         string `json:"timeStamp"`
	Nonce             string `json:"nonce"`
	TransactionIndex  string `json:"transactionIndex"`
	From              string `json:"from"`
	To                string `json:"to"`
	ContractAddress   string `json:"contractAddress"`
	TokenName         string `json:"tokenName,omitempty"`
	TokenSymbol       string `json:"tokenSymbol,omitempty"`
	TokenDecimal      string `json:"tokenDecimal,omitempty"`
	Value             string `json:"value"`
	Gas               string `json:"gas,omitempty"`
	GasPrice          string `json:"gasPrice,omitempty"`
	GasUsed           string `json:"gasUsed,omitempty"`
	CumulativeGasUsed string `json:"cumulativeGasUsed"`
	Input             string `json:"input,omitempty"`
	MethodID          string `json:"methodId,omitempty"`
	FunctionName      string `json:"functionName,omitempty"`
	Confirmations     string `json:"confirmations"`
}

// CanonicalTransfer is the storage-ready representation of a transfer.
// Optional gas-derived fields are nil when the explorer omitted them.
type CanonicalTransfer struct {
	ID                uint64
	TxHash            string
	BlockNumber       uint64
	BlockHash         string
	Timestamp         time.Time
	Nonce             uint64
	TransactionIndex  uint32
	From              string
	To                string
	ContractAddress   string
	TokenName         string
	TokenSymbol       string
	TokenDecimal      int32
	ValueRaw          decimal.Decimal
	Value             decimal.Decimal // token units, ValueRaw / 10^TokenDecimal
	IsWhale           bool
	GasLimit          *uint64
	GasPrice          *decimal.Decimal
	GasUsed           *uint64
	CumulativeGasUsed decimal.Decimal
	TxFeeNative       *decimal.Decimal
	TxFeeFiat         *decimal.Decimal
	Input             *string
	MethodID          *string
	FunctionName      *string
	Confirmations     uint64
}

// TransferStats summarises what storage currently holds.
type TransferStats struct {
	Rows        int64
	Whales      int64
	MinBlock    uint64
	MaxBlock    uint64
	TotalVolume decimal.Decimal
}
