package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/tokenwatch/internal/core/domain"
	"github.com/vietddude/tokenwatch/internal/indexing/metrics"
)

const insertTransferQuery = `
	INSERT INTO raw.transfers (
		tx_hash, block_number, block_hash, time_stamp, nonce, transaction_index,
		from_address, to_address, contract_address, token_name, token_symbol, token_decimal,
		value_raw, value_wbtc, is_whale, gas_limit, gas_price, gas_used, cumulative_gas_used,
		tx_fee_native, tx_fee_fiat, input, method_id, function_name, confirmations
	) VALUES (
		:tx_hash, :block_number, :block_hash, :time_stamp, :nonce, :transaction_index,
		:from_address, :to_address, :contract_address, :token_name, :token_symbol, :token_decimal,
		:value_raw, :value_wbtc, :is_whale, :gas_limit, :gas_price, :gas_used, :cumulative_gas_used,
		:tx_fee_native, :tx_fee_fiat, :input, :method_id, :function_name, :confirmations
	)
	ON CONFLICT (tx_hash) DO NOTHING
`

// transferRow is the raw.transfers column mapping.
type transferRow struct {
	TxHash            string              `db:"tx_hash"`
	BlockNumber       int64               `db:"block_number"`
	BlockHash         string              `db:"block_hash"`
	TimeStamp         time.Time           `db:"time_stamp"`
	Nonce             int64               `db:"nonce"`
	TransactionIndex  int64               `db:"transaction_index"`
	FromAddress       string              `db:"from_address"`
	ToAddress         string              `db:"to_address"`
	ContractAddress   string              `db:"contract_address"`
	TokenName         string              `db:"token_name"`
	TokenSymbol       string              `db:"token_symbol"`
	TokenDecimal      int32               `db:"token_decimal"`
	ValueRaw          decimal.Decimal     `db:"value_raw"`
	ValueWBTC         decimal.Decimal     `db:"value_wbtc"`
	IsWhale           bool                `db:"is_whale"`
	GasLimit          sql.NullInt64       `db:"gas_limit"`
	GasPrice          decimal.NullDecimal `db:"gas_price"`
	GasUsed           sql.NullInt64       `db:"gas_used"`
	CumulativeGasUsed decimal.Decimal     `db:"cumulative_gas_used"`
	TxFeeNative       decimal.NullDecimal `db:"tx_fee_native"`
	TxFeeFiat         decimal.NullDecimal `db:"tx_fee_fiat"`
	Input             sql.NullString      `db:"input"`
	MethodID          sql.NullString      `db:"method_id"`
	FunctionName      sql.NullString      `db:"function_name"`
	Confirmations     int64               `db:"confirmations"`
}

func toRow(t domain.CanonicalTransfer) transferRow {
	return transferRow{
		TxHash:            t.TxHash,
		BlockNumber:       int64(t.BlockNumber),
		BlockHash:         t.BlockHash,
		TimeStamp:         t.Timestamp,
		Nonce:             int64(t.Nonce),
		TransactionIndex:  int64(t.TransactionIndex),
		FromAddress:       t.From,
		ToAddress:         t.To,
		ContractAddress:   t.ContractAddress,
		TokenName:         t.TokenName,
		TokenSymbol:       t.TokenSymbol,
		TokenDecimal:      t.TokenDecimal,
		ValueRaw:          t.ValueRaw,
		ValueWBTC:         t.Value,
		IsWhale:           t.IsWhale,
		GasLimit:          nullInt(t.GasLimit),
		GasPrice:          nullDecimal(t.GasPrice),
		GasUsed:           nullInt(t.GasUsed),
		CumulativeGasUsed: t.CumulativeGasUsed,
		TxFeeNative:       nullDecimal(t.TxFeeNative),
		TxFeeFiat:         nullDecimal(t.TxFeeFiat),
		Input:             nullString(t.Input),
		MethodID:          nullString(t.MethodID),
		FunctionName:      nullString(t.FunctionName),
		Confirmations:     int64(t.Confirmations),
	}
}

// TransferRepo implements storage.TransferRepository using PostgreSQL.
type TransferRepo struct {
	db *DB
}

// NewTransferRepo creates a new PostgreSQL transfer repository.
func NewTransferRepo(db *DB) *TransferRepo {
	return &TransferRepo{db: db}
}

// Persist inserts records in a single transaction, skipping known tx hashes.
func (r *TransferRepo) Persist(ctx context.Context, records []domain.CanonicalTransfer) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	start := time.Now()
	defer func() {
		metrics.PersistLatency.Observe(time.Since(start).Seconds())
	}()

	inserted, err := r.persist(ctx, records)
	if err != nil {
		metrics.PersistFailures.Inc()
		return 0, fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}

	metrics.BatchSize.Observe(float64(len(records)))
	metrics.TransfersInserted.Add(float64(inserted))
	return inserted, nil
}

func (r *TransferRepo) persist(ctx context.Context, records []domain.CanonicalTransfer) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, insertTransferQuery)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, rec := range records {
		res, err := stmt.ExecContext(ctx, toRow(rec))
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", rec.TxHash, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(inserted), nil
}

type statsRow struct {
	Rows        int64           `db:"row_count"`
	Whales      int64           `db:"whales"`
	MinBlock    int64           `db:"min_block"`
	MaxBlock    int64           `db:"max_block"`
	TotalVolume decimal.Decimal `db:"total_volume"`
}

// Stats summarises the stored transfers.
func (r *TransferRepo) Stats(ctx context.Context) (domain.TransferStats, error) {
	query := `
		SELECT
			COUNT(*)                             AS row_count,
			COUNT(*) FILTER (WHERE is_whale)     AS whales,
			COALESCE(MIN(block_number), 0)       AS min_block,
			COALESCE(MAX(block_number), 0)       AS max_block,
			COALESCE(SUM(value_wbtc), 0)         AS total_volume
		FROM raw.transfers
	`

	var row statsRow
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return domain.TransferStats{}, fmt.Errorf("failed to query transfer stats: %w", err)
	}

	return domain.TransferStats{
		Rows:        row.Rows,
		Whales:      row.Whales,
		MinBlock:    uint64(row.MinBlock),
		MaxBlock:    uint64(row.MaxBlock),
		TotalVolume: row.TotalVolume,
	}, nil
}

// LatestBlock returns the highest stored block number.
func (r *TransferRepo) LatestBlock(ctx context.Context) (uint64, bool, error) {
	var latest sql.NullInt64
	if err := r.db.GetContext(ctx, &latest, `SELECT MAX(block_number) FROM raw.transfers`); err != nil {
		return 0, false, fmt.Errorf("failed to query latest block: %w", err)
	}
	if !latest.Valid {
		return 0, false, nil
	}
	return uint64(latest.Int64), true, nil
}

func nullInt(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
