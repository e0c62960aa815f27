package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pairEngine/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for pair logs and snapshots.
type Store struct {
	pool    *pgxpool.Pool
	chainID uint64
}

func NewStore(ctx context.Context, dsn string, chainID uint64) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, chainID: chainID}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutLogBatch inserts log records, skipping positions already stored.
func (s *Store) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, log := range logs {
		var topic0 string
		if len(log.Topics) > 0 {
			topic0 = strings.ToLower(log.Topics[0])
		}
		batch.Queue(`
			INSERT INTO pair_logs (
				chain_id, block_number, log_index, step, pair_address, topic0, topics, data, ts
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (chain_id, block_number, log_index) DO NOTHING
		`,
			int64(log.ChainID),
			int64(log.BlockNumber),
			int64(log.LogIndex),
			log.Step,
			strings.ToLower(log.Address),
			topic0,
			log.Topics,
			log.Data,
			int64(log.Timestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range logs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert pair log: %w", err)
		}
	}
	return nil
}

// PutPairStates inserts or replaces pair snapshots.
func (s *Store) PutPairStates(ctx context.Context, states []model.PairState) error {
	if len(states) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, st := range states {
		shares, err := json.Marshal(st.Shares)
		if err != nil {
			return fmt.Errorf("marshal shares: %w", err)
		}
		batch.Queue(`
			INSERT INTO pair_states (
				chain_id, pair_address, token_a, token_b, reserve_a, reserve_b, block_timestamp_last,
				price_a_cumulative, price_b_cumulative, k_last, total_supply, shares, updated_at
			) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12, now())
			ON CONFLICT (chain_id, pair_address)
			DO UPDATE SET
				reserve_a = EXCLUDED.reserve_a,
				reserve_b = EXCLUDED.reserve_b,
				block_timestamp_last = EXCLUDED.block_timestamp_last,
				price_a_cumulative = EXCLUDED.price_a_cumulative,
				price_b_cumulative = EXCLUDED.price_b_cumulative,
				k_last = EXCLUDED.k_last,
				total_supply = EXCLUDED.total_supply,
				shares = EXCLUDED.shares,
				updated_at = now()
		`,
			int64(s.chainID),
			strings.ToLower(st.Address.Hex()),
			strings.ToLower(st.TokenA.Hex()),
			strings.ToLower(st.TokenB.Hex()),
			orZero(st.ReserveA),
			orZero(st.ReserveB),
			int64(st.BlockTimestampLast),
			orZero(st.PriceACumulative),
			orZero(st.PriceBCumulative),
			orZero(st.KLast),
			orZero(st.TotalSupply),
			shares,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range states {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert pair state: %w", err)
		}
	}
	return nil
}

// LoadPairState returns the stored snapshot of a pair.
func (s *Store) LoadPairState(ctx context.Context, pair common.Address) (model.PairState, bool, error) {
	var (
		st             model.PairState
		tokenA, tokenB string
		ts             int64
		shares         []byte
	)
	row := s.pool.QueryRow(ctx, `
		SELECT token_a, token_b, reserve_a::text, reserve_b::text, block_timestamp_last,
			price_a_cumulative::text, price_b_cumulative::text, k_last::text, total_supply::text, shares
		FROM pair_states WHERE chain_id=$1 AND pair_address=$2
	`, int64(s.chainID), strings.ToLower(pair.Hex()))
	err := row.Scan(&tokenA, &tokenB, &st.ReserveA, &st.ReserveB, &ts,
		&st.PriceACumulative, &st.PriceBCumulative, &st.KLast, &st.TotalSupply, &shares)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PairState{}, false, nil
		}
		return model.PairState{}, false, err
	}
	if err := json.Unmarshal(shares, &st.Shares); err != nil {
		return model.PairState{}, false, fmt.Errorf("parse shares: %w", err)
	}
	st.Address = pair
	st.TokenA = common.HexToAddress(tokenA)
	st.TokenB = common.HexToAddress(tokenB)
	st.BlockTimestampLast = uint32(ts)
	return st, true, nil
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
