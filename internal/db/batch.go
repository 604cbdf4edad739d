package db

import (
	"context"
	"fmt"
	"time"
)

// BatchConfig holds configuration for chunked bulk inserts.
type BatchConfig struct {
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:  100,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// BatchInsert bulk-inserts rows via COPY in chunks of cfg.BatchSize, retrying
// each chunk. Returns the number of rows written. Used by the buffered audit
// sink so that audit writes never sit on a request path.
func (d *DB) BatchInsert(ctx context.Context, tableName string, columns []string, values [][]interface{}, cfg BatchConfig) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}

	total := 0
	for i := 0; i < len(values); i += cfg.BatchSize {
		end := i + cfg.BatchSize
		if end > len(values) {
			end = len(values)
		}

		inserted, err := d.insertChunk(ctx, tableName, columns, values[i:end], cfg)
		if err != nil {
			return total, fmt.Errorf("batch insert failed at offset %d: %w", i, err)
		}
		total += inserted
	}

	return total, nil
}

func (d *DB) insertChunk(ctx context.Context, tableName string, columns []string, chunk [][]interface{}, cfg BatchConfig) (int, error) {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		rowsCopied, err := d.Pool.CopyFrom(ctx, []string{tableName}, columns, &batchSource{rows: chunk})
		if err == nil {
			return int(rowsCopied), nil
		}

		lastErr = err
		if attempt < cfg.MaxRetries-1 {
			time.Sleep(cfg.RetryDelay)
		}
	}

	return 0, lastErr
}

// batchSource implements pgx.CopyFromSource.
type batchSource struct {
	rows  [][]interface{}
	index int
}

func (b *batchSource) Next() bool {
	b.index++
	return b.index <= len(b.rows)
}

func (b *batchSource) Values() ([]interface{}, error) {
	return b.rows[b.index-1], nil
}

func (b *batchSource) Err() error {
	return nil
}
