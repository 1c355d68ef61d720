package economy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProvider reads the newest snapshot from economy_config whose
// effective_at is not in the future.
type PostgresProvider struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPostgresProvider(db *pgxpool.Pool) *PostgresProvider {
	return &PostgresProvider{db: db, now: time.Now}
}

const currentEconomyConfig = `
SELECT version, effective_at, payload
FROM economy_config
WHERE effective_at <= $1
ORDER BY effective_at DESC, version DESC
LIMIT 1
`

func (p *PostgresProvider) Current(ctx context.Context) (*Config, error) {
	var (
		version     int64
		effectiveAt time.Time
		payload     []byte
	)
	err := p.db.QueryRow(ctx, currentEconomyConfig, p.now().UTC()).Scan(&version, &effectiveAt, &payload)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("no economy config is effective")
	}
	if err != nil {
		return nil, fmt.Errorf("query economy config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return nil, fmt.Errorf("decode economy config v%d: %w", version, err)
	}
	cfg.Version = version
	cfg.EffectiveAt = effectiveAt
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid economy config v%d: %w", version, err)
	}
	return &cfg, nil
}

const insertEconomyConfig = `
INSERT INTO economy_config (version, effective_at, payload)
VALUES ($1, $2, $3)
`

// Publish stores a new snapshot. It becomes current once effective_at passes.
func (p *PostgresProvider) Publish(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid economy config: %w", err)
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode economy config: %w", err)
	}
	if _, err := p.db.Exec(ctx, insertEconomyConfig, cfg.Version, cfg.EffectiveAt.UTC(), payload); err != nil {
		return fmt.Errorf("insert economy config: %w", err)
	}
	return nil
}
