package journal

import (
	"context"
	"fmt"

	"github.com/gregtusar/thstrader/pkg/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS order_journal (
	id                BIGSERIAL PRIMARY KEY,
	action            TEXT        NOT NULL,
	code              TEXT        NOT NULL,
	name              TEXT        NOT NULL DEFAULT '',
	price             DOUBLE PRECISION NOT NULL DEFAULT 0,
	volume            INTEGER     NOT NULL DEFAULT 0,
	broker_entrust_id TEXT        NOT NULL DEFAULT '',
	ok                BOOLEAN     NOT NULL,
	message           TEXT        NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type PostgresJournal struct {
	DB *pgxpool.Pool
}

// NewPostgresJournal connects to dsn and makes sure the journal table exists.
func NewPostgresJournal(ctx context.Context, dsn string) (*PostgresJournal, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect journal db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal db: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create journal table: %w", err)
	}
	return &PostgresJournal{DB: pool}, nil
}

func (p *PostgresJournal) Record(ctx context.Context, e models.JournalEntry) error {
	_, err := p.DB.Exec(ctx, `
		INSERT INTO order_journal (action, code, name, price, volume, broker_entrust_id, ok, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, string(e.Action), e.Code, e.Name, e.Price, e.Volume, e.BrokerEntrustID, e.OK, e.Message, e.CreatedAt)
	return err
}

func (p *PostgresJournal) List(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.DB.Query(ctx, `
		SELECT id, action, code, name, price, volume, broker_entrust_id, ok, message, created_at
		FROM order_journal ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.JournalEntry, 0)
	for rows.Next() {
		var e models.JournalEntry
		var action string
		if err := rows.Scan(&e.ID, &action, &e.Code, &e.Name, &e.Price, &e.Volume, &e.BrokerEntrustID, &e.OK, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = models.JournalAction(action)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresJournal) Close() {
	p.DB.Close()
}
