// Package postgres is the database-backed Repository: one JSONB document per
// aggregate, read-modify-write under SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"boltline/backend/internal/cart"
	"boltline/backend/internal/domain"
	"boltline/backend/internal/purchase"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS carts (
			id uuid PRIMARY KEY,
			doc jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS purchases (
			id uuid PRIMARY KEY,
			doc jsonb NOT NULL,
			date_completion timestamptz NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS purchases_date_completion_idx
			ON purchases (date_completion);
	`)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) InsertCart(ctx context.Context, c cart.Cart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", c.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO carts (id, doc)
		VALUES ($1,$2)
	`, c.ID, raw)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: cart %s already exists", domain.ErrConflict, c.ID)
		}
		return err
	}
	return nil
}

func (s *Store) CartByID(ctx context.Context, id uuid.UUID) (cart.Cart, error) {
	var c cart.Cart
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM carts WHERE id = $1
	`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, fmt.Errorf("%w: cart %s", domain.ErrNotFound, id)
		}
		return c, err
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("decode cart %s: %w", id, err)
	}
	return c, nil
}

func (s *Store) UpdateCart(ctx context.Context, id uuid.UUID, fn func(*cart.Cart) error) (cart.Cart, error) {
	var c cart.Cart

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return c, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	err = tx.QueryRowContext(ctx, `
		SELECT doc FROM carts WHERE id = $1 FOR UPDATE
	`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, fmt.Errorf("%w: cart %s", domain.ErrNotFound, id)
		}
		return c, err
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("decode cart %s: %w", id, err)
	}

	if err := fn(&c); err != nil {
		return cart.Cart{}, err
	}

	updated, err := json.Marshal(c)
	if err != nil {
		return cart.Cart{}, fmt.Errorf("encode cart %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE carts SET doc = $2, updated_at = now() WHERE id = $1
	`, id, updated); err != nil {
		return cart.Cart{}, err
	}
	if err := tx.Commit(); err != nil {
		return cart.Cart{}, err
	}
	return c, nil
}

func (s *Store) RemoveCart(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: cart %s", domain.ErrNotFound, id)
	}
	return nil
}

func (s *Store) CartIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.listIDs(ctx, "carts")
}

func (s *Store) listIDs(ctx context.Context, table string) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id FROM %s ORDER BY id
	`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0, 64)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) CartsByIDs(ctx context.Context, ids []uuid.UUID) ([]cart.Cart, error) {
	out := make([]cart.Cart, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc FROM carts WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]cart.Cart, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var c cart.Cart
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode cart %s: %w", id, err)
		}
		byID[id] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Input order, missing ids skipped.
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) InsertPurchase(ctx context.Context, p purchase.Purchase) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode purchase %s: %w", p.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO purchases (id, doc, date_completion)
		VALUES ($1,$2,$3)
	`, p.ID, raw, p.DateCompletion)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: purchase %s already exists", domain.ErrConflict, p.ID)
		}
		return err
	}
	return nil
}

func (s *Store) PurchaseByID(ctx context.Context, id uuid.UUID) (purchase.Purchase, error) {
	var p purchase.Purchase
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM purchases WHERE id = $1
	`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, fmt.Errorf("%w: purchase %s", domain.ErrNotFound, id)
		}
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode purchase %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) UpdatePurchase(ctx context.Context, id uuid.UUID, fn func(*purchase.Purchase) error) (purchase.Purchase, error) {
	var p purchase.Purchase

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return p, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	err = tx.QueryRowContext(ctx, `
		SELECT doc FROM purchases WHERE id = $1 FOR UPDATE
	`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, fmt.Errorf("%w: purchase %s", domain.ErrNotFound, id)
		}
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode purchase %s: %w", id, err)
	}

	if err := fn(&p); err != nil {
		return purchase.Purchase{}, err
	}

	updated, err := json.Marshal(p)
	if err != nil {
		return purchase.Purchase{}, fmt.Errorf("encode purchase %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE purchases SET doc = $2, updated_at = now() WHERE id = $1
	`, id, updated); err != nil {
		return purchase.Purchase{}, err
	}
	if err := tx.Commit(); err != nil {
		return purchase.Purchase{}, err
	}
	return p, nil
}

func (s *Store) PurchaseIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.listIDs(ctx, "purchases")
}

func (s *Store) PurchasesByIDs(ctx context.Context, ids []uuid.UUID) ([]purchase.Purchase, error) {
	out := make([]purchase.Purchase, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc FROM purchases WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]purchase.Purchase, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var p purchase.Purchase
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode purchase %s: %w", id, err)
		}
		byID[id] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) PurchasesByInterval(ctx context.Context, from, to time.Time) ([]purchase.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc
		FROM purchases
		WHERE date_completion >= $1 AND date_completion < $2
		ORDER BY date_completion ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]purchase.Purchase, 0, 64)
	for rows.Next() {
		var id uuid.UUID
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var p purchase.Purchase
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode purchase %s: %w", id, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
