package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"launchlock/internal/clock"
	"launchlock/internal/idempotency"
	"launchlock/internal/storage"
)

const productColumns = `id, supplier, source_ref, title, raw_description, specs_json, cost, stock,
    category, category_id, images_json, shipping_json, snapshot_hash, refreshed_at, created_at, updated_at`

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func productValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Store reads and writes source products.
type Store struct {
	db    *storage.DB
	clock clock.Clock
}

// NewStore binds a Store to an open database.
func NewStore(db *storage.DB, clk clock.Clock) *Store {
	return &Store{db: db, clock: clock.OrReal(clk)}
}

// SnapshotHash computes the content hash of a product.
func SnapshotHash(p Product) (string, error) {
	return idempotency.Fingerprint(p.contentFields())
}

// Upsert stores p, recomputing its snapshot hash. A zero RefreshedAt is set
// to the current time.
func (s *Store) Upsert(ctx context.Context, p Product) (*Product, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.Supplier = strings.TrimSpace(p.Supplier)
	if err := productValidator().Struct(p); err != nil {
		return nil, fmt.Errorf("invalid source product %q: %w", p.ID, err)
	}
	hash, err := SnapshotHash(p)
	if err != nil {
		return nil, fmt.Errorf("snapshot hash: %w", err)
	}
	p.SnapshotHash = hash

	now := s.clock.Now().UTC()
	if p.RefreshedAt.IsZero() {
		p.RefreshedAt = now
	}
	specs, err := marshalOptional(p.Specs, len(p.Specs) == 0)
	if err != nil {
		return nil, err
	}
	images, err := marshalOptional(p.Images, len(p.Images) == 0)
	if err != nil {
		return nil, err
	}
	shipping, err := marshalOptional(p.Shipping, len(p.Shipping) == 0)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO source_products (`+productColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             supplier = excluded.supplier,
             source_ref = excluded.source_ref,
             title = excluded.title,
             raw_description = excluded.raw_description,
             specs_json = excluded.specs_json,
             cost = excluded.cost,
             stock = excluded.stock,
             category = excluded.category,
             category_id = excluded.category_id,
             images_json = excluded.images_json,
             shipping_json = excluded.shipping_json,
             snapshot_hash = excluded.snapshot_hash,
             refreshed_at = excluded.refreshed_at,
             updated_at = excluded.updated_at`,
		p.ID, p.Supplier, p.SourceRef, p.Title, p.RawDescription, specs, p.Cost, p.Stock,
		p.Category, p.CategoryID, images, shipping, p.SnapshotHash,
		storage.FormatTime(p.RefreshedAt), storage.FormatTime(now), storage.FormatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert source product: %w", err)
	}
	return s.Get(ctx, p.ID)
}

// Get fetches a product by id.
func (s *Store) Get(ctx context.Context, id string) (*Product, error) {
	row := s.db.SQL().QueryRowContext(ctx, `SELECT `+productColumns+` FROM source_products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get source product: %w", err)
	}
	return p, nil
}

// List returns products ordered by id, optionally restricted to a supplier.
func (s *Store) List(ctx context.Context, supplier string, limit int) ([]*Product, error) {
	query := `SELECT ` + productColumns + ` FROM source_products`
	var args []any
	if supplier = strings.TrimSpace(supplier); supplier != "" {
		query += ` WHERE supplier = ?`
		args = append(args, supplier)
	}
	query += ` ORDER BY id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list source products: %w", err)
	}
	defer rows.Close()

	var out []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Import upserts every product in a JSON array. It stops at the first
// invalid record and reports how many were stored before it.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	var products []Product
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&products); err != nil {
		return 0, fmt.Errorf("decode source products: %w", err)
	}
	for i, p := range products {
		if _, err := s.Upsert(ctx, p); err != nil {
			return i, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return len(products), nil
}

func scanProduct(scanner interface{ Scan(dest ...any) error }) (*Product, error) {
	var (
		p                           Product
		specs, images, shipping     sql.NullString
		refreshed, created, updated string
	)
	if err := scanner.Scan(
		&p.ID, &p.Supplier, &p.SourceRef, &p.Title, &p.RawDescription, &specs, &p.Cost, &p.Stock,
		&p.Category, &p.CategoryID, &images, &shipping, &p.SnapshotHash, &refreshed, &created, &updated,
	); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(specs, &p.Specs); err != nil {
		return nil, fmt.Errorf("decode specs: %w", err)
	}
	if err := unmarshalOptional(images, &p.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	if err := unmarshalOptional(shipping, &p.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping: %w", err)
	}
	var err error
	if p.RefreshedAt, err = storage.ParseTime(refreshed); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = storage.ParseTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = storage.ParseTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

func marshalOptional(v any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode source product field: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalOptional(value sql.NullString, dest any) error {
	if !value.Valid || value.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(value.String), dest)
}
