package listings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"launchlock/internal/clock"
	"launchlock/internal/services"
	"launchlock/internal/storage"
)

const listingColumns = `id, source_product_id, command_id, external_id, state, desired_state, actual_state,
    desired_price, actual_price, payload_json, payload_hash, snapshot_hash, dry_run, lifecycle,
    block_code, block_reason, trust_score, approved_by, published_at, created_at, updated_at`

// Store persists listings and drafts.
type Store struct {
	db    *storage.DB
	clock clock.Clock
}

// NewStore binds a Store to an open database.
func NewStore(db *storage.DB, clk clock.Clock) *Store {
	return &Store{db: db, clock: clock.OrReal(clk)}
}

// SaveDraft creates or overwrites the draft owned by d.CommandID.
func (s *Store) SaveDraft(ctx context.Context, d Draft) error {
	validation, err := encodeValidation(d.Validation)
	if err != nil {
		return err
	}
	now := storage.FormatTime(s.clock.Now())
	if _, err := s.db.Exec(ctx,
		`INSERT INTO listing_drafts (command_id, source_product_id, payload_json, payload_hash, snapshot_hash, validation_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(command_id) DO UPDATE SET
             source_product_id = excluded.source_product_id,
             payload_json = excluded.payload_json,
             payload_hash = excluded.payload_hash,
             snapshot_hash = excluded.snapshot_hash,
             validation_json = excluded.validation_json,
             updated_at = excluded.updated_at`,
		d.CommandID, d.SourceProductID, nullable(d.PayloadJSON), nullable(d.PayloadHash), nullable(d.SnapshotHash),
		validation, now, now,
	); err != nil {
		return fmt.Errorf("save listing draft: %w", err)
	}
	return nil
}

// GetDraft returns the draft of a publish command.
func (s *Store) GetDraft(ctx context.Context, commandID string) (*Draft, error) {
	var (
		d                                  Draft
		payload, payloadHash, snapshotHash sql.NullString
		validation                         sql.NullString
		created, updated                   string
	)
	err := s.db.QueryRowScan(ctx,
		`SELECT command_id, source_product_id, payload_json, payload_hash, snapshot_hash, validation_json, created_at, updated_at
         FROM listing_drafts WHERE command_id = ?`,
		[]any{commandID},
		&d.CommandID, &d.SourceProductID, &payload, &payloadHash, &snapshotHash, &validation, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, commandID)
	}
	if err != nil {
		return nil, fmt.Errorf("get listing draft: %w", err)
	}
	d.PayloadJSON = payload.String
	d.PayloadHash = payloadHash.String
	d.SnapshotHash = snapshotHash.String
	if validation.Valid && validation.String != "" {
		d.Validation = &Validation{}
		if err := json.Unmarshal([]byte(validation.String), d.Validation); err != nil {
			return nil, fmt.Errorf("decode draft validation: %w", err)
		}
	}
	d.CreatedAt, _ = storage.ParseTime(created)
	d.UpdatedAt, _ = storage.ParseTime(updated)
	return &d, nil
}

// SaveDryRun writes the placeholder listing of a dry run. Re-running the same
// command overwrites the payload but keeps the listing and synthetic ids. An
// approved dry run is left untouched.
func (s *Store) SaveDryRun(ctx context.Context, rec Record) (*Listing, error) {
	now := storage.FormatTime(s.clock.Now())
	if _, err := s.db.Exec(ctx,
		`INSERT INTO listings (id, source_product_id, command_id, external_id, state, desired_state, actual_state,
             desired_price, payload_json, payload_hash, snapshot_hash, dry_run, trust_score, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, '', '', ?, ?, ?, ?, 1, ?, ?, ?)
         ON CONFLICT(command_id) DO UPDATE SET
             state = excluded.state,
             desired_price = excluded.desired_price,
             payload_json = excluded.payload_json,
             payload_hash = excluded.payload_hash,
             snapshot_hash = excluded.snapshot_hash,
             trust_score = excluded.trust_score,
             block_code = NULL,
             block_reason = NULL,
             external_id = COALESCE(listings.external_id, excluded.external_id),
             updated_at = excluded.updated_at
         WHERE listings.state <> ?`,
		uuid.NewString(), rec.SourceProductID, rec.CommandID, DryRunPrefix+uuid.NewString(), string(StateDryRun),
		rec.DesiredPrice, nullable(rec.PayloadJSON), nullable(rec.PayloadHash), nullable(rec.SnapshotHash),
		rec.TrustScore, now, now, string(StateApproved),
	); err != nil {
		return nil, fmt.Errorf("save dry-run listing: %w", err)
	}
	return s.GetByCommand(ctx, rec.CommandID)
}

// RecordBlocked creates or overwrites the listing of a refused publish
// command with its top reason. A row that already has a real external id is
// never downgraded.
func (s *Store) RecordBlocked(ctx context.Context, b Block) (*Listing, error) {
	now := storage.FormatTime(s.clock.Now())
	dryRun := 0
	if b.DryRun {
		dryRun = 1
	}
	if _, err := s.db.Exec(ctx,
		`INSERT INTO listings (id, source_product_id, command_id, state, dry_run, block_code, block_reason, trust_score, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(command_id) DO UPDATE SET
             state = excluded.state,
             block_code = excluded.block_code,
             block_reason = excluded.block_reason,
             trust_score = CASE WHEN excluded.trust_score > 0 THEN excluded.trust_score ELSE listings.trust_score END,
             updated_at = excluded.updated_at
         WHERE listings.external_id IS NULL OR listings.dry_run = 1`,
		uuid.NewString(), b.SourceProductID, b.CommandID, string(StateBlocked), dryRun,
		b.Code, b.Reason, b.TrustScore, now, now,
	); err != nil {
		return nil, fmt.Errorf("record blocked listing: %w", err)
	}
	return s.GetByCommand(ctx, b.CommandID)
}

// BeginPublish writes the intent row for a real publish. When the command
// already owns a row it is returned unchanged with created=false, except that
// a blocked row without an external id is reset to publishing.
//
// In the same transaction it refuses the write with ErrSourceListed when
// another command owns a publishing or live listing of the source product,
// and with ErrDryRunConsumed when rec.ApprovedFromDryRun was already approved
// by a different command. The dry-run listing is moved to approved and bound
// to rec.CommandID so retries of the same command pass again.
func (s *Store) BeginPublish(ctx context.Context, rec Record) (*Listing, bool, error) {
	now := storage.FormatTime(s.clock.Now())
	var created bool
	err := s.db.Tx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT command_id FROM listings
             WHERE source_product_id = ? AND dry_run = 0 AND state IN (?, ?) AND command_id <> ?
             LIMIT 1`,
			rec.SourceProductID, string(StatePublishing), string(StateLive), rec.CommandID,
		).Scan(&owner)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s owned by command %s", ErrSourceListed, rec.SourceProductID, owner)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		if rec.ApprovedFromDryRun != "" {
			if err := consumeDryRun(ctx, tx, rec.ApprovedFromDryRun, rec.CommandID, now); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO listings (id, source_product_id, command_id, state, desired_state, desired_price,
                 payload_json, payload_hash, snapshot_hash, dry_run, trust_score, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
             ON CONFLICT(command_id) DO NOTHING`,
			uuid.NewString(), rec.SourceProductID, rec.CommandID, string(StatePublishing), string(StateLive),
			rec.DesiredPrice, nullable(rec.PayloadJSON), nullable(rec.PayloadHash), nullable(rec.SnapshotHash),
			rec.TrustScore, now, now,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = affected == 1
		if created {
			return nil
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE listings SET state = ?, desired_state = ?, desired_price = ?, payload_json = ?, payload_hash = ?,
                 snapshot_hash = ?, trust_score = ?, block_code = NULL, block_reason = NULL, updated_at = ?
             WHERE command_id = ? AND state = ? AND external_id IS NULL`,
			string(StatePublishing), string(StateLive), rec.DesiredPrice, nullable(rec.PayloadJSON),
			nullable(rec.PayloadHash), nullable(rec.SnapshotHash), rec.TrustScore, now,
			rec.CommandID, string(StateBlocked),
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		created = affected == 1
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("begin publish: %w", err)
	}
	listing, err := s.GetByCommand(ctx, rec.CommandID)
	if err != nil {
		return nil, false, err
	}
	return listing, created, nil
}

func consumeDryRun(ctx context.Context, tx *sql.Tx, dryRunID, commandID, now string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE listings SET state = ?, approved_by = ?, updated_at = ?
         WHERE command_id = ? AND dry_run = 1
           AND (state = ? OR (state = ? AND approved_by = ?))`,
		string(StateApproved), commandID, now,
		dryRunID, string(StateDryRun), string(StateApproved), commandID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrDryRunConsumed, dryRunID)
	}
	return nil
}

// MarkPublished records the marketplace id returned by a successful create.
func (s *Store) MarkPublished(ctx context.Context, id, externalID string) error {
	now := storage.FormatTime(s.clock.Now())
	return s.update(ctx, "mark published",
		`UPDATE listings SET external_id = ?, state = ?, desired_state = ?, published_at = ?, updated_at = ? WHERE id = ?`,
		externalID, string(StateLive), string(StateLive), now, now, id,
	)
}

// RecordReadBack stores what the marketplace reports for a listing.
func (s *Store) RecordReadBack(ctx context.Context, id string, actualState State, actualPrice float64) error {
	return s.update(ctx, "record read-back",
		`UPDATE listings SET actual_state = ?, actual_price = ?, updated_at = ? WHERE id = ?`,
		string(actualState), actualPrice, storage.FormatTime(s.clock.Now()), id,
	)
}

// SetDesiredPrice records the price an update command is about to apply.
func (s *Store) SetDesiredPrice(ctx context.Context, id string, price float64) error {
	return s.update(ctx, "set desired price",
		`UPDATE listings SET desired_price = ?, updated_at = ? WHERE id = ?`,
		price, storage.FormatTime(s.clock.Now()), id,
	)
}

// MarkBlocked moves an existing listing row to blocked with a reason.
func (s *Store) MarkBlocked(ctx context.Context, id, code, reason string) error {
	return s.update(ctx, "mark blocked",
		`UPDATE listings SET state = ?, block_code = ?, block_reason = ?, updated_at = ? WHERE id = ?`,
		string(StateBlocked), code, reason, storage.FormatTime(s.clock.Now()), id,
	)
}

// MarkWithdrawn records a completed withdrawal.
func (s *Store) MarkWithdrawn(ctx context.Context, id, reason string) error {
	return s.update(ctx, "mark withdrawn",
		`UPDATE listings SET state = ?, desired_state = ?, actual_state = ?, block_reason = ?, updated_at = ? WHERE id = ?`,
		string(StateWithdrawn), string(StateWithdrawn), string(StateWithdrawn), nullable(reason),
		storage.FormatTime(s.clock.Now()), id,
	)
}

// SetLifecycle stores the strategy classification of a listing.
func (s *Store) SetLifecycle(ctx context.Context, id string, lifecycle Lifecycle) error {
	if _, err := ParseLifecycle(string(lifecycle)); err != nil {
		return fmt.Errorf("%w: %q", err, lifecycle)
	}
	return s.update(ctx, "set lifecycle",
		`UPDATE listings SET lifecycle = ?, updated_at = ? WHERE id = ?`,
		string(lifecycle), storage.FormatTime(s.clock.Now()), id,
	)
}

// ResolveIntent settles a publishing row whose create outcome is unknown.
// With an external id the listing is recorded as live; without one it is
// marked blocked so the owning command can be retried.
func (s *Store) ResolveIntent(ctx context.Context, commandID, externalID string) (*Listing, error) {
	listing, err := s.GetByCommand(ctx, commandID)
	if err != nil {
		return nil, err
	}
	if listing.State != StatePublishing || listing.ExternalID != "" {
		return nil, fmt.Errorf("listing %s is %s, not an unresolved publish", listing.ID, listing.State)
	}
	if externalID = strings.TrimSpace(externalID); externalID != "" {
		err = s.MarkPublished(ctx, listing.ID, externalID)
	} else {
		err = s.MarkBlocked(ctx, listing.ID, string(services.CodePublishOutcomeUnknown), "operator confirmed listing was not created")
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, listing.ID)
}

// Get fetches a listing by id.
func (s *Store) Get(ctx context.Context, id string) (*Listing, error) {
	return s.getBy(ctx, "id", id)
}

// GetByCommand fetches the listing owned by a publish command.
func (s *Store) GetByCommand(ctx context.Context, commandID string) (*Listing, error) {
	return s.getBy(ctx, "command_id", commandID)
}

// List returns listings in creation order.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Listing, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.States) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.States)), ",")
		clauses = append(clauses, "state IN ("+placeholders+")")
		for _, state := range filter.States {
			args = append(args, string(state))
		}
	}
	if filter.SourceProductID != "" {
		clauses = append(clauses, "source_product_id = ?")
		args = append(args, filter.SourceProductID)
	}
	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := s.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []*Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, listing)
	}
	return out, rows.Err()
}

// CountPublishedSince counts real (non dry-run) publishes at or after since.
// Listings withdrawn later still count.
func (s *Store) CountPublishedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowScan(ctx,
		`SELECT COUNT(1) FROM listings WHERE dry_run = 0 AND published_at IS NOT NULL AND published_at >= ?`,
		[]any{storage.FormatTime(since)}, &n,
	); err != nil {
		return 0, fmt.Errorf("count publishes: %w", err)
	}
	return n, nil
}

// PublishTimesSince returns real publish times at or after since, oldest first.
func (s *Store) PublishTimesSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	rows, err := s.db.SQL().QueryContext(ctx,
		`SELECT published_at FROM listings WHERE dry_run = 0 AND published_at IS NOT NULL AND published_at >= ? ORDER BY published_at`,
		storage.FormatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("list publish times: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		t, err := storage.ParseTime(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) getBy(ctx context.Context, column, value string) (*Listing, error) {
	row := s.db.SQL().QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE `+column+` = ?`, value)
	listing, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, value)
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return listing, nil
}

func (s *Store) update(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func scanListing(scanner interface{ Scan(dest ...any) error }) (*Listing, error) {
	var (
		l                                  Listing
		externalID, payload, payloadHash   sql.NullString
		snapshotHash, blockCode, blockText sql.NullString
		approvedBy                         sql.NullString
		state, desired, actual, lifecycle  string
		dryRun                             int
		published                          sql.NullString
		created, updated                   string
	)
	if err := scanner.Scan(
		&l.ID, &l.SourceProductID, &l.CommandID, &externalID, &state, &desired, &actual,
		&l.DesiredPrice, &l.ActualPrice, &payload, &payloadHash, &snapshotHash, &dryRun, &lifecycle,
		&blockCode, &blockText, &l.TrustScore, &approvedBy, &published, &created, &updated,
	); err != nil {
		return nil, err
	}
	l.ExternalID = externalID.String
	l.State = State(state)
	l.DesiredState = State(desired)
	l.ActualState = State(actual)
	l.PayloadJSON = payload.String
	l.PayloadHash = payloadHash.String
	l.SnapshotHash = snapshotHash.String
	l.DryRun = dryRun != 0
	l.Lifecycle = Lifecycle(lifecycle)
	l.BlockCode = blockCode.String
	l.BlockReason = blockText.String
	l.ApprovedBy = approvedBy.String
	l.PublishedAt, _ = storage.ParseNullTime(published)
	l.CreatedAt, _ = storage.ParseTime(created)
	l.UpdatedAt, _ = storage.ParseTime(updated)
	return &l, nil
}

func encodeValidation(v *Validation) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode draft validation: %w", err)
	}
	return string(data), nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
