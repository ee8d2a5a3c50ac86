package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"launchlock/internal/clock"
	"launchlock/internal/storage"
)

// Uploader performs the real, non-idempotent photo upload.
type Uploader interface {
	UploadPhoto(ctx context.Context, data []byte) (string, error)
}

// UploadResult describes the outcome of PhotoCache.Upload.
type UploadResult struct {
	PhotoID string
	Hash    string
	Cached  bool
}

// PhotoCache deduplicates photo uploads by content hash. The first successful
// upload for a hash wins and its photo id is reused for all identical bytes.
type PhotoCache struct {
	db       *storage.DB
	uploader Uploader
	clock    clock.Clock

	mu    sync.Mutex
	locks map[string]*hashLock
}

type hashLock struct {
	mu   sync.Mutex
	refs int
}

// NewPhotoCache binds the cache to its database and uploader.
func NewPhotoCache(db *storage.DB, uploader Uploader, clk clock.Clock) *PhotoCache {
	return &PhotoCache{
		db:       db,
		uploader: uploader,
		clock:    clock.OrReal(clk),
		locks:    make(map[string]*hashLock),
	}
}

// Upload returns the photo id for data, uploading only when no id is cached
// for its hash. Concurrent uploads of the same bytes in this process are
// serialized so exactly one reaches the uploader.
func (c *PhotoCache) Upload(ctx context.Context, data []byte) (UploadResult, error) {
	if len(data) == 0 {
		return UploadResult{}, errors.New("photo data is empty")
	}
	hash := HashPhoto(data)

	if id, ok, err := c.Lookup(ctx, hash); err != nil {
		return UploadResult{}, err
	} else if ok {
		return UploadResult{PhotoID: id, Hash: hash, Cached: true}, nil
	}

	unlock := c.lock(hash)
	defer unlock()

	if id, ok, err := c.Lookup(ctx, hash); err != nil {
		return UploadResult{}, err
	} else if ok {
		return UploadResult{PhotoID: id, Hash: hash, Cached: true}, nil
	}

	photoID, err := c.uploader.UploadPhoto(ctx, data)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload photo: %w", err)
	}
	if photoID == "" {
		return UploadResult{}, errors.New("upload photo: marketplace returned empty photo id")
	}

	// Persist before returning; a concurrent writer in another process may
	// have won, in which case its id is authoritative.
	if _, err := c.db.Exec(context.WithoutCancel(ctx),
		`INSERT INTO photo_hashes (hash, photo_id, created_at) VALUES (?, ?, ?) ON CONFLICT(hash) DO NOTHING`,
		hash, photoID, storage.FormatTime(c.clock.Now()),
	); err != nil {
		return UploadResult{}, fmt.Errorf("persist photo hash: %w", err)
	}
	stored, ok, err := c.Lookup(context.WithoutCancel(ctx), hash)
	if err != nil {
		return UploadResult{}, err
	}
	if ok && stored != photoID {
		return UploadResult{PhotoID: stored, Hash: hash, Cached: true}, nil
	}
	return UploadResult{PhotoID: photoID, Hash: hash}, nil
}

// Lookup returns the cached photo id for a hash.
func (c *PhotoCache) Lookup(ctx context.Context, hash string) (string, bool, error) {
	var id string
	err := c.db.QueryRowScan(ctx, `SELECT photo_id FROM photo_hashes WHERE hash = ?`, []any{hash}, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup photo hash: %w", err)
	}
	return id, true, nil
}

func (c *PhotoCache) lock(hash string) func() {
	c.mu.Lock()
	l, ok := c.locks[hash]
	if !ok {
		l = &hashLock{}
		c.locks[hash] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, hash)
		}
		c.mu.Unlock()
	}
}
