package r2client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// LockInfo is the JSON body of a lock object.
type LockInfo struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DistributedLock is a lease held as an R2 object. Creation uses
// If-None-Match and renewal uses If-Match, so two holders cannot both
// succeed. An expired lease may be taken over by anyone.
type DistributedLock struct {
	client  *Client
	key     string
	ttl     time.Duration
	ownerID string
	etag    string // of the lock object we wrote last
	now     func() time.Time
}

// NewDistributedLock returns an unheld lock on key with a random owner ID.
func NewDistributedLock(client *Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client:  client,
		key:     key,
		ttl:     ttl,
		ownerID: uuid.NewString(),
		now:     time.Now,
	}
}

// OwnerID returns this holder's identity.
func (l *DistributedLock) OwnerID() string {
	return l.ownerID
}

// Acquire takes the lock. It reports false when another live holder has it.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	body, err := l.lease()
	if err != nil {
		return false, err
	}
	created, tag, err := l.client.PutObjectIfNotExists(ctx, l.key, bytes.NewReader(body), "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if created {
		l.etag = tag
		return true, nil
	}

	expired, oldTag, err := l.checkExpired(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire lock: check expired: %w", err)
	}
	if !expired {
		return false, nil
	}

	// Take over the stale lease; losing the race to another taker is fine.
	var ok bool
	if oldTag == "" {
		ok, tag, err = l.client.PutObjectIfNotExists(ctx, l.key, bytes.NewReader(body), "application/json")
	} else {
		ok, tag, err = l.client.PutObjectIfMatch(ctx, l.key, bytes.NewReader(body), oldTag, "application/json")
	}
	if err != nil {
		return false, fmt.Errorf("acquire lock: take over: %w", err)
	}
	if ok {
		l.etag = tag
	}
	return ok, nil
}

// Renew extends the lease. It reports false when the lock was lost.
func (l *DistributedLock) Renew(ctx context.Context) (bool, error) {
	if l.etag == "" {
		return false, nil
	}
	body, err := l.lease()
	if err != nil {
		return false, err
	}
	ok, tag, err := l.client.PutObjectIfMatch(ctx, l.key, bytes.NewReader(body), l.etag, "application/json")
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	if !ok {
		l.etag = ""
		return false, nil
	}
	l.etag = tag
	return true, nil
}

// Release deletes the lock object if this holder still owns it.
func (l *DistributedLock) Release(ctx context.Context) error {
	defer func() { l.etag = "" }()

	info, _, err := l.read(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if info != nil && info.Owner != l.ownerID {
		return nil
	}
	return l.client.DeleteObject(ctx, l.key)
}

func (l *DistributedLock) lease() ([]byte, error) {
	data, err := json.Marshal(LockInfo{Owner: l.ownerID, ExpiresAt: l.now().Add(l.ttl)})
	if err != nil {
		return nil, fmt.Errorf("encode lock: %w", err)
	}
	return data, nil
}

// checkExpired reports whether the current lease is stale, with the ETag to
// take it over. A vanished or unreadable lock counts as expired.
func (l *DistributedLock) checkExpired(ctx context.Context) (bool, string, error) {
	info, tag, err := l.read(ctx)
	if errors.Is(err, ErrNotFound) {
		return true, "", nil
	}
	if err != nil {
		return false, "", err
	}
	if info == nil {
		return true, tag, nil
	}
	return l.now().After(info.ExpiresAt), tag, nil
}

// read returns the lock body, or nil info when the body is not valid JSON.
func (l *DistributedLock) read(ctx context.Context) (*LockInfo, string, error) {
	body, tag, err := l.client.Download(ctx, l.key)
	if err != nil {
		return nil, "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read lock: %w", err)
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, tag, nil
	}
	return &info, tag, nil
}
