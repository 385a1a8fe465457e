package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/gchat-relay/internal/model/chat"
)

var (
	ErrConversationRequired = errors.New("conversation id is required")
	ErrEmptySessionID       = errors.New("backend returned an empty session id")
)

// CreateFunc provisions a backend session and returns its identifier.
type CreateFunc func(ctx context.Context) (string, error)

// Directory maps chat spaces to backend sessions for the life of the process.
type Directory struct {
	mu      sync.RWMutex
	records map[string]chat.SessionRecord
	// pending tracks creates in flight so Remove can stop them from landing.
	pending map[string]*pendingCreate
	flight  singleflight.Group

	idleTTL time.Duration
	now     func() time.Time
}

type pendingCreate struct {
	dropped bool
}

type createResult struct {
	record  chat.SessionRecord
	created bool
}

// Option customises a Directory.
type Option func(*Directory)

// WithIdleTTL makes records that were not used for ttl read as absent.
// Zero keeps records until the conversation is removed.
func WithIdleTTL(ttl time.Duration) Option {
	return func(d *Directory) {
		d.idleTTL = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		d.now = now
	}
}

// NewDirectory returns an empty in-memory directory.
func NewDirectory(opts ...Option) *Directory {
	d := &Directory{
		records: make(map[string]chat.SessionRecord),
		pending: make(map[string]*pendingCreate),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Get returns the live record for a conversation.
func (d *Directory) Get(conversationID string) (chat.SessionRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookupLocked(conversationID)
}

func (d *Directory) lookupLocked(conversationID string) (chat.SessionRecord, bool) {
	record, ok := d.records[conversationID]
	if !ok {
		return chat.SessionRecord{}, false
	}
	if d.expired(record) {
		return chat.SessionRecord{}, false
	}
	return record, true
}

func (d *Directory) expired(record chat.SessionRecord) bool {
	if d.idleTTL <= 0 {
		return false
	}
	return d.now().Sub(record.LastUsedAt) > d.idleTTL
}

// Put stores or replaces the backend session for a conversation.
func (d *Directory) Put(conversationID, backendSessionID string) chat.SessionRecord {
	record := d.newRecord(conversationID, backendSessionID)

	d.mu.Lock()
	d.records[conversationID] = record
	d.mu.Unlock()

	return record
}

func (d *Directory) newRecord(conversationID, backendSessionID string) chat.SessionRecord {
	now := d.now().UTC()
	return chat.SessionRecord{
		ID:               uuid.NewString(),
		ConversationID:   conversationID,
		BackendSessionID: backendSessionID,
		CreatedAt:        now,
		LastUsedAt:       now,
	}
}

// Remove forgets a conversation. A create still in flight for it will not be stored.
func (d *Directory) Remove(conversationID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[conversationID]; ok {
		p.dropped = true
	}

	if _, ok := d.records[conversationID]; !ok {
		return false
	}
	delete(d.records, conversationID)
	return true
}

// Touch marks the record as used now.
func (d *Directory) Touch(conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, ok := d.records[conversationID]
	if !ok {
		return
	}
	record.LastUsedAt = d.now().UTC()
	d.records[conversationID] = record
}

// Len reports the number of stored records, expired ones included.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// GetOrCreate returns the stored record or provisions one through create.
// At most one create runs per conversation; concurrent callers wait for it and
// share its result. The bool is true only for the caller that ran the create.
func (d *Directory) GetOrCreate(ctx context.Context, conversationID string, create CreateFunc) (chat.SessionRecord, bool, error) {
	if conversationID == "" {
		return chat.SessionRecord{}, false, ErrConversationRequired
	}

	if record, ok := d.Get(conversationID); ok {
		return record, false, nil
	}

	// Only the caller whose closure runs owns the create; joiners share its result.
	owner := false
	v, err, _ := d.flight.Do(conversationID, func() (any, error) {
		owner = true
		return d.create(ctx, conversationID, create)
	})
	if err != nil {
		return chat.SessionRecord{}, false, err
	}

	result := v.(createResult)
	if !owner {
		log.Printf("[session] joined in-flight create for conversation=%s", conversationID)
	}
	return result.record, result.created && owner, nil
}

func (d *Directory) create(ctx context.Context, conversationID string, create CreateFunc) (createResult, error) {
	p := &pendingCreate{}

	d.mu.Lock()
	// A flight that finished just before this one started may already have stored a record.
	if record, ok := d.lookupLocked(conversationID); ok {
		d.mu.Unlock()
		return createResult{record: record}, nil
	}
	d.pending[conversationID] = p
	d.mu.Unlock()

	backendID, err := create(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, conversationID)

	if err != nil {
		return createResult{}, err
	}
	if backendID == "" {
		return createResult{}, ErrEmptySessionID
	}

	record := d.newRecord(conversationID, backendID)
	if p.dropped {
		log.Printf("[session] conversation=%s removed while creating session=%s, not storing", conversationID, backendID)
		return createResult{record: record, created: true}, nil
	}

	d.records[conversationID] = record
	log.Printf("[session] stored record=%s conversation=%s backend_session=%s", record.ID, conversationID, backendID)
	return createResult{record: record, created: true}, nil
}
