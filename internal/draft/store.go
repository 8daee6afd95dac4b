// Package draft keeps unsaved form state per user so an edit survives a
// reload until it is submitted.
package draft

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const NewPostKey = "new_post_draft"

func EditPostKey(postID uuid.UUID) string { return "edit_post_draft_" + postID.String() }

type Store interface {
	Get(ctx context.Context, owner uuid.UUID, key string) (payload []byte, ok bool, err error)
	Put(ctx context.Context, owner uuid.UUID, key string, payload []byte) error
	Delete(ctx context.Context, owner uuid.UUID, key string) error
}

type MemoryStore struct {
	mu     sync.Mutex
	drafts map[string][]byte
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{drafts: make(map[string][]byte)} }

func memKey(owner uuid.UUID, key string) string { return owner.String() + "/" + key }

func (m *MemoryStore) Get(_ context.Context, owner uuid.UUID, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.drafts[memKey(owner, key)]
	return append([]byte(nil), p...), ok, nil
}

func (m *MemoryStore) Put(_ context.Context, owner uuid.UUID, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[memKey(owner, key)] = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, owner uuid.UUID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, memKey(owner, key))
	return nil
}

// Record is a persisted draft row.
type Record struct {
	OwnerID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Key       string    `gorm:"type:text;primaryKey"`
	Payload   []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

func (Record) TableName() string { return "drafts" }

// GormStore keeps drafts in the drafts table.
type GormStore struct{ db *gorm.DB }

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (g *GormStore) Migrate(ctx context.Context) error {
	return g.db.WithContext(ctx).AutoMigrate(&Record{})
}

func (g *GormStore) Get(ctx context.Context, owner uuid.UUID, key string) ([]byte, bool, error) {
	var rec Record
	err := g.db.WithContext(ctx).Where("owner_id = ? AND key = ?", owner, key).Limit(1).Find(&rec).Error
	if err != nil {
		return nil, false, err
	}
	if rec.OwnerID == uuid.Nil {
		return nil, false, nil
	}
	return rec.Payload, true, nil
}

func (g *GormStore) Put(ctx context.Context, owner uuid.UUID, key string, payload []byte) error {
	rec := Record{OwnerID: owner, Key: key, Payload: payload, UpdatedAt: time.Now().UTC()}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&rec).Error
}

func (g *GormStore) Delete(ctx context.Context, owner uuid.UUID, key string) error {
	return g.db.WithContext(ctx).Where("owner_id = ? AND key = ?", owner, key).Delete(&Record{}).Error
}

// PurgeOlderThan drops drafts untouched since cutoff.
func (g *GormStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := g.db.WithContext(ctx).Where("updated_at < ?", cutoff).Delete(&Record{})
	return res.RowsAffected, res.Error
}
