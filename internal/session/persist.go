package session

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Fixed names the session is stored under.
const (
	TokenKey     = "token"
	TokenTypeKey = "token_type"
	UserKey      = "user"
)

// Persister is the client-side key/value storage backing the session.
type Persister interface {
	Load() (map[string]string, error)

	// Save upserts all entries atomically.
	Save(entries map[string]string) error

	Delete(keys ...string) error
}

type MemoryPersister struct {
	mu      sync.Mutex
	entries map[string]string
}

var _ Persister = (*MemoryPersister)(nil)

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{entries: make(map[string]string)}
}

func (m *MemoryPersister) Load() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.entries), nil
}

func (m *MemoryPersister) Save(entries map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.Copy(m.entries, entries)
	return nil
}

func (m *MemoryPersister) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

type LocalEntry struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "1",
			Migrate: func(txn *gorm.DB) error {
				return txn.AutoMigrate(&LocalEntry{})
			},
			Rollback: func(txn *gorm.DB) error {
				return txn.Migrator().DropTable(&LocalEntry{})
			},
		},
	})

	migrator.InitSchema(func(txn *gorm.DB) error {
		log.Println("clean state database detected, initializing schema")
		return txn.AutoMigrate(&LocalEntry{})
	})

	return migrator
}

// OpenDatabase opens (creating if needed) the sqlite file holding local state.
func OpenDatabase(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("error creating state directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("error opening state database %s: %w", path, err)
	}

	if err := GetMigrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("error migrating state database: %w", err)
	}

	return db, nil
}

type DBPersister struct {
	db *gorm.DB
}

var _ Persister = (*DBPersister)(nil)

func NewDBPersister(db *gorm.DB) *DBPersister {
	return &DBPersister{db: db}
}

func (p *DBPersister) Load() (map[string]string, error) {
	var rows []LocalEntry
	if err := p.db.Find(&rows).Error; err != nil {
		slog.Error("error reading local state", "error", err)
		return nil, fmt.Errorf("error reading local state: %w", err)
	}

	entries := make(map[string]string, len(rows))
	for _, row := range rows {
		entries[row.Name] = row.Value
	}
	return entries, nil
}

func (p *DBPersister) Save(entries map[string]string) error {
	now := time.Now().UTC()
	return p.db.Transaction(func(txn *gorm.DB) error {
		for name, value := range entries {
			if err := txn.Save(&LocalEntry{Name: name, Value: value, UpdatedAt: now}).Error; err != nil {
				return fmt.Errorf("error saving local entry %s: %w", name, err)
			}
		}
		return nil
	})
}

func (p *DBPersister) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := p.db.Where("name IN ?", keys).Delete(&LocalEntry{}).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("error deleting local entries: %w", err)
	}
	return nil
}
