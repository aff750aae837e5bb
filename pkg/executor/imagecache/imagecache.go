// Package imagecache persists resolved container image digests when
// docker execution is enabled — the only durable state in the system
// (spec §6.6). Everything else (sessions, queues, jitter buffers,
// registries) stays in memory.
package imagecache

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entry records one resolved image reference.
type Entry struct {
	ID        uint `gorm:"primarykey"`
	NodeType  string `gorm:"index"`
	Reference string
	Digest    string `gorm:"uniqueIndex"`
	CachedAt  time.Time
}

// Cache wraps a sqlite-backed gorm.DB scoped to image cache entries.
type Cache struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the sqlite database at path.
func Open(path string) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Lookup returns the cached entry for a digest, if present.
func (c *Cache) Lookup(digest string) (*Entry, error) {
	var e Entry
	err := c.db.Where("digest = ?", digest).First(&e).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Put inserts or updates a resolved image entry.
func (c *Cache) Put(nodeType, reference, digest string) error {
	entry := Entry{NodeType: nodeType, Reference: reference, Digest: digest, CachedAt: time.Now()}
	return c.db.Where(Entry{Digest: digest}).Assign(entry).FirstOrCreate(&entry).Error
}

// Close releases the underlying sqlite connection.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
