package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// BoltProvider serves lookups from a bbolt file with one bucket per table.
// Values are stored as JSON.
type BoltProvider struct {
	db *bolt.DB
}

// NewBoltProvider opens the database at path, waiting up to timeout for the
// file lock.
func NewBoltProvider(path string, timeout time.Duration) (*BoltProvider, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	return &BoltProvider{db: db}, nil
}

// Lookup implements eval.LookupProvider. A missing bucket is a miss.
func (p *BoltProvider) Lookup(_ context.Context, table, key string) (ast.Value, bool, error) {
	var (
		v     ast.Value
		found bool
	)
	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &v)
	})
	if err != nil {
		return ast.Null(), false, fmt.Errorf("lookup %s[%s]: %w", table, key, err)
	}
	return v, found, nil
}

// Put inserts or replaces a row, creating the table bucket on demand.
func (p *BoltProvider) Put(table, key string, v ast.Value) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode lookup value: %w", err)
	}
	return p.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(table))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Import stores every row of tables in one transaction.
func (p *BoltProvider) Import(tables map[string]map[string]ast.Value) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		for table, rows := range tables {
			b, err := tx.CreateBucketIfNotExists([]byte(table))
			if err != nil {
				return err
			}
			for key, v := range rows {
				data, err := json.Marshal(v)
				if err != nil {
					return fmt.Errorf("encode %s[%s]: %w", table, key, err)
				}
				if err := b.Put([]byte(key), data); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// DropTable deletes a table bucket.
func (p *BoltProvider) DropTable(table string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(table))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

// Tables returns the table names in key order.
func (p *BoltProvider) Tables() ([]string, error) {
	var names []string
	err := p.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

// Close closes the database file.
func (p *BoltProvider) Close() error {
	return p.db.Close()
}
