// Package pack is a file-backed Repository: one JSON document per aggregate,
// written atomically via a temp file and rename, loaded fully into memory at
// startup. It is the default store when no database is configured.
package pack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"boltline/backend/internal/cart"
	"boltline/backend/internal/domain"
	"boltline/backend/internal/purchase"
)

// collection is one on-disk keyed set of aggregates. All access goes through
// the mutex; writes hit the disk before the in-memory map is updated.
type collection[T any] struct {
	mu   sync.Mutex
	dir  string
	docs map[uuid.UUID]T
}

func loadCollection[T any](dir string) (*collection[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	c := &collection[T]{dir: dir, docs: make(map[uuid.UUID]T)}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		id, err := uuid.Parse(strings.TrimSuffix(d.Name(), ".json"))
		if err != nil {
			// Foreign files are left alone rather than treated as corruption.
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var doc T
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		c.docs[id] = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *collection[T]) path(id uuid.UUID) string {
	return filepath.Join(c.dir, id.String()+".json")
}

// persist writes the document to a temp file in the same directory and
// renames it over the final path, so a crash never leaves a half-written
// document behind.
func (c *collection[T]) persist(id uuid.UUID, doc T) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	tmp, err := os.CreateTemp(c.dir, id.String()+".*.tmp")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", id, err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), c.path(id)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", id, err)
	}
	return nil
}

func (c *collection[T]) insert(id uuid.UUID, doc T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; ok {
		return fmt.Errorf("%w: document %s already exists", domain.ErrConflict, id)
	}
	if err := c.persist(id, doc); err != nil {
		return err
	}
	c.docs[id] = doc
	return nil
}

func (c *collection[T]) get(id uuid.UUID) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	return doc, nil
}

func (c *collection[T]) update(id uuid.UUID, fn func(*T) error) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	if err := fn(&doc); err != nil {
		var zero T
		return zero, err
	}
	if err := c.persist(id, doc); err != nil {
		var zero T
		return zero, err
	}
	c.docs[id] = doc
	return doc, nil
}

func (c *collection[T]) remove(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	if err := os.Remove(c.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	delete(c.docs, id)
	return nil
}

func (c *collection[T]) ids() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uuid.UUID, 0, len(c.docs))
	for id := range c.docs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// byIDs returns the documents for the given ids in input order, silently
// skipping ids that are not present.
func (c *collection[T]) byIDs(ids []uuid.UUID) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if doc, ok := c.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out
}

// Store is the file-backed Repository.
type Store struct {
	carts     *collection[cart.Cart]
	purchases *collection[purchase.Purchase]
}

// LoadOrInit opens the data directory, creating it when absent, and loads
// every stored document into memory.
func LoadOrInit(dir string) (*Store, error) {
	carts, err := loadCollection[cart.Cart](filepath.Join(dir, "carts"))
	if err != nil {
		return nil, fmt.Errorf("load carts: %w", err)
	}
	purchases, err := loadCollection[purchase.Purchase](filepath.Join(dir, "purchases"))
	if err != nil {
		return nil, fmt.Errorf("load purchases: %w", err)
	}
	return &Store{carts: carts, purchases: purchases}, nil
}

func (s *Store) InsertCart(_ context.Context, c cart.Cart) error {
	return s.carts.insert(c.ID, c)
}

func (s *Store) CartByID(_ context.Context, id uuid.UUID) (cart.Cart, error) {
	return s.carts.get(id)
}

func (s *Store) UpdateCart(_ context.Context, id uuid.UUID, fn func(*cart.Cart) error) (cart.Cart, error) {
	return s.carts.update(id, fn)
}

func (s *Store) RemoveCart(_ context.Context, id uuid.UUID) error {
	return s.carts.remove(id)
}

func (s *Store) CartIDs(_ context.Context) ([]uuid.UUID, error) {
	return s.carts.ids(), nil
}

func (s *Store) CartsByIDs(_ context.Context, ids []uuid.UUID) ([]cart.Cart, error) {
	return s.carts.byIDs(ids), nil
}

func (s *Store) InsertPurchase(_ context.Context, p purchase.Purchase) error {
	return s.purchases.insert(p.ID, p)
}

func (s *Store) PurchaseByID(_ context.Context, id uuid.UUID) (purchase.Purchase, error) {
	return s.purchases.get(id)
}

func (s *Store) UpdatePurchase(_ context.Context, id uuid.UUID, fn func(*purchase.Purchase) error) (purchase.Purchase, error) {
	return s.purchases.update(id, fn)
}

func (s *Store) PurchaseIDs(_ context.Context) ([]uuid.UUID, error) {
	return s.purchases.ids(), nil
}

func (s *Store) PurchasesByIDs(_ context.Context, ids []uuid.UUID) ([]purchase.Purchase, error) {
	return s.purchases.byIDs(ids), nil
}

func (s *Store) PurchasesByInterval(_ context.Context, from, to time.Time) ([]purchase.Purchase, error) {
	s.purchases.mu.Lock()
	defer s.purchases.mu.Unlock()
	out := make([]purchase.Purchase, 0)
	for _, p := range s.purchases.docs {
		if p.DateCompletion.Before(from) || !p.DateCompletion.Before(to) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DateCompletion.Before(out[j].DateCompletion)
	})
	return out, nil
}
