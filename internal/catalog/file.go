package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hackshop/fulfillment/internal/model"
)

// FileStore keeps one JSON document per product under dir. Updates touch
// only the record's own file (temp file + rename), so operations on
// distinct products never serialize through a whole-catalog rewrite.
//
// The product set is fixed at open time; catalog administration happens
// outside this service.
type FileStore struct {
	dir      string
	products map[int64]*productEntry
}

type productEntry struct {
	mu sync.Mutex
	p  model.Product
}

// OpenFile opens (and if needed creates) a file-backed catalog under
// dir/products. When the directory holds no records and seedFile names a
// JSON array of products, the seed is imported first.
func OpenFile(dir, seedFile string) (*FileStore, error) {
	pdir := filepath.Join(dir, "products")
	if err := os.MkdirAll(pdir, 0o755); err != nil {
		return nil, fmt.Errorf("create products dir: %w", err)
	}
	s := &FileStore{dir: pdir, products: make(map[int64]*productEntry)}
	if err := s.load(); err != nil {
		return nil, err
	}
	if len(s.products) == 0 && seedFile != "" {
		if err := s.importSeed(seedFile); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FileStore) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read products dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read product file %s: %w", e.Name(), err)
		}
		var p model.Product
		if err := json.Unmarshal(b, &p); err != nil {
			return fmt.Errorf("decode product file %s: %w", e.Name(), err)
		}
		s.products[p.ID] = &productEntry{p: p}
	}
	return nil
}

func (s *FileStore) importSeed(seedFile string) error {
	b, err := os.ReadFile(seedFile)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var ps []model.Product
	if err := json.Unmarshal(b, &ps); err != nil {
		return fmt.Errorf("decode seed file: %w", err)
	}
	for _, p := range ps {
		if p.ID <= 0 || p.Stock < 0 || p.Price < 0 {
			return fmt.Errorf("seed product %d is invalid", p.ID)
		}
		if err := s.persist(p); err != nil {
			return err
		}
		s.products[p.ID] = &productEntry{p: p}
	}
	return nil
}

// persist writes the record to a temp file in the same directory, fsyncs
// it, and renames it over the final path.
func (s *FileStore) persist(p model.Product) error {
	final := filepath.Join(s.dir, strconv.FormatInt(p.ID, 10)+".json")
	tmp, err := os.CreateTemp(s.dir, ".tmp-product-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode product %d: %w", p.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync product %d: %w", p.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close product %d: %w", p.ID, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename product %d: %w", p.ID, err)
	}
	return nil
}

func (s *FileStore) entry(id int64) (*productEntry, bool) {
	// the map is immutable after OpenFile, so no map lock is needed
	e, ok := s.products[id]
	return e, ok
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, id int64) (model.Product, error) {
	e, ok := s.entry(id)
	if !ok {
		return model.Product{}, model.ErrProductNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p, nil
}

// List implements Store.
func (s *FileStore) List(_ context.Context) ([]model.Product, error) {
	out := make([]model.Product, 0, len(s.products))
	for _, e := range s.products {
		e.mu.Lock()
		out = append(out, e.p)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Search implements Store.
func (s *FileStore) Search(ctx context.Context, q string) ([]model.Product, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(q)
	out := make([]model.Product, 0)
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) {
			out = append(out, p)
		}
	}
	return out, nil
}

// DecrementStock implements Store. The in-memory value changes only after
// the updated record is durably on disk; a persist failure leaves both
// the file and the observable stock untouched.
func (s *FileStore) DecrementStock(_ context.Context, id, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", model.ErrInvalidRequest)
	}
	e, ok := s.entry(id)
	if !ok {
		return 0, model.ErrProductNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.p.Stock < amount {
		return e.p.Stock, model.ErrInsufficientStock
	}
	updated := e.p
	updated.Stock -= amount
	if err := s.persist(updated); err != nil {
		return e.p.Stock, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	e.p = updated
	return e.p.Stock, nil
}

// RestoreStock implements Store.
func (s *FileStore) RestoreStock(_ context.Context, id, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", model.ErrInvalidRequest)
	}
	e, ok := s.entry(id)
	if !ok {
		return model.ErrProductNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	updated := e.p
	updated.Stock += amount
	if err := s.persist(updated); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	e.p = updated
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }
