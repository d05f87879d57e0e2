package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hackshop/fulfillment/internal/model"
)

// FileLedger appends orders as JSON lines to a single file opened with
// O_APPEND. The file is the source of truth; an in-memory copy serves
// reads. Existing lines are never rewritten.
type FileLedger struct {
	mu      sync.Mutex
	f       *os.File
	records []model.OrderRecord
	seq     Sequencer
}

// OpenFile opens (and if needed creates) dir/orders.jsonl and seeds the
// id sequence from the highest persisted id.
func OpenFile(dir string) (*FileLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	path := filepath.Join(dir, "orders.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l := &FileLedger{f: f}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var maxID int64
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec model.OrderRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			f.Close()
			return nil, fmt.Errorf("decode ledger line: %w", err)
		}
		l.records = append(l.records, rec)
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	if err := sc.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	l.seq.Seed(maxID)
	return l, nil
}

// Append implements Ledger. Id assignment, the write, and the fsync all
// happen under the ledger mutex so line order on disk matches id order.
func (l *FileLedger) Append(_ context.Context, rec model.OrderRecord) (model.OrderRecord, error) {
	if rec.OrderDate.IsZero() {
		rec.OrderDate = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = model.StatusConfirmed
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	rec.ID = l.seq.Next()
	line, err := json.Marshal(rec)
	if err != nil {
		return model.OrderRecord{}, fmt.Errorf("encode order: %w", err)
	}
	line = append(line, '\n')
	if _, err := l.f.Write(line); err != nil {
		return model.OrderRecord{}, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	if err := l.f.Sync(); err != nil {
		return model.OrderRecord{}, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	l.records = append(l.records, rec)
	return rec, nil
}

// ListRecent implements Ledger.
func (l *FileLedger) ListRecent(_ context.Context, n int) ([]model.OrderRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]model.OrderRecord, n)
	copy(out, l.records[len(l.records)-n:])
	return out, nil
}

// Close implements Ledger.
func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
