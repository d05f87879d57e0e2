package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hackshop/fulfillment/internal/catalog"
	"github.com/hackshop/fulfillment/internal/config"
	"github.com/hackshop/fulfillment/internal/events"
	"github.com/hackshop/fulfillment/internal/fulfillment"
	httpapi "github.com/hackshop/fulfillment/internal/http"
	"github.com/hackshop/fulfillment/internal/ledger"
	"github.com/hackshop/fulfillment/internal/model"
	"github.com/hackshop/fulfillment/internal/obs"
)

type env struct {
	dir  string
	seed string
	h    http.Handler
	led  *ledger.FileLedger
}

func start(t *testing.T, dir string, products []model.Product) *env {
	t.Helper()
	obs.InitLogger()
	seed := filepath.Join(dir, "products.json")
	if products != nil {
		b, err := json.Marshal(products)
		if err != nil {
			t.Fatalf("marshal seed: %v", err)
		}
		if err := os.WriteFile(seed, b, 0o644); err != nil {
			t.Fatalf("write seed: %v", err)
		}
	}
	cat, err := catalog.OpenFile(dir, seed)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	led, err := ledger.OpenFile(dir)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = led.Close() })

	cfg := config.Load()
	coord := fulfillment.New(cat, led)
	q := events.NewQueue(64)
	disp := events.NewDispatcher(cfg, q, events.LogPublisher{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	disp.Start(ctx)
	t.Cleanup(disp.Stop)

	app := httpapi.NewApp(cfg, cat, coord, disp)
	return &env{dir: dir, seed: seed, h: httpapi.NewRouter(app), led: led}
}

func (e *env) placeOrder(productID, quantity int64) *httptest.ResponseRecorder {
	body := fmt.Sprintf(
		`{"product_id":%d,"quantity":%d,"buyer_info":{"name":"Kim","email":"kim@example.com"}}`,
		productID, quantity)
	r := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, r)
	return w
}

func (e *env) getStock(t *testing.T, productID int64) int64 {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/products/%d", productID), nil)
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("get product %d: %d", productID, w.Code)
	}
	var p model.Product
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return p.Stock
}

func TestIntegration_OrderThenStock(t *testing.T) {
	e := start(t, t.TempDir(), []model.Product{
		{ID: 1, Name: "Badge Cloner", Price: 12000, Stock: 5},
	})
	w := e.placeOrder(1, 3)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var rec model.OrderRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.TotalPrice != 36000 || rec.Status != model.StatusConfirmed {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if got := e.getStock(t, 1); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}
}

func TestIntegration_ConcurrentLastUnit(t *testing.T) {
	e := start(t, t.TempDir(), []model.Product{
		{ID: 1, Name: "Faraday Bag", Price: 2000, Stock: 1},
	})
	var wg sync.WaitGroup
	codes := make(chan int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- e.placeOrder(1, 1).Code
		}()
	}
	wg.Wait()
	close(codes)
	var created, conflict int
	for c := range codes {
		switch c {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflict++
		default:
			t.Fatalf("unexpected status %d", c)
		}
	}
	if created != 1 || conflict != 1 {
		t.Fatalf("expected one winner: created=%d conflict=%d", created, conflict)
	}
	if got := e.getStock(t, 1); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
	recs, _ := e.led.ListRecent(context.Background(), 10)
	if len(recs) != 1 {
		t.Fatalf("expected one ledger record, got %d", len(recs))
	}
}

func TestIntegration_DistinctProductsInParallel(t *testing.T) {
	e := start(t, t.TempDir(), []model.Product{
		{ID: 1, Name: "a", Price: 100, Stock: 10},
		{ID: 2, Name: "b", Price: 100, Stock: 10},
	})
	var wg sync.WaitGroup
	for _, id := range []int64{1, 2} {
		wg.Add(1)
		go func(pid int64) {
			defer wg.Done()
			if w := e.placeOrder(pid, 5); w.Code != http.StatusCreated {
				t.Errorf("product %d: expected 201, got %d", pid, w.Code)
			}
		}(id)
	}
	wg.Wait()
	for _, id := range []int64{1, 2} {
		if got := e.getStock(t, id); got != 5 {
			t.Fatalf("product %d: expected stock 5, got %d", id, got)
		}
	}
}

func TestIntegration_OversellPressure(t *testing.T) {
	const stock = 8
	e := start(t, t.TempDir(), []model.Product{
		{ID: 1, Name: "a", Price: 100, Stock: stock},
	})
	var wg sync.WaitGroup
	var mu sync.Mutex
	var sold int64
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := e.placeOrder(1, 2)
			switch w.Code {
			case http.StatusCreated:
				mu.Lock()
				sold += 2
				mu.Unlock()
			case http.StatusConflict:
			default:
				t.Errorf("unexpected status %d: %s", w.Code, w.Body.String())
			}
		}()
	}
	wg.Wait()
	if sold > stock {
		t.Fatalf("oversold: %d units of %d in stock", sold, stock)
	}
	if sold != stock {
		t.Fatalf("expected full sellout, sold %d of %d", sold, stock)
	}
	if got := e.getStock(t, 1); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestIntegration_StateSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	e := start(t, dir, []model.Product{
		{ID: 1, Name: "a", Price: 100, Stock: 6},
	})
	if w := e.placeOrder(1, 4); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	// reopen the same data directory, as a process restart would
	e2 := start(t, dir, nil)
	if got := e2.getStock(t, 1); got != 2 {
		t.Fatalf("expected stock 2 after restart, got %d", got)
	}
	recs, err := e2.led.ListRecent(context.Background(), 10)
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected one surviving order, got %d (%v)", len(recs), err)
	}
	if w := e2.placeOrder(1, 1); w.Code != http.StatusCreated {
		t.Fatalf("order after restart: %d", w.Code)
	}
	recs, _ = e2.led.ListRecent(context.Background(), 10)
	if len(recs) != 2 || recs[1].ID != 2 {
		t.Fatalf("id sequence must continue after restart: %+v", recs)
	}
}
