package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hackshop/fulfillment/internal/catalog"
	"github.com/hackshop/fulfillment/internal/config"
	"github.com/hackshop/fulfillment/internal/events"
	"github.com/hackshop/fulfillment/internal/fulfillment"
	"github.com/hackshop/fulfillment/internal/ledger"
	"github.com/hackshop/fulfillment/internal/model"
	"github.com/hackshop/fulfillment/internal/obs"
)

func setupApp(t *testing.T, products []model.Product) (*App, http.Handler) {
	t.Helper()
	obs.InitLogger()
	dir := t.TempDir()
	b, err := json.Marshal(products)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	seed := filepath.Join(dir, "products.json")
	if err := os.WriteFile(seed, b, 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
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

	app := NewApp(cfg, cat, coord, disp)
	return app, NewRouter(app)
}

func postOrder(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

var stdProducts = []model.Product{
	{ID: 1, Name: "WiFi Pineapple Sticker", Description: "laptop sticker", Category: "stickers", Price: 500, Stock: 5},
	{ID: 2, Name: "CTF Hoodie", Description: "black hoodie", Category: "apparel", Price: 4500, Stock: 2},
}

const validOrder = `{"product_id":1,"quantity":3,"buyer_info":{"name":"Kim","email":"kim@example.com"}}`

func TestGetProduct(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	r := httptest.NewRequest(http.MethodGet, "/api/products/1", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var p model.Product
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID != 1 || p.Stock != 5 {
		t.Fatalf("unexpected product: %+v", p)
	}
}

func TestGetProductNotFound(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	for _, path := range []string{"/api/products/99", "/api/products/abc"} {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestListAndSearchProducts(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	r := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var ps []model.Product
	if err := json.Unmarshal(w.Body.Bytes(), &ps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ps) != 2 {
		t.Fatalf("expected 2 products, got %d", len(ps))
	}

	r = httptest.NewRequest(http.MethodGet, "/api/products?q=hoodie", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if err := json.Unmarshal(w.Body.Bytes(), &ps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ps) != 1 || ps[0].ID != 2 {
		t.Fatalf("unexpected search result: %+v", ps)
	}
}

func TestPostOrderSuccess(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	w := postOrder(t, h, validOrder)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var rec model.OrderRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ID == 0 || rec.Quantity != 3 || rec.TotalPrice != 1500 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	// stock reflects the decrement
	r := httptest.NewRequest(http.MethodGet, "/api/products/1", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, r)
	var p model.Product
	_ = json.Unmarshal(rw.Body.Bytes(), &p)
	if p.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", p.Stock)
	}
}

func TestPostOrderInsufficientStock(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	w := postOrder(t, h, `{"product_id":2,"quantity":3,"buyer_info":{"name":"Kim","email":"kim@example.com"}}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "insufficient_stock") {
		t.Fatalf("expected insufficient_stock code: %s", w.Body.String())
	}
}

func TestPostOrderProductNotFound(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	w := postOrder(t, h, `{"product_id":77,"quantity":1,"buyer_info":{"name":"Kim","email":"kim@example.com"}}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPostOrderValidation(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	cases := []struct {
		name string
		body string
	}{
		{"zero quantity", `{"product_id":1,"quantity":0,"buyer_info":{"name":"K","email":"k@e.com"}}`},
		{"missing buyer", `{"product_id":1,"quantity":1,"buyer_info":{}}`},
		{"unknown field", `{"product_id":1,"quantity":1,"buyer_info":{"name":"K","email":"k@e.com"},"extra":true}`},
		{"malformed json", `{"product_id":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postOrder(t, h, tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestPostOrderUnsupportedMediaType(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	r := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(validOrder))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", w.Code)
	}
}

func TestListOrders(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	for i := 0; i < 3; i++ {
		w := postOrder(t, h, `{"product_id":1,"quantity":1,"buyer_info":{"name":"Kim","email":"kim@example.com"}}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("order %d: expected 201, got %d", i, w.Code)
		}
	}
	r := httptest.NewRequest(http.MethodGet, "/api/orders?limit=2", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var recs []model.OrderRecord
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != 2 || recs[1].ID != 3 {
		t.Fatalf("unexpected records: %+v", recs)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/orders?limit=-1", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestOrdersRejectedDuringShutdown(t *testing.T) {
	app, h := setupApp(t, stdProducts)
	app.StartShutdown()
	w := postOrder(t, h, validOrder)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestShutdownConcurrentWithOrders(t *testing.T) {
	app, h := setupApp(t, []model.Product{
		{ID: 1, Name: "a", Price: 100, Stock: 1000},
	})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				w := postOrder(t, h, `{"product_id":1,"quantity":1,"buyer_info":{"name":"Kim","email":"kim@example.com"}}`)
				if w.Code != http.StatusCreated && w.Code != http.StatusServiceUnavailable {
					t.Errorf("unexpected status %d", w.Code)
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.StartShutdown()
	}()
	wg.Wait()
	if w := postOrder(t, h, validOrder); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after shutdown, got %d", w.Code)
	}
}

func TestHealthzOK(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	r := httptest.NewRequest(http.MethodGet, "/debug/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := m["worker_count"]; !ok {
		t.Fatalf("missing worker_count")
	}
}

func TestMetricsServed(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestOpenAPIServed(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	r := httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("openapi:")) {
		t.Fatalf("expected openapi content")
	}
}

func TestDocsServed(t *testing.T) {
	_, h := setupApp(t, stdProducts)
	r := httptest.NewRequest(http.MethodGet, "/docs", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "swagger-ui") {
		t.Fatalf("expected swagger-ui in docs body")
	}
}

func TestRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "1")
	t.Setenv("RATE_LIMIT_BURST", "2")
	_, h := setupApp(t, stdProducts)
	got429 := false
	for i := 0; i < 10; i++ {
		r := httptest.NewRequest(http.MethodGet, "/api/products", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}
	if !got429 {
		t.Fatalf("expected a 429 once the bucket drained")
	}
	// the bucket refills and requests pass again
	time.Sleep(1100 * time.Millisecond)
	r := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after refill, got %d", w.Code)
	}
}
