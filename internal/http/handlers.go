package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hackshop/fulfillment/internal/catalog"
	"github.com/hackshop/fulfillment/internal/config"
	"github.com/hackshop/fulfillment/internal/events"
	"github.com/hackshop/fulfillment/internal/fulfillment"
	httpopenapi "github.com/hackshop/fulfillment/internal/http/openapi"
	"github.com/hackshop/fulfillment/internal/model"
	"github.com/hackshop/fulfillment/internal/obs"
)

const defaultOrderListLimit = 20

type App struct {
	Cfg         config.Config
	Catalog     catalog.Store
	Coordinator *fulfillment.Coordinator
	Dispatcher  *events.Dispatcher
	closing     atomic.Bool
	started     time.Time
}

// orderRequest is the POST /api/orders payload.
type orderRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	BuyerInfo model.BuyerInfo `json:"buyer_info"`
}

func NewApp(cfg config.Config, cat catalog.Store, coord *fulfillment.Coordinator, disp *events.Dispatcher) *App {
	return &App{Cfg: cfg, Catalog: cat, Coordinator: coord, Dispatcher: disp, started: time.Now()}
}

func (a *App) StartShutdown() {
	a.closing.Store(true)
	if a.Dispatcher != nil {
		a.Dispatcher.CloseIntake()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var (
		products []model.Product
		err      error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		products, err = a.Catalog.Search(r.Context(), q)
	} else {
		products, err = a.Catalog.List(r.Context())
	}
	if err != nil {
		status, code := errorCode(err)
		WriteJSONError(w, status, code, "")
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *App) getProductHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	prefix := "/api/products/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, prefix)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		WriteJSONError(w, http.StatusNotFound, "product_not_found", "")
		return
	}
	p, err := a.Catalog.Get(r.Context(), id)
	if err != nil {
		status, code := errorCode(err)
		WriteJSONError(w, status, code, "")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ordersHandler dispatches POST (place order) and GET (recent orders).
func (a *App) ordersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.postOrderHandler(w, r)
	case http.MethodGet:
		a.listOrdersHandler(w, r)
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	}
}

func (a *App) postOrderHandler(w http.ResponseWriter, r *http.Request) {
	if a.closing.Load() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return
	}
	var req orderRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	rec, err := a.Coordinator.PlaceOrder(r.Context(), req.ProductID, req.Quantity, req.BuyerInfo)
	if err != nil {
		status, code := errorCode(err)
		obs.RecordOrder(code)
		details := ""
		if status == http.StatusBadRequest {
			details = err.Error()
		}
		WriteJSONError(w, status, code, details)
		return
	}
	obs.RecordOrder(rec.Status)
	if a.Dispatcher != nil {
		a.Dispatcher.Enqueue(events.FromRecord(rec))
	}
	writeJSON(w, http.StatusCreated, rec)
	obs.Logger.Info("order_accepted",
		"request_id", RequestIDFromContext(r.Context()),
		"order_id", rec.ID,
		"product_id", rec.ProductID,
		"quantity", rec.Quantity,
	)
}

func (a *App) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultOrderListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteJSONError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := a.Coordinator.RecentOrders(r.Context(), limit)
	if err != nil {
		status, code := errorCode(err)
		WriteJSONError(w, status, code, "")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	m := map[string]any{
		"uptime_sec": time.Since(a.started).Seconds(),
	}
	if a.Dispatcher != nil {
		enq, proc, backlog, depth := a.Dispatcher.QueueMetrics()
		m["events_enqueued"] = enq
		m["events_published"] = proc
		m["backlog_size"] = backlog
		m["queue_depth"] = depth
		m["worker_count"] = a.Dispatcher.WorkerCount()
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
