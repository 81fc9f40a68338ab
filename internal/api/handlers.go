package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gearhound/price-engine/internal/models"
	"github.com/gearhound/price-engine/internal/orchestrator"
	"github.com/gearhound/price-engine/internal/store"
)

// ItemReader is the read side of the item store used by the API.
type ItemReader interface {
	Item(ctx context.Context, id string) (*models.TrackedItem, error)
	Items(ctx context.Context) ([]*models.TrackedItem, error)
}

// HistoryReader serves price-history queries. It is optional; the
// in-memory store does not keep history.
type HistoryReader interface {
	History(ctx context.Context, itemID string, limit int) ([]store.PricePoint, error)
}

// Engine triggers scrapes and health resets.
type Engine interface {
	Scrape(ctx context.Context, itemID string) (*orchestrator.Outcome, error)
	ResetFailures(ctx context.Context, itemID string) error
}

type Handlers struct {
	items   ItemReader
	history HistoryReader
	engine  Engine
	logger  *slog.Logger
}

func NewHandlers(items ItemReader, history HistoryReader, engine Engine, logger *slog.Logger) *Handlers {
	return &Handlers{
		items:   items,
		history: history,
		engine:  engine,
		logger:  logger.With("component", "api"),
	}
}

// ItemResponse is the wire form of a tracked item.
type ItemResponse struct {
	ID                  string                    `json:"id"`
	URL                 string                    `json:"url"`
	ScraperID           string                    `json:"scraper_id"`
	Price               *string                   `json:"price,omitempty"`
	Currency            string                    `json:"currency,omitempty"`
	InStock             *bool                     `json:"in_stock,omitempty"`
	StatusText          string                    `json:"status_text,omitempty"`
	Shipping            string                    `json:"shipping,omitempty"`
	Markets             map[string]MarketResponse `json:"markets,omitempty"`
	ConsecutiveFailures int                       `json:"consecutive_failures"`
	LastError           string                    `json:"last_error,omitempty"`
	LastAttemptAt       *time.Time                `json:"last_attempt_at,omitempty"`
	LastScrapedAt       *time.Time                `json:"last_scraped_at,omitempty"`
}

// MarketResponse is one market entry of a multi-market item.
type MarketResponse struct {
	Region   string `json:"region"`
	Currency string `json:"currency"`
	Price    string `json:"price"`
	InStock  *bool  `json:"in_stock,omitempty"`
}

func toItemResponse(item *models.TrackedItem) ItemResponse {
	resp := ItemResponse{
		ID:                  item.ID,
		URL:                 item.URL,
		ScraperID:           item.ScraperID,
		Currency:            item.Currency,
		InStock:             item.InStock,
		StatusText:          item.StatusText,
		Shipping:            item.Shipping,
		ConsecutiveFailures: item.ConsecutiveFailures,
		LastError:           item.LastError,
	}
	if item.Price != nil {
		s := item.Price.String()
		resp.Price = &s
	}
	if !item.LastAttemptAt.IsZero() {
		t := item.LastAttemptAt
		resp.LastAttemptAt = &t
	}
	if !item.LastScrapedAt.IsZero() {
		t := item.LastScrapedAt
		resp.LastScrapedAt = &t
	}
	if len(item.Markets) > 0 {
		resp.Markets = make(map[string]MarketResponse, len(item.Markets))
		for region, mp := range item.Markets {
			resp.Markets[region] = toMarketResponse(mp)
		}
	}
	return resp
}

func toMarketResponse(mp models.MarketPrice) MarketResponse {
	return MarketResponse{
		Region:   mp.Region,
		Currency: mp.Currency,
		Price:    mp.Price.String(),
		InStock:  mp.InStock,
	}
}

// ListItems handles GET /api/v1/items.
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.Items(r.Context())
	if err != nil {
		h.logger.Error("failed to list items", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	resp := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toItemResponse(item))
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// GetItem handles GET /api/v1/items/{itemID}.
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	item, err := h.items.Item(r.Context(), itemID)
	if errors.Is(err, store.ErrItemNotFound) {
		h.respondError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get item", "error", err, "item_id", itemID)
		h.respondError(w, http.StatusInternalServerError, "failed to get item")
		return
	}

	h.respondJSON(w, http.StatusOK, toItemResponse(item))
}

// GetItemMarkets handles GET /api/v1/items/{itemID}/markets.
func (h *Handlers) GetItemMarkets(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	item, err := h.items.Item(r.Context(), itemID)
	if errors.Is(err, store.ErrItemNotFound) {
		h.respondError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get item", "error", err, "item_id", itemID)
		h.respondError(w, http.StatusInternalServerError, "failed to get item")
		return
	}

	markets := make(map[string]MarketResponse, len(item.Markets))
	for region, mp := range item.Markets {
		markets[region] = toMarketResponse(mp)
	}
	h.respondJSON(w, http.StatusOK, markets)
}

// GetItemHistory handles GET /api/v1/items/{itemID}/history.
func (h *Handlers) GetItemHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusNotImplemented, "price history is not available")
		return
	}

	itemID := chi.URLParam(r, "itemID")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	points, err := h.history.History(r.Context(), itemID, limit)
	if err != nil {
		h.logger.Error("failed to get price history", "error", err, "item_id", itemID)
		h.respondError(w, http.StatusInternalServerError, "failed to get price history")
		return
	}

	type pointResponse struct {
		Region     string    `json:"region,omitempty"`
		Currency   string    `json:"currency"`
		Price      string    `json:"price"`
		InStock    *bool     `json:"in_stock,omitempty"`
		RecordedAt time.Time `json:"recorded_at"`
	}
	resp := make([]pointResponse, 0, len(points))
	for _, p := range points {
		resp = append(resp, pointResponse{
			Region:     p.Region,
			Currency:   p.Currency,
			Price:      p.Price.String(),
			InStock:    p.InStock,
			RecordedAt: p.RecordedAt,
		})
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// ScrapeResponse is the wire form of a scrape outcome.
type ScrapeResponse struct {
	ItemID     string                    `json:"item_id"`
	State      string                    `json:"state"`
	Markets    map[string]MarketResponse `json:"markets,omitempty"`
	SoftErrors []string                  `json:"soft_errors,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

// TriggerScrape handles POST /api/v1/items/{itemID}/scrape.
func (h *Handlers) TriggerScrape(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	outcome, err := h.engine.Scrape(r.Context(), itemID)
	if errors.Is(err, store.ErrItemNotFound) {
		h.respondError(w, http.StatusNotFound, "item not found")
		return
	}
	if errors.Is(err, store.ErrScraperNotFound) {
		h.respondError(w, http.StatusConflict, "item has no scraper config")
		return
	}
	if err != nil {
		h.logger.Error("scrape failed", "error", err, "item_id", itemID)
		h.respondError(w, http.StatusInternalServerError, "scrape failed")
		return
	}

	resp := ScrapeResponse{
		ItemID: outcome.ItemID,
		State:  string(outcome.State),
		Error:  outcome.HardError,
	}
	if len(outcome.Markets) > 0 {
		resp.Markets = make(map[string]MarketResponse, len(outcome.Markets))
		for region, mp := range outcome.Markets {
			resp.Markets[region] = toMarketResponse(mp)
		}
	}
	for _, se := range outcome.SoftErrors {
		resp.SoftErrors = append(resp.SoftErrors, se.String())
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// ResetFailures handles POST /api/v1/items/{itemID}/reset-failures.
func (h *Handlers) ResetFailures(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	err := h.engine.ResetFailures(r.Context(), itemID)
	if errors.Is(err, store.ErrItemNotFound) {
		h.respondError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to reset failures", "error", err, "item_id", itemID)
		h.respondError(w, http.StatusInternalServerError, "failed to reset failures")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
