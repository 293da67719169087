/*
handlers.go - HTTP API handlers for the inventory ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the ledger service.

ENDPOINTS:
  Levels:
    GET    /api/levels                          All levels, reconciled
    GET    /api/levels/low                      Levels at or below minimum
    GET    /api/levels/value                    Total stock value
    PUT    /api/levels/{ingredientID}           Set stock and thresholds
    GET    /api/levels/{ingredientID}/history   Movement history (?type=&start=&end=)
    GET    /api/levels/{ingredientID}/verify    Replay history against stock

  Stock changes (one batch per request):
    POST   /api/purchases                       Invoice lines
    POST   /api/adjustments                     Quick +/- adjustment
    POST   /api/usage                           Recipe consumption

  Snapshots:
    POST   /api/snapshots                       Take a snapshot
    GET    /api/snapshots                       List summaries
    GET    /api/snapshots/latest                Most recent summary (null if none)
    GET    /api/snapshots/{id}/items            Frozen items

  Reports:
    GET    /api/reports/inventory               Levels with status and totals
    GET    /api/reports/low-stock               Low levels with shortfall
    GET    /api/reports/high-value              Top-N by value (?n=)
    GET    /api/reports/monthly                 Window comparison (?as_of=)

  Catalog:
    GET    /api/ingredients                     List ingredients
    POST   /api/ingredients                     Add an ingredient

DATES:
  Query dates are calendar days, YYYY-MM-DD, interpreted in UTC.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown ingredient or snapshot
  - 500: Schema and storage errors

SECURITY NOTE:
  No authentication or authorization. The ledger serves a single kitchen.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo kitchens
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/seed"
)

const dateLayout = "2006-01-02"

const defaultTopN = 10

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger  *ledger.Ledger
	Catalog seed.Catalog

	// TopN is the default size of the high-value report.
	TopN int

	log zerolog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over the ledger and the catalog it reads.
func NewHandler(l *ledger.Ledger, catalog seed.Catalog, log zerolog.Logger) *Handler {
	return &Handler{
		Ledger:  l,
		Catalog: catalog,
		TopN:    defaultTopN,
		log:     log,
	}
}

// =============================================================================
// LEVEL HANDLERS
// =============================================================================

// ListLevels returns every stock level ordered by ingredient name.
func (h *Handler) ListLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.Ledger.GetLevels(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to list stock levels", err)
		return
	}
	writeJSON(w, http.StatusOK, toStockLevelDTOs(levels))
}

// ListLowStock returns levels at or below their minimum.
func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.Ledger.GetLowStockItems(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to list low stock", err)
		return
	}
	writeJSON(w, http.StatusOK, toStockLevelDTOs(levels))
}

// GetTotalValue returns the value of all stock.
func (h *Handler) GetTotalValue(w http.ResponseWriter, r *http.Request) {
	total, err := h.Ledger.GetTotalValue(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to compute total value", err)
		return
	}
	writeJSON(w, http.StatusOK, TotalValueDTO{TotalValue: total})
}

// UpdateLevel sets the stock figure and any supplied thresholds.
func (h *Handler) UpdateLevel(w http.ResponseWriter, r *http.Request) {
	id, err := ingredientParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ingredient ID", err)
		return
	}

	var req UpdateLevelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.NewStock.Valid {
		writeError(w, http.StatusBadRequest, "Invalid request body", errors.New("new_stock is required"))
		return
	}
	ct, err := ledger.ParseChangeType(req.ChangeType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid change type", err)
		return
	}

	err = h.Ledger.UpdateLevel(r.Context(), ledger.LevelUpdate{
		IngredientID: id,
		NewStock:     req.NewStock.Decimal,
		MinStock:     req.MinimumStock,
		MaxStock:     req.MaximumStock,
		ChangeType:   ct,
		Reason:       req.Reason,
		RecipeID:     ledger.RecipeID(req.RecipeID),
	})
	if err != nil {
		h.writeLedgerError(w, "Failed to update stock level", err)
		return
	}

	// Unknown ingredients are a no-op in the ledger; the lookup reports them.
	level, err := h.Ledger.GetLevel(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, "Failed to read stock level", err)
		return
	}
	writeJSON(w, http.StatusOK, toStockLevelDTO(*level))
}

// GetHistory returns an ingredient's movements, newest first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := ingredientParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ingredient ID", err)
		return
	}
	start, err := dateQuery(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}
	end, err := dateQuery(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date", err)
		return
	}

	entries, err := h.Ledger.GetHistory(r.Context(), id, r.URL.Query().Get("type"), start, end)
	if err != nil {
		h.writeLedgerError(w, "Failed to load history", err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(entries))
}

// VerifyLevel replays an ingredient's history against its current stock.
func (h *Handler) VerifyLevel(w http.ResponseWriter, r *http.Request) {
	id, err := ingredientParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ingredient ID", err)
		return
	}
	result, err := h.Ledger.VerifyIngredient(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, "Failed to verify history", err)
		return
	}
	writeJSON(w, http.StatusOK, ReplayDTO{
		IngredientID:  int64(result.IngredientID),
		Entries:       result.Entries,
		Replayed:      result.Replayed,
		CurrentStock:  result.CurrentStock,
		Consistent:    result.Consistent,
		FirstMismatch: int64(result.FirstMismatch),
	})
}

// =============================================================================
// STOCK CHANGE HANDLERS
// =============================================================================

// RecordPurchase adds every invoice line to stock in one batch.
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lines := make([]ledger.PurchaseLine, len(req.Lines))
	for i, line := range req.Lines {
		lines[i] = ledger.PurchaseLine{
			IngredientID: ledger.IngredientID(line.IngredientID),
			Quantity:     line.Quantity,
			Reason:       line.Reason,
		}
	}
	result, err := h.Ledger.RecordPurchase(r.Context(), lines)
	if err != nil {
		h.writeLedgerError(w, "Failed to record purchase", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBatchDTO(result))
}

// CreateAdjustment applies a quick +/- change. The change type defaults to
// "adjustment".
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ct := ledger.ChangeAdjustment
	if req.ChangeType != "" {
		parsed, err := ledger.ParseChangeType(req.ChangeType)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid change type", err)
			return
		}
		ct = parsed
	}

	entry, err := h.Ledger.QuickAdjust(r.Context(), ledger.IngredientID(req.IngredientID), req.Delta, ct, req.Reason)
	if err != nil {
		h.writeLedgerError(w, "Failed to adjust stock", err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "Ingredient not found", ledger.ErrIngredientNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(*entry))
}

// RecordUsage deducts a recipe's ingredients in one batch.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req UsageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lines := make([]ledger.UsageLine, len(req.Lines))
	for i, line := range req.Lines {
		lines[i] = ledger.UsageLine{
			IngredientID: ledger.IngredientID(line.IngredientID),
			Quantity:     line.Quantity,
		}
	}
	result, err := h.Ledger.RecordUsage(r.Context(), ledger.RecipeID(req.RecipeID), lines, req.Reason)
	if err != nil {
		h.writeLedgerError(w, "Failed to record usage", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBatchDTO(result))
}

// =============================================================================
// SNAPSHOT HANDLERS
// =============================================================================

// TakeSnapshot freezes every current level.
func (h *Handler) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := h.Ledger.TakeSnapshot(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to take snapshot", err)
		return
	}
	summary, err := h.Ledger.LatestSnapshotSummary(r.Context())
	if err != nil || summary == nil || summary.SnapshotID != id {
		writeJSON(w, http.StatusCreated, map[string]int64{"snapshot_id": int64(id)})
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotSummaryDTO(*summary))
}

// ListSnapshots returns every snapshot summary, newest first.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Ledger.ListSnapshots(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to list snapshots", err)
		return
	}
	dtos := make([]SnapshotSummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toSnapshotSummaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLatestSnapshot returns the most recent summary, or null when there is none.
func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Ledger.LatestSnapshotSummary(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to load latest snapshot", err)
		return
	}
	if summary == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotSummaryDTO(*summary))
}

// GetSnapshotItems returns the frozen items of one snapshot.
func (h *Handler) GetSnapshotItems(w http.ResponseWriter, r *http.Request) {
	raw, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid snapshot ID", err)
		return
	}
	items, err := h.Ledger.SnapshotItems(r.Context(), ledger.SnapshotID(raw))
	if err != nil {
		h.writeLedgerError(w, "Failed to load snapshot items", err)
		return
	}
	dtos := make([]SnapshotItemDTO, len(items))
	for i, item := range items {
		dtos[i] = SnapshotItemDTO{
			IngredientID: int64(item.IngredientID),
			Stock:        item.Stock,
			UnitCost:     item.UnitCost,
			TotalValue:   item.TotalValue,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

func (h *Handler) InventoryReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Ledger.CurrentInventory(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to build inventory report", err)
		return
	}
	dto := InventoryReportDTO{
		GeneratedAt:      report.GeneratedAt.UTC().Format(time.RFC3339),
		Levels:           make([]StockLevelDTO, len(report.Lines)),
		TotalValue:       report.TotalValue,
		LowStockCount:    report.LowStockCount,
		OverstockedCount: report.OverstockedCount,
	}
	for i, line := range report.Lines {
		dto.Levels[i] = toStockLevelDTO(line.Level)
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) LowStockReport(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Ledger.LowStockReport(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to build low stock report", err)
		return
	}
	dtos := make([]LowStockDTO, len(lines))
	for i, line := range lines {
		dtos[i] = LowStockDTO{
			StockLevelDTO: toStockLevelDTO(line.Level),
			Shortfall:     line.Shortfall,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// HighValueReport returns the top-N levels by value. n defaults to TopN.
func (h *Handler) HighValueReport(w http.ResponseWriter, r *http.Request) {
	n := h.TopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid n", err)
			return
		}
		n = parsed
	}
	levels, err := h.Ledger.HighValueItems(r.Context(), n)
	if err != nil {
		h.writeLedgerError(w, "Failed to build high value report", err)
		return
	}
	writeJSON(w, http.StatusOK, toStockLevelDTOs(levels))
}

// MonthlyReport compares the report window ending at as_of (default: now)
// with the window before it.
func (h *Handler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	day, err := dateQuery(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}
	if day != nil {
		asOf = day.AddDate(0, 0, 1) // through the end of that day
	}

	cmp, err := h.Ledger.MonthlyComparison(r.Context(), asOf)
	if err != nil {
		h.writeLedgerError(w, "Failed to build comparison", err)
		return
	}
	writeJSON(w, http.StatusOK, toComparisonDTO(cmp))
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

func (h *Handler) ListIngredients(w http.ResponseWriter, r *http.Request) {
	ingredients, err := h.Catalog.ListIngredients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list ingredients", err)
		return
	}
	dtos := make([]IngredientDTO, len(ingredients))
	for i, ing := range ingredients {
		dtos[i] = IngredientDTO{
			ID:        int64(ing.ID),
			Name:      ing.Name,
			Unit:      ing.Unit,
			UnitPrice: ing.UnitPrice,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateIngredient adds a catalog entry. Its stock level appears on the next
// read of the levels.
func (h *Handler) CreateIngredient(w http.ResponseWriter, r *http.Request) {
	var req CreateIngredientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UnitPrice.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid unit price", errors.New("unit_price cannot be negative"))
		return
	}

	ing := ledger.Ingredient{Name: req.Name, Unit: req.Unit, UnitPrice: req.UnitPrice}
	id, err := h.Catalog.SaveIngredient(r.Context(), ing)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create ingredient", err)
		return
	}
	writeJSON(w, http.StatusCreated, IngredientDTO{
		ID:        int64(id),
		Name:      ing.Name,
		Unit:      ing.Unit,
		UnitPrice: ing.UnitPrice,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError picks the status from the ledger's error taxonomy.
func (h *Handler) writeLedgerError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		h.log.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func ingredientParam(r *http.Request) (ledger.IngredientID, error) {
	raw := chi.URLParam(r, "ingredientID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("ingredient id must be positive, got %d", id)
	}
	return ledger.IngredientID(id), nil
}

// dateQuery parses an optional YYYY-MM-DD query parameter as a UTC day.
func dateQuery(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: expected YYYY-MM-DD: %w", key, err)
	}
	return &t, nil
}
