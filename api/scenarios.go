/*
scenarios.go - Demo kitchens for testing and demonstrations

PURPOSE:
  Provides pre-built kitchens that populate the catalog and opening stock
  with realistic data. Each kitchen is a seed file embedded in the binary.

AVAILABLE SCENARIOS:
  bistro:   Small menu, butter and cream below minimum
  bakery:   Flour overstocked after a delivery
  pizzeria: High-value cheese and cured meat

HOW SCENARIOS WORK:
  1. Parse the embedded seed file
  2. Match ingredients by name, creating the missing ones
  3. Write opening stock as correction movements through the ledger

NOTE:
  Movement history is append-only, so loading a kitchen never resets the
  database. Loading a second kitchen merges into the first; ingredients with
  the same name take the newer unit, price and stock.

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "bistro"}

ADDING NEW SCENARIOS:
  1. Add scenarios/<id>.yaml
  2. Add an entry to the 'scenarios' slice with the same ID

SEE ALSO:
  - seed/seed.go: File format and apply semantics
*/
package api

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"net/http"

	"github.com/warp/stock-ledger/seed"
)

//go:embed scenarios/*.yaml
var scenarioFiles embed.FS

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "bistro",
		Name:        "Bistro",
		Description: "Five staples, butter and cream below their minimum",
	},
	{
		ID:          "bakery",
		Name:        "Bakery",
		Description: "Flour overstocked after a large delivery",
	},
	{
		ID:          "pizzeria",
		Name:        "Pizzeria",
		Description: "High-value mozzarella and prosciutto, spices without thresholds",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined kitchen.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.loadScenario(r.Context(), req.ScenarioID)
	if err != nil {
		if _, known := findScenario(req.ScenarioID); !known {
			writeError(w, http.StatusNotFound, "Unknown scenario", err)
			return
		}
		h.writeLedgerError(w, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.log.Info().
		Str("scenario", req.ScenarioID).
		Int("created", result.Created).
		Int("stocked", result.Stocked).
		Msg("scenario loaded")

	writeJSON(w, http.StatusOK, map[string]any{
		"scenario_id": req.ScenarioID,
		"result":      result,
	})
}

func (h *Handler) loadScenario(ctx context.Context, id string) (*seed.Result, error) {
	if _, ok := findScenario(id); !ok {
		return nil, fmt.Errorf("scenario %q does not exist", id)
	}
	raw, err := scenarioFiles.ReadFile("scenarios/" + id + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("read scenario %q: %w", id, err)
	}
	f, err := seed.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse scenario %q: %w", id, err)
	}
	return seed.Apply(ctx, f, h.Catalog, h.Ledger)
}

func findScenario(id string) (ScenarioDTO, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return ScenarioDTO{}, false
}
