/*
Package seed loads an ingredient catalog with opening stock from YAML.

FILE FORMAT:
  ingredients:
    - name: Flour
      unit: kg
      unit_price: "1.20"
      opening_stock: "25"
      minimum_stock: "5"
      maximum_stock: "60"

  unit_price defaults to 0. opening_stock and the thresholds are optional.

APPLY SEMANTICS:
  Ingredients are matched by name, case-insensitively. A matched ingredient
  keeps its id and has unit and price updated. Opening stock is written as
  a correction through the ledger, so it shows up in the movement history.
  Applying the same file twice writes no second movement.
*/
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
	"gopkg.in/yaml.v3"
)

// Catalog is the writable ingredient catalog.
type Catalog interface {
	ledger.Catalog
	SaveIngredient(ctx context.Context, ing ledger.Ingredient) (ledger.IngredientID, error)
}

// File is a parsed seed file.
type File struct {
	Ingredients []Ingredient `yaml:"ingredients"`
}

type Ingredient struct {
	Name         string `yaml:"name"`
	Unit         string `yaml:"unit"`
	UnitPrice    string `yaml:"unit_price"`
	OpeningStock string `yaml:"opening_stock"`
	MinimumStock string `yaml:"minimum_stock"`
	MaximumStock string `yaml:"maximum_stock"`
}

// entry is an Ingredient with its numbers parsed.
type entry struct {
	name, unit string
	price      decimal.Decimal
	opening    decimal.NullDecimal
	min, max   decimal.NullDecimal
}

// Result summarizes what Apply changed.
type Result struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Stocked   int `json:"stocked"`
	Unchanged int `json:"unchanged"`
}

// ReadFile parses the seed file at path.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a seed document.
func Parse(r io.Reader) (*File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if _, err := file.entries(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *File) entries() ([]entry, error) {
	seen := make(map[string]bool, len(f.Ingredients))
	out := make([]entry, 0, len(f.Ingredients))
	for i, ing := range f.Ingredients {
		name := strings.TrimSpace(ing.Name)
		if name == "" {
			return nil, fmt.Errorf("ingredient %d: name is required", i)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, fmt.Errorf("ingredient %q: listed twice", name)
		}
		seen[key] = true

		e := entry{name: name, unit: strings.TrimSpace(ing.Unit), price: decimal.Zero}
		var err error
		if ing.UnitPrice != "" {
			if e.price, err = decimal.NewFromString(ing.UnitPrice); err != nil {
				return nil, fmt.Errorf("ingredient %q: unit_price: %w", name, err)
			}
			if e.price.IsNegative() {
				return nil, fmt.Errorf("ingredient %q: unit_price must not be negative", name)
			}
		}
		if e.opening, err = optional(ing.OpeningStock); err != nil {
			return nil, fmt.Errorf("ingredient %q: opening_stock: %w", name, err)
		}
		if e.min, err = optional(ing.MinimumStock); err != nil {
			return nil, fmt.Errorf("ingredient %q: minimum_stock: %w", name, err)
		}
		if e.max, err = optional(ing.MaximumStock); err != nil {
			return nil, fmt.Errorf("ingredient %q: maximum_stock: %w", name, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func optional(s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// Apply writes the file into the catalog and the ledger.
func Apply(ctx context.Context, f *File, catalog Catalog, l *ledger.Ledger) (*Result, error) {
	entries, err := f.entries()
	if err != nil {
		return nil, err
	}

	existing, err := catalog.ListIngredients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	byName := make(map[string]ledger.Ingredient, len(existing))
	for _, ing := range existing {
		byName[strings.ToLower(ing.Name)] = ing
	}

	result := &Result{}
	for _, e := range entries {
		ing, found := byName[strings.ToLower(e.name)]
		switch {
		case !found:
			ing = ledger.Ingredient{Name: e.name, Unit: e.unit, UnitPrice: e.price}
			result.Created++
		case ing.Unit != e.unit || !ing.UnitPrice.Equal(e.price):
			ing.Unit = e.unit
			ing.UnitPrice = e.price
			result.Updated++
		default:
			result.Unchanged++
		}
		if ing.ID, err = catalog.SaveIngredient(ctx, ing); err != nil {
			return nil, fmt.Errorf("save ingredient %q: %w", e.name, err)
		}

		stocked, err := applyStock(ctx, l, ing.ID, e)
		if err != nil {
			return nil, fmt.Errorf("opening stock %q: %w", e.name, err)
		}
		if stocked {
			result.Stocked++
		}
	}
	return result, nil
}

// applyStock reports whether a movement was written.
func applyStock(ctx context.Context, l *ledger.Ledger, id ledger.IngredientID, e entry) (bool, error) {
	if !e.opening.Valid && !e.min.Valid && !e.max.Valid {
		return false, nil
	}
	current, err := l.GetLevel(ctx, id)
	if err != nil {
		return false, err
	}

	target := current.CurrentStock
	if e.opening.Valid {
		target = e.opening.Decimal
	}
	if target.Equal(current.CurrentStock) &&
		sameThreshold(e.min, current.MinimumStock) &&
		sameThreshold(e.max, current.MaximumStock) {
		return false, nil
	}

	err = l.UpdateLevel(ctx, ledger.LevelUpdate{
		IngredientID: id,
		NewStock:     target,
		MinStock:     e.min,
		MaxStock:     e.max,
		ChangeType:   ledger.ChangeCorrection,
		Reason:       "opening stock",
	})
	return err == nil, err
}

// sameThreshold is true when want is absent or equal to have.
func sameThreshold(want, have decimal.NullDecimal) bool {
	if !want.Valid {
		return true
	}
	return have.Valid && have.Decimal.Equal(want.Decimal)
}
