package accounting

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type LineItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (li LineItem) Cost() decimal.Decimal {
	return li.UnitCost.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

func (li LineItem) Profit() decimal.Decimal {
	return li.UnitPrice.Sub(li.UnitCost).Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Shape is the closed set of item payload layouts found in stored sales.
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeArray
	ShapeNested
	ShapeLegacy
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeNested:
		return "nested"
	case ShapeLegacy:
		return "legacy"
	default:
		return "empty"
	}
}

const itemsKey = "items"

var (
	nameKeys     = []string{"name", "product_name"}
	quantityKeys = []string{"quantity", "qty"}
	costKeys     = []string{"buying_price", "unit_cost", "cost"}
	priceKeys    = []string{"selling_price", "unit_price", "price"}
)

type payload struct {
	shape  Shape
	array  []any
	object map[string]any
}

func decodePayload(raw []byte) payload {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return payload{shape: ShapeEmpty}
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var v any
	if err := decoder.Decode(&v); err != nil {
		return payload{shape: ShapeEmpty}
	}
	return classifyShape(v)
}

func classifyShape(v any) payload {
	switch typed := v.(type) {
	case []any:
		return payload{shape: ShapeArray, array: typed}
	case map[string]any:
		if nested, ok := typed[itemsKey].([]any); ok {
			return payload{shape: ShapeNested, array: nested, object: typed}
		}
		return payload{shape: ShapeLegacy, object: typed}
	default:
		return payload{shape: ShapeEmpty}
	}
}

func DescribeShape(raw []byte) Shape {
	return decodePayload(raw).shape
}

// ExtractLineItems normalizes a stored items payload. Items tagged as
// mobile-order fulfillment are dropped. The returned slice is freshly
// allocated on every call.
func ExtractLineItems(raw []byte) []LineItem {
	items, _ := extractLineItems(raw)
	return items
}

// extractLineItems also returns the fields that had to fall back to their
// defaults, keyed "<item name>.<field>".
func extractLineItems(raw []byte) ([]LineItem, []string) {
	p := decodePayload(raw)

	var records []map[string]any
	switch p.shape {
	case ShapeArray, ShapeNested:
		records = make([]map[string]any, 0, len(p.array))
		for _, el := range p.array {
			if obj, ok := el.(map[string]any); ok {
				records = append(records, obj)
			}
		}
	case ShapeLegacy:
		records = []map[string]any{p.object}
	default:
		return []LineItem{}, nil
	}

	items := make([]LineItem, 0, len(records))
	var defaulted []string
	for _, rec := range records {
		if isMobileOrderTagged(rec) {
			continue
		}
		item, missing := toLineItem(rec)
		for _, field := range missing {
			defaulted = append(defaulted, item.Name+"."+field)
		}
		items = append(items, item)
	}
	return items, defaulted
}

// maxQuantity bounds a line's quantity. Anything larger is treated as
// malformed so the integer conversion cannot wrap.
var maxQuantity = decimal.NewFromInt(math.MaxInt32)

func toLineItem(rec map[string]any) (LineItem, []string) {
	var missing []string

	item := LineItem{Name: lookupString(rec, nameKeys)}

	qty, ok := lookupDecimal(rec, quantityKeys)
	if !ok || qty.LessThan(decimal.NewFromInt(1)) || qty.GreaterThan(maxQuantity) {
		missing = append(missing, "quantity")
		item.Quantity = 1
	} else {
		item.Quantity = int(qty.IntPart())
	}

	if item.UnitCost, ok = lookupDecimal(rec, costKeys); !ok {
		missing = append(missing, "unit_cost")
	}
	if item.UnitPrice, ok = lookupDecimal(rec, priceKeys); !ok {
		missing = append(missing, "unit_price")
	}
	return item, missing
}

func lookupString(rec map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := rec[key].(type) {
		case string:
			return v
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// lookupDecimal returns the first key holding a numeric value. Missing or
// malformed values yield zero and false.
func lookupDecimal(rec map[string]any, keys []string) (decimal.Decimal, bool) {
	for _, key := range keys {
		v, present := rec[key]
		if !present || v == nil {
			continue
		}
		if d, ok := toDecimal(v); ok {
			return d, true
		}
		return decimal.Zero, false
	}
	return decimal.Zero, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch typed := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(typed.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(typed))
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(typed), true
	case int:
		return decimal.NewFromInt(int64(typed)), true
	case int64:
		return decimal.NewFromInt(typed), true
	}
	return decimal.Zero, false
}
