package accounting

import (
	"canteenpos/backend/internal/domain"
)

// Payload sentinels. Historical records predate an explicit origin field, so
// origin is inferred from these literal markers. Comparisons are exact.
const (
	SourceKey                = "source"
	NoteKey                  = "note"
	SourcePOS                = "pos"
	SourceMobileOrder        = "mobile_order"
	DeliveryConfirmationNote = "mobile order delivered"
)

type Classification int

const (
	Eligible Classification = iota
	Excluded
)

func (c Classification) String() string {
	if c == Excluded {
		return "excluded"
	}
	return "eligible"
}

const (
	ReasonEligible          = "eligible"
	ReasonNoPOSOrigin       = "no_pos_origin"
	ReasonMobileOrderObject = "mobile_order_object"
	ReasonMobileOrderArray  = "mobile_order_array"
)

// Verdict is a classification plus the rule that produced it.
type Verdict struct {
	Class  Classification
	Reason string
}

func Classify(event domain.SaleEvent) Classification {
	return ClassifyWithReason(event).Class
}

func ClassifyWithReason(event domain.SaleEvent) Verdict {
	p := decodePayload(event.ItemsPayload)

	if event.RegisterID == "" && !assertsPOSOrigin(p) {
		return Verdict{Class: Excluded, Reason: ReasonNoPOSOrigin}
	}

	switch p.shape {
	case ShapeNested, ShapeLegacy:
		if isMobileOrderTagged(p.object) || isDeliveryNote(p.object) {
			return Verdict{Class: Excluded, Reason: ReasonMobileOrderObject}
		}
	case ShapeArray:
		if len(p.array) > 0 {
			if first, ok := p.array[0].(map[string]any); ok && isMobileOrderTagged(first) {
				return Verdict{Class: Excluded, Reason: ReasonMobileOrderArray}
			}
		}
	}

	return Verdict{Class: Eligible, Reason: ReasonEligible}
}

func assertsPOSOrigin(p payload) bool {
	switch p.shape {
	case ShapeLegacy:
		return p.object[SourceKey] == SourcePOS
	case ShapeNested:
		return p.object[SourceKey] == SourcePOS || firstItemIsPOS(p.array)
	case ShapeArray:
		return firstItemIsPOS(p.array)
	}
	return false
}

func firstItemIsPOS(items []any) bool {
	if len(items) == 0 {
		return false
	}
	first, ok := items[0].(map[string]any)
	return ok && first[SourceKey] == SourcePOS
}

func isMobileOrderTagged(obj map[string]any) bool {
	return obj[SourceKey] == SourceMobileOrder
}

func isDeliveryNote(obj map[string]any) bool {
	return obj[NoteKey] == DeliveryConfirmationNote
}
