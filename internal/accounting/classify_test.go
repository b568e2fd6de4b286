package accounting

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"canteenpos/backend/internal/domain"
)

func TestClassifyWithReason(t *testing.T) {
	cases := []struct {
		name     string
		register string
		payload  string
		class    Classification
		reason   string
	}{
		{
			name:     "register sale",
			register: "reg-1",
			payload:  `[{"name":"Tost","quantity":1}]`,
			class:    Eligible,
			reason:   ReasonEligible,
		},
		{
			name:    "no origin at all",
			payload: `[{"name":"Tost","quantity":1}]`,
			class:   Excluded,
			reason:  ReasonNoPOSOrigin,
		},
		{
			name:    "payload asserts pos origin",
			payload: `{"source":"pos","items":[{"name":"Tost"}]}`,
			class:   Eligible,
			reason:  ReasonEligible,
		},
		{
			name:    "first array element asserts pos origin",
			payload: `[{"name":"Tost","source":"pos"}]`,
			class:   Eligible,
			reason:  ReasonEligible,
		},
		{
			name:    "first nested item asserts pos origin",
			payload: `{"note":"lunch","items":[{"name":"Tost","source":"pos"},{"name":"Ayran"}]}`,
			class:   Eligible,
			reason:  ReasonEligible,
		},
		{
			name:    "later nested item does not assert pos origin",
			payload: `{"items":[{"name":"Ayran"},{"name":"Tost","source":"pos"}]}`,
			class:   Excluded,
			reason:  ReasonNoPOSOrigin,
		},
		{
			name:    "mobile sentinel without origin marker",
			payload: `{"source":"mobile_order","name":"Tost"}`,
			class:   Excluded,
			reason:  ReasonNoPOSOrigin,
		},
		{
			name:     "mobile sentinel object at register",
			register: "reg-1",
			payload:  `{"source":"mobile_order","items":[{"name":"Tost"}]}`,
			class:    Excluded,
			reason:   ReasonMobileOrderObject,
		},
		{
			name:     "delivery confirmation note",
			register: "reg-1",
			payload:  `{"note":"mobile order delivered","name":"Tost"}`,
			class:    Excluded,
			reason:   ReasonMobileOrderObject,
		},
		{
			name:     "note match is exact",
			register: "reg-1",
			payload:  `{"note":"Mobile order delivered","name":"Tost"}`,
			class:    Eligible,
			reason:   ReasonEligible,
		},
		{
			name:     "first array element is mobile order",
			register: "reg-1",
			payload:  `[{"name":"Tost","source":"mobile_order"},{"name":"Ayran"}]`,
			class:    Excluded,
			reason:   ReasonMobileOrderArray,
		},
		{
			name:     "later array element is mobile order",
			register: "reg-1",
			payload:  `[{"name":"Ayran"},{"name":"Tost","source":"mobile_order"}]`,
			class:    Eligible,
			reason:   ReasonEligible,
		},
		{
			name:     "empty payload at register",
			register: "reg-1",
			class:    Eligible,
			reason:   ReasonEligible,
		},
		{
			name:    "garbage payload without origin",
			payload: `{not json`,
			class:   Excluded,
			reason:  ReasonNoPOSOrigin,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := domain.SaleEvent{ID: "s-1", RegisterID: tc.register, ItemsPayload: []byte(tc.payload)}
			verdict := ClassifyWithReason(event)
			assert.Equal(t, tc.class, verdict.Class)
			assert.Equal(t, tc.reason, verdict.Reason)
			assert.Equal(t, tc.class, Classify(event))
		})
	}
}

func TestClassificationString(t *testing.T) {
	assert.Equal(t, "eligible", Eligible.String())
	assert.Equal(t, "excluded", Excluded.String())
}
