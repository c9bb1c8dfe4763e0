package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/refundd/internal/llm"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

const vehiclePrompt = `You classify vehicles for parking restriction checks.

Categories: sedan, compact, coupe, suv, crossover, minivan, pickup_truck,
full_size_van, motorcycle, commercial_truck, rv, trailer, other.

Given the customer's vehicle and the location's restriction text, respond
with a single JSON object and nothing else:
{
  "vehicle_category": one category,
  "restricted_categories": [categories the restriction text excludes],
  "is_mismatch": true if the vehicle category is NOT restricted,
  "reasoning": one sentence,
  "confidence": "high" | "medium" | "low"
}`

// LLMVehicleClassifier implements VehicleClassifier over an llm.Completer.
type LLMVehicleClassifier struct {
	completer llm.Completer
}

// NewLLMVehicleClassifier creates an LLMVehicleClassifier.
func NewLLMVehicleClassifier(c llm.Completer) *LLMVehicleClassifier {
	return &LLMVehicleClassifier{completer: c}
}

type vehicleReply struct {
	Category   string   `json:"vehicle_category"`
	Restricted []string `json:"restricted_categories"`
	IsMismatch bool     `json:"is_mismatch"`
	Reasoning  string   `json:"reasoning"`
	Confidence string   `json:"confidence"`
}

// ClassifyVehicle implements VehicleClassifier. An unknown vehicle
// category is an error; unknown restricted categories are skipped.
func (c *LLMVehicleClassifier) ClassifyVehicle(ctx context.Context, vehicle, restrictions string) (VehicleClassification, error) {
	prompt := fmt.Sprintf("Vehicle: %s\nRestrictions: %s", vehicle, restrictions)
	reply, err := c.completer.Complete(ctx, vehiclePrompt, prompt)
	if err != nil {
		return VehicleClassification{}, fmt.Errorf("vehicle classification call: %w", err)
	}

	var r vehicleReply
	if err := llm.DecodeJSON(reply, &r); err != nil {
		return VehicleClassification{}, err
	}

	category, ok := ParseVehicleCategory(r.Category)
	if !ok {
		return VehicleClassification{}, fmt.Errorf("%w: unknown vehicle category %q", llm.ErrInvalidResponse, r.Category)
	}

	out := VehicleClassification{
		Category:   category,
		IsMismatch: r.IsMismatch,
		Reasoning:  strings.TrimSpace(r.Reasoning),
	}
	for _, s := range r.Restricted {
		if rc, ok := ParseVehicleCategory(s); ok {
			out.Restricted = append(out.Restricted, rc)
		}
	}
	if conf, ok := ticket.ParseConfidence(r.Confidence); ok {
		out.Confidence = conf
	} else {
		out.Confidence = ticket.ConfidenceLow
	}
	return out, nil
}

var _ VehicleClassifier = (*LLMVehicleClassifier)(nil)
