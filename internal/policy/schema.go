// Package policy converts structured policy content to and from the
// applyContent text the relay renders.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/policydesk/api/internal/model"
)

// Field is one structured input of a category
type Field struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// Schema lists the structured fields of a category in render order
type Schema struct {
	Category string  `json:"category"`
	Title    string  `json:"title"`
	Fields   []Field `json:"fields"`
}

var schemas = map[string]Schema{
	"device_subsidy": {
		Category: "device_subsidy",
		Title:    "Device subsidy",
		Fields: []Field{
			{Key: "deviceModel", Label: "Device model", Required: true},
			{Key: "ratePlan", Label: "Rate plan", Required: true},
			{Key: "amount", Label: "Subsidy amount", Required: true},
			{Key: "conditions", Label: "Conditions"},
		},
	},
	"plan_discount": {
		Category: "plan_discount",
		Title:    "Plan discount",
		Fields: []Field{
			{Key: "ratePlan", Label: "Rate plan", Required: true},
			{Key: "discountRate", Label: "Discount rate", Required: true},
			{Key: "period", Label: "Discount period"},
		},
	},
	"port_in": {
		Category: "port_in",
		Title:    "Port-in incentive",
		Fields: []Field{
			{Key: "previousCarrier", Label: "Previous carrier", Required: true},
			{Key: "incentive", Label: "Incentive", Required: true},
			{Key: "ratePlan", Label: "Rate plan"},
		},
	},
	"accessory_bundle": {
		Category: "accessory_bundle",
		Title:    "Accessory bundle",
		Fields: []Field{
			{Key: "items", Label: "Items", Required: true},
			{Key: "price", Label: "Bundle price", Required: true},
		},
	},
	"notice": {
		Category: "notice",
		Title:    "Store notice",
		Fields: []Field{
			{Key: "title", Label: "Title", Required: true},
		},
	},
}

// Lookup returns the schema of a category
func Lookup(category string) (Schema, bool) {
	s, ok := schemas[strings.TrimSpace(category)]
	return s, ok
}

// Categories returns all known categories, sorted
func Categories() []string {
	out := make([]string, 0, len(schemas))
	for k := range schemas {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s Schema) fieldByLabel(label string) (Field, bool) {
	for _, f := range s.Fields {
		if strings.EqualFold(f.Label, label) {
			return f, true
		}
	}
	return Field{}, false
}

func (s Schema) hasValues(fields map[string]string) bool {
	for _, f := range s.Fields {
		if strings.TrimSpace(fields[f.Key]) != "" {
			return true
		}
	}
	return false
}

func header(category string, direct bool) string {
	if direct {
		return fmt.Sprintf("[%s:direct]", category)
	}
	return fmt.Sprintf("[%s]", category)
}

func invalid(field, rule string) error {
	return &model.ValidationError{Fields: map[string]string{field: rule}}
}
