package policy

import (
	"testing"

	"github.com/policydesk/api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestNormalize_Structured(t *testing.T) {
	text, err := Normalize(model.PolicyContent{
		Category:    "device_subsidy",
		DirectInput: boolPtr(false),
		Fields: map[string]string{
			"deviceModel": "Galaxy S24",
			"ratePlan":    "5G Premium",
			"amount":      "300,000",
		},
		FreeText: "Valid for new lines only.",
	})
	require.NoError(t, err)
	assert.Equal(t, "[device_subsidy]\nDevice model: Galaxy S24\nRate plan: 5G Premium\nSubsidy amount: 300,000\n\nValid for new lines only.", text)

	back, err := Denormalize(text)
	require.NoError(t, err)
	assert.Equal(t, "device_subsidy", back.Category)
	require.NotNil(t, back.DirectInput)
	assert.False(t, *back.DirectInput)
	assert.Equal(t, "Galaxy S24", back.Fields["deviceModel"])
	assert.Equal(t, "300,000", back.Fields["amount"])
	assert.Equal(t, "Valid for new lines only.", back.FreeText)
}

func TestNormalize_Direct(t *testing.T) {
	text, err := Normalize(model.PolicyContent{
		Category:    "notice",
		DirectInput: boolPtr(true),
		FreeText:    "Store closes early on Friday.\nSecond line.",
	})
	require.NoError(t, err)
	assert.Equal(t, "[notice:direct]\nStore closes early on Friday.\nSecond line.", text)

	back, err := Denormalize(text)
	require.NoError(t, err)
	assert.True(t, *back.DirectInput)
	assert.Equal(t, "Store closes early on Friday.\nSecond line.", back.FreeText)
}

func TestNormalize_MissingRequiredFields(t *testing.T) {
	_, err := Normalize(model.PolicyContent{
		Category:    "plan_discount",
		DirectInput: boolPtr(false),
		Fields:      map[string]string{"ratePlan": "Basic"},
	})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "required", verr.Fields["fields.discountRate"])
	assert.NotContains(t, verr.Fields, "fields.ratePlan")
}

func TestNormalize_UnknownCategory(t *testing.T) {
	_, err := Normalize(model.PolicyContent{Category: "lottery", FreeText: "x"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "oneof", verr.Fields["category"])
}

func TestInferLegacyDirectInput(t *testing.T) {
	tests := []struct {
		name    string
		content model.PolicyContent
		want    bool
	}{
		{
			name:    "free text only",
			content: model.PolicyContent{Category: "notice", FreeText: "hello"},
			want:    true,
		},
		{
			name:    "no free text",
			content: model.PolicyContent{Category: "notice"},
			want:    false,
		},
		{
			name: "partially filled fields count as structured",
			content: model.PolicyContent{
				Category: "device_subsidy",
				Fields:   map[string]string{"deviceModel": "Pixel 9"},
				FreeText: "note",
			},
			want: false,
		},
		{
			name: "blank field values are ignored",
			content: model.PolicyContent{
				Category: "device_subsidy",
				Fields:   map[string]string{"deviceModel": "  "},
				FreeText: "note",
			},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferLegacyDirectInput(tt.content))
		})
	}
}

func TestNormalize_LegacyRecordWithoutFlag(t *testing.T) {
	text, err := Normalize(model.PolicyContent{Category: "notice", FreeText: "Closed Monday"})
	require.NoError(t, err)
	assert.Equal(t, "[notice:direct]\nClosed Monday", text)
}

func TestNormalize_FreeTextThatLooksLikeAField(t *testing.T) {
	in := model.PolicyContent{
		Category:    "plan_discount",
		DirectInput: boolPtr(false),
		Fields:      map[string]string{"ratePlan": "5G Lite", "discountRate": "10%"},
		FreeText:    "Rate plan: 5G Max is excluded.\nDiscount rate: not stackable",
	}
	text, err := Normalize(in)
	require.NoError(t, err)

	back, err := Denormalize(text)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ratePlan": "5G Lite", "discountRate": "10%"}, back.Fields)
	assert.Equal(t, in.FreeText, back.FreeText)
}

func TestDenormalize_PlainText(t *testing.T) {
	back, err := Denormalize("just some text")
	require.NoError(t, err)
	assert.Equal(t, "", back.Category)
	assert.True(t, *back.DirectInput)
	assert.Equal(t, "just some text", back.FreeText)
}

func TestResolveApplyContent(t *testing.T) {
	text, err := ResolveApplyContent("  raw text ", nil)
	require.NoError(t, err)
	assert.Equal(t, "raw text", text)

	_, err = ResolveApplyContent("   ", nil)
	assert.Error(t, err)

	text, err = ResolveApplyContent("ignored", &model.PolicyContent{Category: "notice", FreeText: "structured wins"})
	require.NoError(t, err)
	assert.Equal(t, "[notice:direct]\nstructured wins", text)
}

func TestCategories_Sorted(t *testing.T) {
	cats := Categories()
	assert.Contains(t, cats, "device_subsidy")
	assert.IsIncreasing(t, cats)
}
