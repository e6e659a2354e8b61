package policy

import (
	"strings"

	"github.com/policydesk/api/internal/model"
)

// Normalize renders structured content into applyContent text.
//
// Structured content becomes a "[category]" header, one "Label: value" line
// per filled field in schema order and, after a blank line, the free text.
// Direct input becomes a "[category:direct]" header followed by the free
// text verbatim.
func Normalize(c model.PolicyContent) (string, error) {
	schema, ok := Lookup(c.Category)
	if !ok {
		return "", invalid("category", "oneof")
	}

	direct := InferLegacyDirectInput(c)
	if c.DirectInput != nil {
		direct = *c.DirectInput
	}
	freeText := strings.TrimSpace(c.FreeText)

	var b strings.Builder
	b.WriteString(header(schema.Category, direct))

	if direct {
		if freeText == "" {
			return "", invalid("freeText", "required")
		}
		b.WriteString("\n")
		b.WriteString(freeText)
		return b.String(), nil
	}

	missing := map[string]string{}
	for _, f := range schema.Fields {
		v := strings.TrimSpace(c.Fields[f.Key])
		if v == "" {
			if f.Required {
				missing["fields."+f.Key] = "required"
			}
			continue
		}
		b.WriteString("\n")
		b.WriteString(f.Label)
		b.WriteString(": ")
		b.WriteString(strings.ReplaceAll(v, "\n", " "))
	}
	if len(missing) > 0 {
		return "", &model.ValidationError{Fields: missing}
	}
	if freeText != "" {
		b.WriteString("\n\n")
		b.WriteString(freeText)
	}
	return b.String(), nil
}

// Denormalize parses applyContent text produced by Normalize. Text without a
// known category header is returned as direct input of category "".
func Denormalize(text string) (model.PolicyContent, error) {
	text = strings.TrimSpace(text)
	first, rest, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)

	direct := true
	if !strings.HasPrefix(first, "[") || !strings.HasSuffix(first, "]") {
		return model.PolicyContent{DirectInput: &direct, FreeText: text}, nil
	}
	category := strings.TrimSuffix(strings.TrimPrefix(first, "["), "]")
	category, isDirect := strings.CutSuffix(category, ":direct")

	schema, ok := Lookup(category)
	if !ok {
		return model.PolicyContent{}, invalid("category", "oneof")
	}

	if isDirect {
		return model.PolicyContent{
			Category:    schema.Category,
			DirectInput: &direct,
			FreeText:    strings.TrimSpace(rest),
		}, nil
	}

	direct = false
	out := model.PolicyContent{
		Category:    schema.Category,
		DirectInput: &direct,
		Fields:      map[string]string{},
	}
	lines := strings.Split(rest, "\n")
	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			break
		}
		label, value, found := strings.Cut(line, ":")
		if !found {
			break
		}
		f, ok := schema.fieldByLabel(strings.TrimSpace(label))
		if !ok {
			break
		}
		out.Fields[f.Key] = strings.TrimSpace(value)
	}
	out.FreeText = strings.TrimSpace(strings.Join(lines[i:], "\n"))
	return out, nil
}

// ResolveApplyContent returns the applyContent text for a request that sends
// either raw text or structured content. Structured content wins.
func ResolveApplyContent(text string, content *model.PolicyContent) (string, error) {
	if content != nil {
		return Normalize(*content)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", invalid("applyContent", "required")
	}
	return text, nil
}

// InferLegacyDirectInput guesses the direct-input flag of records saved
// before the flag existed. Legacy compatibility only: a record counts as
// direct input when none of its category's structured fields has a value
// and it has free text. Partially filled fields count as structured.
func InferLegacyDirectInput(c model.PolicyContent) bool {
	if strings.TrimSpace(c.FreeText) == "" {
		return false
	}
	schema, ok := Lookup(c.Category)
	if !ok {
		for _, v := range c.Fields {
			if strings.TrimSpace(v) != "" {
				return false
			}
		}
		return true
	}
	return !schema.hasValues(c.Fields)
}
