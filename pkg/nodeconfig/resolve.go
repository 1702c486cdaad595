package nodeconfig

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/dukex/journeys/pkg/models"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// Resolve substitutes {{name}} tokens with values from vars. Names are looked up as
// variable names first and then as dotted context paths. Unresolved tokens are left verbatim.
func Resolve(template string, vars map[string]any) string {
	return tokenPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := tokenPattern.FindStringSubmatch(token)[1]

		value, ok := Lookup(vars, name)
		if !ok || value == nil {
			return token
		}

		return format(value)
	})
}

// RenderContent resolves every template field of an action's content.
func RenderContent(content models.MessageContent, vars map[string]any) models.MessageContent {
	return models.MessageContent{
		Subject: Resolve(content.Subject, vars),
		Body:    Resolve(content.Body, vars),
		CTAText: Resolve(content.CTAText, vars),
		CTAURL:  Resolve(content.CTAURL, vars),
	}
}

// RenderAction resolves an action's content against the execution context, layering the
// catalog, the journey's custom variables and the node personalization map.
func RenderAction(config *models.ActionConfig, custom map[string]string, ctx map[string]any) models.MessageContent {
	vars := Bindings(config.Personalization, custom, ctx)

	// Context paths stay addressable from templates ({{customer.city}}).
	for key, value := range ctx {
		if _, exists := vars[key]; !exists {
			vars[key] = value
		}
	}

	return RenderContent(config.Content, vars)
}

func format(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
