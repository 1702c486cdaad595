// Package nodeconfig provides the personalization variable catalog, message template resolution
// and the JSON schemas of each node type configuration.
package nodeconfig

import (
	"slices"
	"strings"

	"github.com/dukex/journeys/pkg/models"
)

// FieldRefPrefix marks a personalization value as a reference to a context field.
const FieldRefPrefix = "$"

type catalogEntry struct {
	models.Variable

	// source is the context field path the variable reads when nothing overrides it.
	source string
}

var catalog = []catalogEntry{
	{models.Variable{Name: "first_name", Description: "Customer first name"}, "customer.first_name"},
	{models.Variable{Name: "last_name", Description: "Customer last name"}, "customer.last_name"},
	{models.Variable{Name: "full_name", Description: "Customer full name"}, "customer.full_name"},
	{models.Variable{Name: "email", Description: "Customer email address"}, "customer.email"},
	{models.Variable{Name: "phone", Description: "Customer phone number"}, "customer.phone"},
	{models.Variable{Name: "account_balance", Description: "Current account balance"}, "customer.balance"},
	{models.Variable{Name: "account_type", Description: "Account product type"}, "customer.account_type"},
	{models.Variable{Name: "signup_date", Description: "Date the customer signed up"}, "customer.signup_date"},
	{models.Variable{Name: "last_login", Description: "Date of the last login"}, "customer.last_login"},
	{models.Variable{Name: "referral_code", Description: "Customer referral code"}, "customer.referral_code"},
	{models.Variable{Name: "unsubscribe_url", Description: "Link to opt out of communications"}, "links.unsubscribe"},
}

// AvailableVariables returns the fixed catalog in declaration order followed by the journey's
// custom variables sorted by name. A custom key that shadows a catalog name is listed once.
func AvailableVariables(custom map[string]string) []models.Variable {
	variables := make([]models.Variable, 0, len(catalog)+len(custom))
	known := make(map[string]bool, len(catalog))

	for _, entry := range catalog {
		variables = append(variables, entry.Variable)
		known[entry.Name] = true
	}

	customNames := make([]string, 0, len(custom))
	for name := range custom {
		if !known[name] {
			customNames = append(customNames, name)
		}
	}

	slices.Sort(customNames)

	for _, name := range customNames {
		variables = append(variables, models.Variable{Name: name, Description: "Custom journey variable"})
	}

	return variables
}

// Bindings builds the variable values used to render an action's content. Catalog variables
// read their source field from ctx; journey custom variables override them as literals and the
// node's personalization map overrides both. Values prefixed with "$" are read from ctx.
// Variables that cannot be resolved are omitted so the token stays verbatim.
func Bindings(personalization, custom map[string]string, ctx map[string]any) map[string]any {
	bindings := make(map[string]any, len(catalog)+len(custom)+len(personalization))

	for _, entry := range catalog {
		if value, ok := Lookup(ctx, entry.source); ok {
			bindings[entry.Name] = value
		}
	}

	for _, layer := range []map[string]string{custom, personalization} {
		for name, value := range layer {
			resolved, ok := bindingValue(value, ctx)
			if !ok {
				delete(bindings, name)

				continue
			}

			bindings[name] = resolved
		}
	}

	return bindings
}

func bindingValue(value string, ctx map[string]any) (any, bool) {
	path, isRef := strings.CutPrefix(value, FieldRefPrefix)
	if !isRef {
		return value, true
	}

	return Lookup(ctx, path)
}

// Lookup reads a dotted path ("customer.balance") from a nested map. A key containing dots
// that exists verbatim at the top level wins over the nested interpretation.
func Lookup(ctx map[string]any, path string) (any, bool) {
	if ctx == nil || path == "" {
		return nil, false
	}

	if value, ok := ctx[path]; ok {
		return value, true
	}

	var current any = ctx

	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
