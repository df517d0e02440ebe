package tools

import "errors"

// ErrInvalidSchema means a parameter schema could not be cleaned into a
// structurally valid form.
var ErrInvalidSchema = errors.New("invalid parameter schema")

// schemaAllowList is the set of structural keys a declaration may carry
// after cleaning. Everything else (vendor extensions, $schema, $defs,
// additionalProperties and the like) is dropped.
var schemaAllowList = map[string]bool{
	"type":             true,
	"properties":       true,
	"required":         true,
	"description":      true,
	"enum":             true,
	"items":            true,
	"title":            true,
	"default":          true,
	"format":           true,
	"pattern":          true,
	"minimum":          true,
	"maximum":          true,
	"exclusiveMinimum": true,
	"exclusiveMaximum": true,
	"minLength":        true,
	"maxLength":        true,
	"minItems":         true,
	"maxItems":         true,
}

// CleanSchema reduces a parameter schema to the structural subset the
// model contract supports, recursively. The input is never mutated.
//
// After cleaning, every entry in a "required" list names a key present
// in that object's "properties"; a "required" list that would end up
// empty, or that has no "properties" to reference, is removed entirely.
func CleanSchema(schema map[string]any) (map[string]any, error) {
	if schema == nil {
		return nil, nil
	}

	if t, ok := schema["type"]; ok {
		if _, isString := t.(string); !isString {
			return nil, ErrInvalidSchema
		}
	}

	out := make(map[string]any, len(schema))
	for key, value := range schema {
		if !schemaAllowList[key] {
			continue
		}

		switch key {
		case "properties":
			props, ok := value.(map[string]any)
			if !ok {
				return nil, ErrInvalidSchema
			}
			cleanedProps := make(map[string]any, len(props))
			for name, prop := range props {
				propMap, ok := prop.(map[string]any)
				if !ok {
					return nil, ErrInvalidSchema
				}
				cleaned, err := CleanSchema(propMap)
				if err != nil {
					return nil, err
				}
				cleanedProps[name] = cleaned
			}
			out[key] = cleanedProps

		case "items":
			switch items := value.(type) {
			case map[string]any:
				cleaned, err := CleanSchema(items)
				if err != nil {
					return nil, err
				}
				out[key] = cleaned
			case []any:
				cleanedItems := make([]any, 0, len(items))
				for _, item := range items {
					itemMap, ok := item.(map[string]any)
					if !ok {
						return nil, ErrInvalidSchema
					}
					cleaned, err := CleanSchema(itemMap)
					if err != nil {
						return nil, err
					}
					cleanedItems = append(cleanedItems, cleaned)
				}
				out[key] = cleanedItems
			default:
				return nil, ErrInvalidSchema
			}

		default:
			out[key] = value
		}
	}

	pruneRequired(out)
	return out, nil
}

// pruneRequired drops "required" entries that reference properties the
// schema does not declare, and the list itself when nothing survives.
func pruneRequired(schema map[string]any) {
	raw, ok := schema["required"]
	if !ok {
		return
	}

	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		delete(schema, "required")
		return
	}

	var names []string
	switch list := raw.(type) {
	case []string:
		names = list
	case []any:
		for _, v := range list {
			if s, ok := v.(string); ok {
				names = append(names, s)
			}
		}
	default:
		delete(schema, "required")
		return
	}

	kept := make([]string, 0, len(names))
	for _, name := range names {
		if _, declared := props[name]; declared {
			kept = append(kept, name)
		}
	}

	if len(kept) == 0 {
		delete(schema, "required")
		return
	}
	schema["required"] = kept
}
