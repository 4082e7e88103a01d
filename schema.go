package records

// SchemaRefPrefix is prepended to related type names in relationship
// schemas.
const SchemaRefPrefix = "#/components/schemas/"

// Schema describes the type's raw representation as an OpenAPI object
// schema. Attribute types follow their transform; relationships reference
// the related type by name and carry x-relationship metadata.
func (t *RecordType) Schema() map[string]any {
	properties := map[string]any{}
	pk := t.PrimaryKey()
	if !t.Fields().Has(pk) {
		properties[pk] = map[string]any{"readOnly": true}
	}
	t.Fields().Each(func(d FieldDescriptor) bool {
		if d.IsRelationship() {
			properties[d.Name] = relationshipSchema(d)
			return true
		}
		properties[d.Name] = attributeSchema(d.Transform)
		return true
	})
	return map[string]any{
		"type":          "object",
		"title":         t.name,
		"x-resource":    t.ResourceName(),
		"x-primary-key": pk,
		"properties":    properties,
	}
}

func attributeSchema(transform string) map[string]any {
	switch transform {
	case "string":
		return map[string]any{"type": "string"}
	case "number":
		return map[string]any{"type": "number"}
	case "integer":
		return map[string]any{"type": "integer"}
	case "boolean":
		return map[string]any{"type": "boolean"}
	case "date":
		return map[string]any{"type": "string", "format": "date-time"}
	case "json":
		return map[string]any{"type": "object", "additionalProperties": true}
	default:
		return map[string]any{}
	}
}

func relationshipSchema(d FieldDescriptor) map[string]any {
	ref := map[string]any{"$ref": SchemaRefPrefix + lastSegment(d.Related)}
	meta := map[string]any{"type": d.Related, "cardinality": d.Cardinality.String()}
	if d.Cardinality == CardinalityMany {
		return map[string]any{"type": "array", "items": ref, "x-relationship": meta}
	}
	return map[string]any{"allOf": []any{ref}, "x-relationship": meta}
}
