package fields

// Catalog returns the field-type profiles in tie-break order.
func Catalog() []Profile {
	return append([]Profile(nil), catalog...)
}

// Types returns every field type in catalog order.
func Types() []FieldType {
	out := make([]FieldType, len(catalog))
	for i, p := range catalog {
		out[i] = p.Type
	}
	return out
}
