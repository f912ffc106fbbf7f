package catalog

// AliasKey is the infobox key under which Bangumi lists alternate names.
const AliasKey = "别名"

// ExtractAliases returns the aliases declared by the first infobox field
// keyed AliasKey. Later duplicates are ignored. When no field matches the
// result is an empty, non-nil slice so that it encodes as [] rather than null.
func ExtractAliases(fields []MetadataField) []string {
	for _, f := range fields {
		if f.Key == AliasKey {
			return f.Value.Strings()
		}
	}
	return []string{}
}
