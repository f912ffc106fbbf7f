// Package catalog holds the Bangumi subject catalog model shared by the
// fetcher, the poller and the stores.
package catalog

// Page is one paginated response of the subjects listing.
type Page struct {
	Entries []Entry
	Total   int
	Limit   int
	Offset  int
}

// Entry is a single subject as listed by the catalog.
type Entry struct {
	ID      int
	Name    string
	NameCN  string
	Infobox []MetadataField
}

// MetadataField is one key/value pair of a subject's infobox.
type MetadataField struct {
	Key   string
	Value FieldValue
}

// ValueKind discriminates the two shapes an infobox value can take.
type ValueKind int

const (
	// ScalarValue is a bare string value.
	ScalarValue ValueKind = iota

	// ItemsValue is a list of {v: string} objects.
	ItemsValue
)

// String returns the kind name used in logs and validation messages.
func (k ValueKind) String() string {
	switch k {
	case ScalarValue:
		return "scalar"
	case ItemsValue:
		return "items"
	default:
		return "unknown"
	}
}

// FieldValue is the tagged union stored in MetadataField.Value.
// Only the member selected by Kind is meaningful.
type FieldValue struct {
	Kind   ValueKind
	Scalar string
	Items  []AliasItem
}

// AliasItem is one element of a list-shaped infobox value.
type AliasItem struct {
	V string
}

// Scalar builds a string-shaped FieldValue.
func Scalar(s string) FieldValue {
	return FieldValue{Kind: ScalarValue, Scalar: s}
}

// Items builds a list-shaped FieldValue from the given item texts.
func Items(vs ...string) FieldValue {
	items := make([]AliasItem, len(vs))
	for i, v := range vs {
		items[i] = AliasItem{V: v}
	}
	return FieldValue{Kind: ItemsValue, Items: items}
}

// Strings normalizes the value to a sequence of strings: a scalar becomes a
// single-element slice, items become their V attributes in order.
func (v FieldValue) Strings() []string {
	if v.Kind == ScalarValue {
		return []string{v.Scalar}
	}

	out := make([]string, len(v.Items))
	for i, item := range v.Items {
		out[i] = item.V
	}
	return out
}

// Record is the persisted form of a subject. Records are keyed by ID and
// are always written whole.
type Record struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	NameCN    string   `json:"name_cn"`
	NameAlias []string `json:"name_alias"`
}

// NewRecord derives the persisted record for an entry.
func NewRecord(e Entry) Record {
	return Record{
		ID:        e.ID,
		Name:      e.Name,
		NameCN:    e.NameCN,
		NameAlias: ExtractAliases(e.Infobox),
	}
}

// Records maps every entry of the page to its record, preserving order.
func (p *Page) Records() []Record {
	records := make([]Record, 0, len(p.Entries))
	for _, e := range p.Entries {
		records = append(records, NewRecord(e))
	}
	return records
}
