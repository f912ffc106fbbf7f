package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oidbt/bangumi-ani-getter/pkg/catalog"
)

// Wire shapes of the /v0/subjects response, one type per nesting level.
// Pointer fields let validation tell a missing field from a zero value;
// unknown attributes are ignored.
type (
	pageBody struct {
		Data   []entryBody `json:"data" validate:"required,dive"`
		Total  *int        `json:"total" validate:"required"`
		Limit  *int        `json:"limit" validate:"required"`
		Offset *int        `json:"offset" validate:"required"`
	}

	entryBody struct {
		ID      *int          `json:"id" validate:"required"`
		Name    *string       `json:"name" validate:"required"`
		NameCN  *string       `json:"name_cn" validate:"required"`
		Infobox []infoboxBody `json:"infobox" validate:"required,dive"`
	}

	infoboxBody struct {
		Key   *string       `json:"key" validate:"required"`
		Value *infoboxValue `json:"value" validate:"required"`
	}

	aliasItemBody struct {
		V *string `json:"v"`
	}

	// infoboxValue decodes the string-or-list union into a catalog.FieldValue.
	infoboxValue struct {
		value catalog.FieldValue
	}
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// UnmarshalJSON accepts either a JSON string or a list of {v: string} objects.
func (iv *infoboxValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty infobox value")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		iv.value = catalog.Scalar(s)
		return nil

	case '[':
		var items []aliasItemBody
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("infobox value items: %w", err)
		}
		out := make([]catalog.AliasItem, len(items))
		for i, item := range items {
			if item.V == nil {
				return fmt.Errorf("infobox value item %d: missing field v", i)
			}
			out[i] = catalog.AliasItem{V: *item.V}
		}
		iv.value = catalog.FieldValue{Kind: catalog.ItemsValue, Items: out}
		return nil

	default:
		return fmt.Errorf("infobox value must be a string or a list of {v: string}, got %.32s", trimmed)
	}
}

// decodePage parses and validates a response body. Every failure returned
// here is a contract violation.
func decodePage(data []byte) (*catalog.Page, error) {
	var body pageBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}

	if err := validate.Struct(&body); err != nil {
		return nil, fmt.Errorf("validate body: %w", err)
	}

	return body.toPage(), nil
}

func (b *pageBody) toPage() *catalog.Page {
	entries := make([]catalog.Entry, len(b.Data))
	for i, e := range b.Data {
		fields := make([]catalog.MetadataField, len(e.Infobox))
		for j, f := range e.Infobox {
			fields[j] = catalog.MetadataField{Key: *f.Key, Value: f.Value.value}
		}
		entries[i] = catalog.Entry{
			ID:      *e.ID,
			Name:    *e.Name,
			NameCN:  *e.NameCN,
			Infobox: fields,
		}
	}

	return &catalog.Page{
		Entries: entries,
		Total:   *b.Total,
		Limit:   *b.Limit,
		Offset:  *b.Offset,
	}
}
