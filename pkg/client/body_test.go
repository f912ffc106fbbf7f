package client

import (
	"strings"
	"testing"

	"github.com/oidbt/bangumi-ani-getter/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePage_Valid(t *testing.T) {
	body := `{
		"data": [
			{
				"id": 8, "name": "Code Geass", "name_cn": "反叛的鲁路修", "date": "2006-10-05",
				"infobox": [
					{"key": "中文名", "value": "反叛的鲁路修"},
					{"key": "别名", "value": [{"v": "Lelouch"}, {"k": "en", "v": "CG"}]},
					{"key": "别名", "value": "ignored"}
				]
			},
			{"id": 9, "name": "x", "name_cn": "", "infobox": []}
		],
		"total": 250, "limit": 100, "offset": 0
	}`

	page, err := decodePage([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, 250, page.Total)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, 0, page.Offset)
	require.Len(t, page.Entries, 2)

	first := page.Entries[0]
	assert.Equal(t, 8, first.ID)
	assert.Equal(t, "反叛的鲁路修", first.NameCN)
	require.Len(t, first.Infobox, 3)
	assert.Equal(t, catalog.Scalar("反叛的鲁路修"), first.Infobox[0].Value)
	assert.Equal(t, catalog.Items("Lelouch", "CG"), first.Infobox[1].Value)
	assert.Equal(t, []string{"Lelouch", "CG"}, catalog.ExtractAliases(first.Infobox))

	second := page.Entries[1]
	assert.Equal(t, "", second.NameCN)
	assert.Empty(t, second.Infobox)
}

func TestDecodePage_EmptyData(t *testing.T) {
	page, err := decodePage([]byte(`{"data": [], "total": 0, "limit": 100, "offset": 0}`))
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.Equal(t, 0, page.Total)
}

func TestDecodePage_ContractViolations(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{"malformed json", `<html>bad gateway</html>`, "decode body"},
		{"missing total", `{"data": [], "limit": 100, "offset": 0}`, "total"},
		{"missing data", `{"total": 1, "limit": 100, "offset": 0}`, "data"},
		{"null data", `{"data": null, "total": 1, "limit": 100, "offset": 0}`, "data"},
		{"mistyped total", `{"data": [], "total": "many", "limit": 100, "offset": 0}`, "decode body"},
		{"mistyped id", `{"data": [{"id": "8", "name": "a", "name_cn": "b", "infobox": []}], "total": 1, "limit": 100, "offset": 0}`, "decode body"},
		{"missing name_cn", `{"data": [{"id": 8, "name": "a", "infobox": []}], "total": 1, "limit": 100, "offset": 0}`, "name_cn"},
		{"missing infobox", `{"data": [{"id": 8, "name": "a", "name_cn": "b"}], "total": 1, "limit": 100, "offset": 0}`, "infobox"},
		{"missing infobox key", `{"data": [{"id": 8, "name": "a", "name_cn": "b", "infobox": [{"value": "x"}]}], "total": 1, "limit": 100, "offset": 0}`, "key"},
		{"null infobox value", `{"data": [{"id": 8, "name": "a", "name_cn": "b", "infobox": [{"key": "k", "value": null}]}], "total": 1, "limit": 100, "offset": 0}`, "value"},
		{"numeric infobox value", `{"data": [{"id": 8, "name": "a", "name_cn": "b", "infobox": [{"key": "k", "value": 3}]}], "total": 1, "limit": 100, "offset": 0}`, "string or a list"},
		{"item without v", `{"data": [{"id": 8, "name": "a", "name_cn": "b", "infobox": [{"key": "别名", "value": [{"k": "x"}]}]}], "total": 1, "limit": 100, "offset": 0}`, "missing field v"},
		{"item with numeric v", `{"data": [{"id": 8, "name": "a", "name_cn": "b", "infobox": [{"key": "别名", "value": [{"v": 1}]}]}], "total": 1, "limit": 100, "offset": 0}`, "items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := decodePage([]byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, page)
			assert.True(t, strings.Contains(err.Error(), tt.contains),
				"error %q should mention %q", err.Error(), tt.contains)
		})
	}
}
