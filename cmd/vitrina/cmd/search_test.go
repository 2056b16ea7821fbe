package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrina-search/vitrina/internal/catalog"
	"github.com/vitrina-search/vitrina/internal/output"
	"github.com/vitrina-search/vitrina/internal/search"
)

func TestSearchCmd_AddedToRoot(t *testing.T) {
	// Given: the root command
	rootCmd := NewRootCmd()

	// When: looking for the search subcommand
	searchCmd, _, err := rootCmd.Find([]string{"search"})

	// Then: it exists with its flags
	require.NoError(t, err)
	assert.Equal(t, "search", searchCmd.Name())
	assert.NotNil(t, searchCmd.Flags().Lookup("sort"))
	assert.NotNil(t, searchCmd.Flags().Lookup("in-stock"))
}

func TestSearchCmd_RequiresProject(t *testing.T) {
	// Given: a search command without --project
	cmd := newSearchCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"кроссовки"})

	// When: executing
	err := cmd.Execute()

	// Then: cobra rejects the missing flag before any work happens
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project")
}

func TestSearchFormatText(t *testing.T) {
	// Given: a response with an in-stock and an out-of-stock item
	oldPrice := 7990.0
	resp := &search.Response{
		Query:  "кроссовки",
		Total:  2,
		TookMs: 12,
		Items: []search.Item{
			{
				Product: catalog.Product{
					Name:     "Кроссовки Nike Air",
					Price:    5990,
					OldPrice: &oldPrice,
					Currency: "RUB",
					InStock:  true,
					Category: "Обувь",
					URL:      "https://shop.example/p/1",
				},
				Score: 8.4,
			},
			{
				Product: catalog.Product{Name: "Кеды классические", Price: 2990},
				Score:   3.1,
			},
		},
	}

	buf := &bytes.Buffer{}

	// When: formatting as text
	err := formatText(output.New(buf), resp)

	// Then: the list is numbered with price and stock details
	require.NoError(t, err)
	got := buf.String()
	assert.Contains(t, got, `Found 2 results for "кроссовки" (12ms):`)
	assert.Contains(t, got, "1. Кроссовки Nike Air (score: 8.40)")
	assert.Contains(t, got, "5990.00 RUB | was 7990.00 RUB | Обувь | in stock")
	assert.Contains(t, got, "https://shop.example/p/1")
	assert.Contains(t, got, "2. Кеды классические (score: 3.10)")
	assert.Contains(t, got, "2990.00 RUB | out of stock")
}

func TestSearchFormatText_RelatedItems(t *testing.T) {
	// Given: a response carrying related products
	resp := &search.Response{
		Query:  "nike",
		Total:  1,
		TookMs: 3,
		Items: []search.Item{
			{Product: catalog.Product{Name: "Кроссовки Nike", Price: 5990, InStock: true}, Score: 5},
		},
		Related: &search.Related{
			Field: "brand",
			Value: "Nike",
			Items: []catalog.Product{{Name: "Футболка Nike"}},
		},
	}

	buf := &bytes.Buffer{}

	// When: formatting as text
	err := formatText(output.New(buf), resp)

	// Then: the related block names the field and the products
	require.NoError(t, err)
	got := buf.String()
	assert.Contains(t, got, `Related by brand "Nike":`)
	assert.Contains(t, got, "Футболка Nike")
}

func TestSearchFormatJSON_RoundTrips(t *testing.T) {
	// Given: a response
	resp := &search.Response{
		Query:  "nike",
		Total:  1,
		TookMs: 7,
		Items: []search.Item{
			{Product: catalog.Product{ID: "p1", Name: "Кроссовки Nike", Price: 5990}, Score: 4.2},
		},
	}

	cmd := &cobra.Command{}
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	// When: formatting as JSON
	err := formatJSON(cmd, resp)

	// Then: the output parses back into the same shape
	require.NoError(t, err)
	var decoded search.Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "nike", decoded.Query)
	require.Len(t, decoded.Items, 1)
	assert.Equal(t, "p1", decoded.Items[0].ID)
	assert.InDelta(t, 4.2, decoded.Items[0].Score, 0.001)
}

func TestFormatPrice(t *testing.T) {
	// Default currency is RUB, explicit currencies pass through
	assert.Equal(t, "5990.00 RUB", formatPrice(5990, ""))
	assert.Equal(t, "10.50 USD", formatPrice(10.5, "USD"))
}
