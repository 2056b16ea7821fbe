package ui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadModel_InitialView(t *testing.T) {
	// Given: a fresh model before the first status write
	model := newLoadModel("demo")
	model.styles = NoColorStyles()

	// When: rendering
	view := model.View()

	// Then: the header names the project and all phases show
	assert.Contains(t, view, "Vitrina Feed • demo")
	assert.Contains(t, view, "Download")
	assert.Contains(t, view, "Index")
	assert.Contains(t, view, "Waiting for status...")
}

func TestLoadModel_ProgressDisplay(t *testing.T) {
	// Given: a model mid-load
	model := newLoadModel("demo")
	model.styles = NoColorStyles()

	// When: an indexing observation arrives
	updated, _ := model.Update(progressMsg{
		Stage:    StageIndexing,
		Percent:  50,
		Message:  "Индексация 120 товаров...",
		Products: 120,
	})
	view := updated.View()

	// Then: percent, message, and product count show
	assert.Contains(t, view, "50%")
	assert.Contains(t, view, "Индексация 120 товаров...")
	assert.Contains(t, view, "120 products")
}

func TestLoadModel_DoneQuitsAndSummarizes(t *testing.T) {
	// Given: a model that receives the load outcome
	model := newLoadModel("demo")
	model.styles = NoColorStyles()

	updated, cmd := model.Update(doneMsg{
		ShopName:   "Спорт Мастер",
		Products:   120,
		Categories: 8,
		Duration:   2 * time.Second,
	})

	// Then: the model quits and the final panel carries the counts
	require.NotNil(t, cmd)
	view := updated.View()
	assert.Contains(t, view, "Feed Loaded")
	assert.Contains(t, view, "Спорт Мастер")
	assert.Contains(t, view, "120")
	assert.Contains(t, view, "8")
}

func TestLoadModel_FailurePanel(t *testing.T) {
	model := newLoadModel("demo")
	model.styles = NoColorStyles()

	updated, _ := model.Update(doneMsg{Err: errors.New("feed exceeds 500MB")})
	view := updated.View()

	assert.Contains(t, view, "Feed Load Failed")
	assert.Contains(t, view, "feed exceeds 500MB")
}

func TestLoadModel_StockSummary(t *testing.T) {
	model := newLoadModel("demo")
	model.styles = NoColorStyles()

	updated, _ := model.Update(doneMsg{Updated: 42, Duration: time.Second})
	view := updated.View()

	assert.Contains(t, view, "Stock Updated")
	assert.Contains(t, view, "42 products")
}

func TestLoadModel_QuitKey(t *testing.T) {
	model := newLoadModel("")

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

	require.NotNil(t, cmd)
	assert.Contains(t, updated.View(), "Cancelled")
}

func TestLoadModel_WindowResizeClampsBar(t *testing.T) {
	model := newLoadModel("")

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 24, Height: 10})

	m := updated.(*loadModel)
	assert.Equal(t, 20, m.bar.Width)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{450 * time.Millisecond, "450ms"},
		{2300 * time.Millisecond, "2.3s"},
		{90 * time.Second, "1m 30s"},
		{2 * time.Minute, "2m"},
		{90 * time.Minute, "1h 30m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}
