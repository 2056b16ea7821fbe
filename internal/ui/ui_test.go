package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vitrina-search/vitrina/internal/catalog"
)

func TestStageFromStatus(t *testing.T) {
	tests := []struct {
		status string
		want   Stage
	}{
		{catalog.StatusDownloading, StageDownloading},
		{catalog.StatusIndexing, StageIndexing},
		{catalog.StatusSuccess, StageDone},
		{catalog.StatusError, StageFailed},
		{catalog.StatusNotLoaded, StageWaiting},
		{"", StageWaiting},
		{"garbage", StageWaiting},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, StageFromStatus(tt.status))
		})
	}
}

func TestStage_String(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageWaiting, "Waiting"},
		{StageDownloading, "Downloading"},
		{StageIndexing, "Indexing"},
		{StageDone, "Done"},
		{StageFailed, "Failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.String())
		})
	}
}

func TestStage_Icon(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageWaiting, "WAIT"},
		{StageDownloading, "LOAD"},
		{StageIndexing, "INDEX"},
		{StageDone, "DONE"},
		{StageFailed, "FAIL"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.Icon())
		})
	}
}

func TestIsTTY_WithBuffer_ReturnsFalse(t *testing.T) {
	// Given: a bytes.Buffer (not a TTY)
	buf := &bytes.Buffer{}

	// When: checking if it's a TTY
	result := IsTTY(buf)

	// Then: returns false
	assert.False(t, result)
}

func TestIsTTY_Nil_ReturnsFalse(t *testing.T) {
	assert.False(t, IsTTY(nil))
}

func TestNewRenderer_BufferGetsPlain(t *testing.T) {
	// Given: config writing to a buffer
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf)

	// When: creating a renderer
	r := NewRenderer(cfg)

	// Then: it is the plain renderer
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestNewRenderer_ForcePlain(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf, WithForcePlain(true))

	r := NewRenderer(cfg)

	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestNewWatchRenderer_RejectsNonTTY(t *testing.T) {
	// Given: a non-TTY buffer
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf, WithProject("demo"))

	// When: creating the live renderer
	r, err := NewWatchRenderer(cfg)

	// Then: returns error
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestDetectCI_WithEnvVar(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestDetectNoColor(t *testing.T) {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		t.Skip("NO_COLOR set in environment")
	}
	assert.False(t, DetectNoColor())

	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestNewConfig_AppliesOptions(t *testing.T) {
	buf := &bytes.Buffer{}

	cfg := NewConfig(buf,
		WithForcePlain(true),
		WithNoColor(true),
		WithProject("proj_abc"))

	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "proj_abc", cfg.Project)
	assert.Equal(t, buf, cfg.Output)
}
