package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("🔍", "Resolving project...")

	// Then: output contains icon and message
	output := buf.String()
	assert.Contains(t, output, "🔍")
	assert.Contains(t, output, "Resolving project...")
}

func TestWriter_Status_EmptyIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("", "detail line")

	assert.Equal(t, "   detail line\n", buf.String())
}

func TestWriter_Success_PrintsCheckmark(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Success("Feed loaded")

	output := buf.String()
	assert.Contains(t, output, "✅")
	assert.Contains(t, output, "Feed loaded")
}

func TestWriter_Warning_PrintsWarningIcon(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Warningf("scheduler disabled: %s", "no targets")

	output := buf.String()
	assert.Contains(t, output, "⚠️")
	assert.Contains(t, output, "scheduler disabled: no targets")
}

func TestWriter_Error_PrintsErrorIcon(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Errorf("migration failed: %v", "db unreachable")

	output := buf.String()
	assert.Contains(t, output, "❌")
	assert.Contains(t, output, "migration failed: db unreachable")
}

func TestWriter_Field_AlignsValues(t *testing.T) {
	// Given: a block of fields
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing labels of different lengths
	w.Field("Products", 120)
	w.Field("Shop", "Спорт Мастер")

	// Then: values start at the same column
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, strings.Index(lines[0], "120"), strings.Index(lines[1], "Спорт"))
}

func TestWriter_Progress_RendersPercent(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Progress(50, "indexing")

	output := buf.String()
	assert.Contains(t, output, "50%")
	assert.Contains(t, output, "█")
	assert.Contains(t, output, "░")
	assert.Contains(t, output, "indexing")
	assert.NotContains(t, output, "\n")
}

func TestWriter_Progress_CompletesWithNewline(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Progress(100, "done")

	output := buf.String()
	assert.Contains(t, output, "100%")
	assert.True(t, strings.HasSuffix(output, "\n"))
}

func TestWriter_Progress_ClampsRange(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Progress(-5, "")
	assert.Contains(t, buf.String(), "  0%")

	buf.Reset()
	w.Progress(150, "")
	assert.Contains(t, buf.String(), "100%")
}
