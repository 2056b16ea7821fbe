package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStyles_HeaderIsBold(t *testing.T) {
	styles := DefaultStyles()

	assert.True(t, styles.Header.GetBold())
}

func TestNoColorStyles_RenderPassthrough(t *testing.T) {
	// Given: unstyled components
	styles := NoColorStyles()

	// Then: rendering adds no escape codes
	rendered := styles.Error.Render("plain text")
	assert.Equal(t, "plain text", rendered)
}

func TestGetStyles(t *testing.T) {
	noColor := GetStyles(true)
	assert.Equal(t, "x", noColor.Success.Render("x"))

	colored := GetStyles(false)
	assert.True(t, colored.Header.GetBold())
}
