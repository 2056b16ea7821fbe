package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayoutVariants_RussianTypedOnQwerty(t *testing.T) {
	// "шзрщту" is "iphone" typed with the Russian layout active
	variants := LayoutVariants("шзрщту")

	assert.Contains(t, variants, "iphone")
}

func TestLayoutVariants_LatinTypedOnRussianLayout(t *testing.T) {
	variants := LayoutVariants("iphone")

	assert.Contains(t, variants, "шзрщту")
}

func TestLayoutVariants_PreservesDigitsAndSpaces(t *testing.T) {
	variants := LayoutVariants("шзрщту 15")

	assert.Contains(t, variants, "iphone 15")
}

func TestLayoutVariants_OmitsUnchangedVariant(t *testing.T) {
	// Nothing here maps in either direction, so no variant is produced
	variants := LayoutVariants("12345")

	assert.Empty(t, variants)
}

func TestLayoutVariants_Roundtrip(t *testing.T) {
	variants := LayoutVariants("ноутбук")
	if assert.NotEmpty(t, variants) {
		back := LayoutVariants(variants[0])
		assert.Contains(t, back, "ноутбук")
	}
}
