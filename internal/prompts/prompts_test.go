package prompts

import (
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelect_LegendaryOnlyFromLegendaryList(t *testing.T) {
	s := NewSelector(rand.NewPCG(1, 2))
	burden := "student loans: 40k & counting"

	var allowed []string
	for _, tpl := range Templates(TierLegendary) {
		allowed = append(allowed, strings.ReplaceAll(tpl, placeholder, burden))
	}

	for i := 0; i < 200; i++ {
		prompt, tier := s.Select(burden, "legendary")
		assert.Equal(t, TierLegendary, tier)
		assert.True(t, slices.Contains(allowed, prompt), "unexpected prompt %q", prompt)
		assert.Contains(t, prompt, burden)
	}
}

func TestSelect_UnknownTierFallsBack(t *testing.T) {
	s := NewSelector(nil)

	for _, tier := range []string{"", "platinum", "  "} {
		prompt, used := s.Select("fear", tier)
		assert.Equal(t, DefaultTier, used)
		assert.Contains(t, prompt, `"fear"`)
	}
}

func TestSelect_TierCaseInsensitive(t *testing.T) {
	_, used := NewSelector(nil).Select("x", " Celestial ")
	assert.Equal(t, TierCelestial, used)
}

func TestSelect_CoversWholeList(t *testing.T) {
	s := NewSelector(rand.NewPCG(7, 7))
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		p, _ := s.Select("b", "divine")
		seen[p] = true
	}
	assert.Len(t, seen, len(Templates(TierDivine)))
}

func TestTemplates_AllContainPlaceholder(t *testing.T) {
	for tier, list := range templates {
		assert.NotEmpty(t, list, tier)
		for _, tpl := range list {
			assert.Contains(t, tpl, placeholder, tier)
		}
	}
}
