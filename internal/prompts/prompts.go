// Package prompts picks an image-generation prompt for a burden phrase.
package prompts

import (
	"math/rand/v2"
	"strings"
	"sync"
)

type Tier string

const (
	TierFree      Tier = "free"
	TierDivine    Tier = "divine"
	TierCelestial Tier = "celestial"
	TierLegendary Tier = "legendary"

	DefaultTier = TierFree
)

// placeholder is replaced verbatim with the user's burden.
const placeholder = "{burden}"

var templates = map[Tier][]string{
	TierFree: {
		"a weathered stone tablet engraved with the words \"{burden}\", cracking apart and releasing light, soft sunrise, painterly",
		"a small paper boat carrying \"{burden}\" drifting away on a calm lake at dawn, watercolor",
		"a heavy iron chain labelled \"{burden}\" breaking into golden dust, minimalist illustration",
		"a lantern with \"{burden}\" written on it floating into a pink evening sky, gentle light",
	},
	TierDivine: {
		"ornate temple altar where the burden \"{burden}\" is laid down and dissolves into radiant white light, marble and gold leaf, highly detailed",
		"angelic hands lifting a glowing scroll inscribed \"{burden}\" toward heaven, baroque fresco style",
		"sacred geometry mandala consuming the word \"{burden}\" in holy fire, gilded manuscript illumination",
	},
	TierCelestial: {
		"cosmic nebula swallowing a crystal orb that holds \"{burden}\", stars exploding in violet and teal, epic scale",
		"a constellation spelling \"{burden}\" fading as a new galaxy is born, deep space photography style",
		"astral gateway where \"{burden}\" turns into stardust, aurora ribbons, cinematic lighting",
	},
	TierLegendary: {
		"mythic golden phoenix rising from the ashes of \"{burden}\", ancient ruins, volumetric god rays, ultra detailed, 8k",
		"legendary warrior shattering a colossal monolith carved with \"{burden}\", storm clouds parting, heroic fantasy art",
		"an ancient dragon unfurling its wings as the seal of \"{burden}\" breaks, molten gold and obsidian, masterpiece",
		"royal decree burning with \"{burden}\" over a throne of light, renaissance oil painting, dramatic chiaroscuro",
	},
}

// Selector picks templates using its own random source.
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector creates a Selector. A nil source uses a randomly seeded PCG.
func NewSelector(src rand.Source) *Selector {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Selector{rnd: rand.New(src)}
}

// Select returns a prompt for burden drawn from tier's templates and the tier actually used.
// Unknown or empty tiers fall back to DefaultTier.
func (s *Selector) Select(burden string, tier string) (string, Tier) {
	t := Normalize(tier)
	list := templates[t]

	s.mu.Lock()
	i := s.rnd.IntN(len(list))
	s.mu.Unlock()

	return strings.ReplaceAll(list[i], placeholder, burden), t
}

// Normalize maps a plan name onto a known tier.
func Normalize(tier string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(tier)))
	if _, ok := templates[t]; ok {
		return t
	}
	return DefaultTier
}

// Templates returns a copy of the raw templates for tier.
func Templates(tier Tier) []string {
	return append([]string(nil), templates[tier]...)
}
