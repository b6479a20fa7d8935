package domain

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

// Category groups sounds for presentation
type Category string

const (
	CategoryNature     Category = "nature"
	CategoryIndoor     Category = "indoor"
	CategoryUrban      Category = "urban"
	CategoryWhiteNoise Category = "white-noise"
)

// Sound is a static catalog entry describing one looping ambient track
type Sound struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Category      Category `json:"category"`
	FileName      string   `json:"file_name"`
	DefaultVolume int      `json:"default_volume"`
}

// DefaultSounds is the built-in catalog
var DefaultSounds = []Sound{
	{ID: "rain", Name: "Rain", Category: CategoryNature, FileName: "rain.mp3", DefaultVolume: 50},
	{ID: "waves", Name: "Ocean Waves", Category: CategoryNature, FileName: "waves.mp3", DefaultVolume: 40},
	{ID: "forest", Name: "Forest", Category: CategoryNature, FileName: "forest.mp3", DefaultVolume: 45},
	{ID: "birds", Name: "Birds", Category: CategoryNature, FileName: "birds.mp3", DefaultVolume: 30},
	{ID: "thunder", Name: "Thunder", Category: CategoryNature, FileName: "thunder.mp3", DefaultVolume: 35},
	{ID: "wind", Name: "Wind", Category: CategoryNature, FileName: "wind.mp3", DefaultVolume: 40},
	{ID: "fireplace", Name: "Fireplace", Category: CategoryIndoor, FileName: "fireplace.mp3", DefaultVolume: 45},
	{ID: "clock", Name: "Clock", Category: CategoryIndoor, FileName: "clock.mp3", DefaultVolume: 25},
	{ID: "keyboard", Name: "Keyboard", Category: CategoryIndoor, FileName: "keyboard.mp3", DefaultVolume: 30},
	{ID: "cafe", Name: "Cafe", Category: CategoryUrban, FileName: "cafe.mp3", DefaultVolume: 40},
	{ID: "city", Name: "City", Category: CategoryUrban, FileName: "city.mp3", DefaultVolume: 35},
	{ID: "train", Name: "Train", Category: CategoryUrban, FileName: "train.mp3", DefaultVolume: 45},
	{ID: "white-noise", Name: "White Noise", Category: CategoryWhiteNoise, FileName: "white-noise.mp3", DefaultVolume: 30},
	{ID: "brown-noise", Name: "Brown Noise", Category: CategoryWhiteNoise, FileName: "brown-noise.mp3", DefaultVolume: 30},
}

// Catalog resolves sound ids and asset URLs. It is immutable after creation.
type Catalog struct {
	baseURL string
	sounds  []Sound
	byID    map[string]Sound
}

// NewCatalog creates a catalog rooted at baseURL. A nil or empty sounds slice
// selects DefaultSounds. Later duplicates of an id are ignored.
func NewCatalog(baseURL string, sounds []Sound) *Catalog {
	if len(sounds) == 0 {
		sounds = DefaultSounds
	}

	c := &Catalog{
		baseURL: strings.TrimRight(baseURL, "/"),
		byID:    make(map[string]Sound, len(sounds)),
	}
	for _, s := range sounds {
		if _, dup := c.byID[s.ID]; dup {
			continue
		}
		c.byID[s.ID] = s
		c.sounds = append(c.sounds, s)
	}
	return c
}

// Lookup returns the sound with the given id
func (c *Catalog) Lookup(id string) (Sound, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Sounds returns the catalog entries in declaration order
func (c *Catalog) Sounds() []Sound {
	out := make([]Sound, len(c.sounds))
	copy(out, c.sounds)
	return out
}

// IDs returns all sound ids sorted
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AssetURL returns the URL a sound's file is fetched from. It doubles as the
// byte cache key.
func (c *Catalog) AssetURL(s Sound) string {
	u, err := url.Parse(c.baseURL)
	if err != nil || u.Scheme == "" {
		return c.baseURL + "/" + url.PathEscape(s.FileName)
	}
	u.Path = path.Join(u.Path, s.FileName)
	return u.String()
}

// DefaultVolume returns the catalog volume for id, or 0 for unknown ids
func (c *Catalog) DefaultVolume(id string) int {
	if s, ok := c.byID[id]; ok {
		return s.DefaultVolume
	}
	return 0
}
