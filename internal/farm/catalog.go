package farm

import (
	"sort"

	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/persistence"
)

// CropDef is one entry of the crop catalog.
type CropDef struct {
	Type            string
	Seed            string
	GrowthDays      int
	Harvest         string
	SeedDropChance  float64
	RegrowWaterings int
}

// Catalog indexes crop definitions by crop type and by seed item.
type Catalog struct {
	byType map[string]CropDef
	bySeed map[string]CropDef
}

// NewCatalog builds a catalog from the configured crops.
func NewCatalog(crops []config.Crop) *Catalog {
	c := &Catalog{
		byType: make(map[string]CropDef, len(crops)),
		bySeed: make(map[string]CropDef, len(crops)),
	}
	for _, cr := range crops {
		def := CropDef{
			Type:            cr.Type,
			Seed:            cr.Seed,
			GrowthDays:      cr.GrowthDays,
			Harvest:         cr.Harvest,
			SeedDropChance:  cr.SeedDropChance,
			RegrowWaterings: cr.RegrowWaterings,
		}
		c.byType[def.Type] = def
		c.bySeed[def.Seed] = def
	}
	return c
}

// Crop looks up a definition by crop type.
func (c *Catalog) Crop(cropType string) (CropDef, bool) {
	def, ok := c.byType[cropType]
	return def, ok
}

// BySeed looks up the crop a seed item grows into.
func (c *Catalog) BySeed(seed string) (CropDef, bool) {
	def, ok := c.bySeed[seed]
	return def, ok
}

// All returns every definition ordered by crop type.
func (c *Catalog) All() []CropDef {
	out := make([]CropDef, 0, len(c.byType))
	for _, def := range c.byType {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Atlas converts the catalog to crop_atlas rows.
func (c *Catalog) Atlas() []persistence.AtlasEntry {
	defs := c.All()
	out := make([]persistence.AtlasEntry, len(defs))
	for i, d := range defs {
		out[i] = persistence.AtlasEntry{
			CropType:        d.Type,
			SeedName:        d.Seed,
			TotalGrowthDays: d.GrowthDays,
			HarvestClass:    d.Harvest,
		}
	}
	return out
}
