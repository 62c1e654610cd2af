// Tilemap generation using layered simplex noise.
package world

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/farmstead/internal/config"
)

// Generate creates a tilemap whose soil patches are where the fertility
// noise exceeds cfg.SoilThreshold. The same seed always yields the same map.
func Generate(cfg config.World) *Map {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	fertNoise := opensimplex.NewNormalized(seed)
	moistNoise := opensimplex.NewNormalized(seed + 1)

	m := NewMap(cfg.Width, cfg.Height)
	for i := range m.Tiles {
		t := &m.Tiles[i]
		x, y := float64(t.Coord.X), float64(t.Coord.Y)

		t.Fertility = octaveNoise(fertNoise, x, y, 3, 0.15, 0.5)
		t.Moisture = octaveNoise(moistNoise, x, y, 2, 0.1, 0.5)
		t.Terrain = deriveTerrain(t.Fertility, t.Moisture, cfg.SoilThreshold)
	}
	return m
}

func deriveTerrain(fertility, moisture, threshold float64) Terrain {
	if moisture > 0.8 {
		return TerrainWater
	}
	if fertility < 0.15 {
		return TerrainRock
	}
	if fertility >= threshold {
		return TerrainSoil
	}
	return TerrainGrass
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// TerrainCounts returns a summary of terrain type distribution.
func TerrainCounts(m *Map) map[Terrain]int {
	counts := make(map[Terrain]int)
	for _, t := range m.Tiles {
		counts[t.Terrain]++
	}
	return counts
}

// TerrainName returns a human-readable name for a terrain type.
func TerrainName(t Terrain) string {
	switch t {
	case TerrainSoil:
		return "Soil"
	case TerrainGrass:
		return "Grass"
	case TerrainWater:
		return "Water"
	case TerrainRock:
		return "Rock"
	default:
		return "Unknown"
	}
}
