// Package world provides the farm tilemap: a rectangular grid of terrain
// from which the farmland layer is seeded.
package world

import "fmt"

// Coord is a tile position on the grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Terrain types for tiles.
type Terrain uint8

const (
	TerrainSoil  Terrain = iota // Farmable
	TerrainGrass                // Walkable, not farmable
	TerrainWater                // Pond or stream
	TerrainRock
)

// Tile is a single cell of the map.
type Tile struct {
	Coord     Coord   `json:"coord"`
	Terrain   Terrain `json:"terrain"`
	Fertility float64 `json:"fertility"` // 0..1 noise sample the terrain was derived from
	Moisture  float64 `json:"moisture"`
}

// Map holds the complete tile grid.
type Map struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Tiles  []Tile `json:"-"` // row-major
}

// NewMap creates a map of grass tiles.
func NewMap(width, height int) *Map {
	m := &Map{Width: width, Height: height, Tiles: make([]Tile, width*height)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			m.Tiles[y*width+x] = Tile{Coord: Coord{x, y}, Terrain: TerrainGrass}
		}
	}
	return m
}

// InBounds returns true if c lies on the map.
func (m *Map) InBounds(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < m.Width && c.Y < m.Height
}

// Get returns the tile at c, or nil if out of bounds.
func (m *Map) Get(c Coord) *Tile {
	if !m.InBounds(c) {
		return nil
	}
	return &m.Tiles[c.Y*m.Width+c.X]
}

// Farmable returns the coordinates of every soil tile in row-major order.
func (m *Map) Farmable() []Coord {
	var out []Coord
	for _, t := range m.Tiles {
		if t.Terrain == TerrainSoil {
			out = append(out, t.Coord)
		}
	}
	return out
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map{%dx%d, %d farmable}", m.Width, m.Height, len(m.Farmable()))
}
