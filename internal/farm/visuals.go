package farm

import (
	"log/slog"

	"github.com/talgya/farmstead/internal/persistence"
)

// Visuals is the rendering collaborator. Calls happen after the store change
// they describe has committed.
type Visuals interface {
	ShowCrop(cropID int64, stage persistence.GrowthStage, cropType string, x, y int)
	RemoveCrop(cropID int64)
	ShowTile(tile persistence.FarmlandTile)
	ClearWaterIcons()
}

// NopVisuals discards every call.
type NopVisuals struct{}

func (NopVisuals) ShowCrop(int64, persistence.GrowthStage, string, int, int) {}
func (NopVisuals) RemoveCrop(int64) {}
func (NopVisuals) ShowTile(persistence.FarmlandTile) {}
func (NopVisuals) ClearWaterIcons() {}

// LogVisuals writes each call to a logger at debug level. It stands in for
// a renderer in headless runs.
type LogVisuals struct {
	Logger *slog.Logger
}

func (v LogVisuals) logger() *slog.Logger {
	if v.Logger == nil {
		return slog.Default()
	}
	return v.Logger
}

func (v LogVisuals) ShowCrop(cropID int64, stage persistence.GrowthStage, cropType string, x, y int) {
	v.logger().Debug("show crop", "crop_id", cropID, "stage", stage.String(), "crop_type", cropType, "x", x, "y", y)
}

func (v LogVisuals) RemoveCrop(cropID int64) {
	v.logger().Debug("remove crop", "crop_id", cropID)
}

func (v LogVisuals) ShowTile(t persistence.FarmlandTile) {
	v.logger().Debug("show tile", "x", t.TileX, "y", t.TileY, "cultivated", t.IsCultivated, "watered", t.IsWatered)
}

func (v LogVisuals) ClearWaterIcons() {
	v.logger().Debug("clear water icons")
}
