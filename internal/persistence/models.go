package persistence

import "strconv"

// Generation partitions every row: LiveGeneration is the simulated world,
// any other value is the id of the SaveBackup the row belongs to.
type Generation int64

// LiveGeneration tags rows of the current world.
const LiveGeneration Generation = -1

// IsLive reports whether g is the live partition.
func (g Generation) IsLive() bool {
	return g == LiveGeneration
}

func (g Generation) String() string {
	if g.IsLive() {
		return "live"
	}
	return "backup-" + strconv.FormatInt(int64(g), 10)
}

// GrowthStage is a crop's lifecycle phase.
type GrowthStage int

const (
	StageSeed         GrowthStage = 0
	StageSeedling     GrowthStage = 1
	StageMature       GrowthStage = 2
	StageCyclicMature GrowthStage = 3 // harvested once, regrowing
)

func (s GrowthStage) String() string {
	switch s {
	case StageSeed:
		return "seed"
	case StageSeedling:
		return "seedling"
	case StageMature:
		return "mature"
	case StageCyclicMature:
		return "regrowing"
	default:
		return "stage-" + strconv.Itoa(int(s))
	}
}

// TaskStatus is a PlayerTask's lifecycle state.
type TaskStatus string

const (
	TaskNotStarted TaskStatus = "NotStarted"
	TaskInProgress TaskStatus = "InProgress"
	TaskCompleted  TaskStatus = "Completed"
)

// FarmlandTile is one grid cell of farmland.
type FarmlandTile struct {
	ID           int64      `db:"id" json:"id"`
	TileX        int        `db:"tile_x" json:"tile_x"`
	TileY        int        `db:"tile_y" json:"tile_y"`
	IsCultivated bool       `db:"is_cultivated" json:"is_cultivated"`
	IsWatered    bool       `db:"is_watered" json:"is_watered"`
	Generation   Generation `db:"generation" json:"generation"`
}

// Crop is a planted crop. FarmlandID refers to a tile of the same generation.
type Crop struct {
	ID              int64       `db:"id" json:"id"`
	FarmlandID      int64       `db:"farmland_id" json:"farmland_id"`
	CropType        string      `db:"crop_type" json:"crop_type"`
	GrowthStage     GrowthStage `db:"growth_stage" json:"growth_stage"`
	DaysRemaining   int         `db:"days_remaining" json:"days_remaining"`
	TotalGrowthDays int         `db:"total_growth_days" json:"total_growth_days"`
	WateringCount   int         `db:"watering_count" json:"watering_count"`
	Generation      Generation  `db:"generation" json:"generation"`
}

// BackpackItem is a stack of one item type. ItemCount is always positive.
type BackpackItem struct {
	ID         int64      `db:"id" json:"id"`
	ItemType   string     `db:"item_type" json:"item_type"`
	ItemCount  int        `db:"item_count" json:"item_count"`
	Generation Generation `db:"generation" json:"generation"`
}

// PlayerCore is the per-generation player singleton.
type PlayerCore struct {
	ID            int64      `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	CurrentSeason string     `db:"current_season" json:"current_season"`
	CurrentDay    int        `db:"current_day" json:"current_day"`
	CurrentTime   string     `db:"clock_time" json:"current_time"`
	LastSaveTime  string     `db:"last_save_time" json:"last_save_time"`
	DayCount      int        `db:"day_count" json:"day_count"`
	Generation    Generation `db:"generation" json:"generation"`
}

// SaveBackup is the root of a snapshot generation; its ID is the generation.
type SaveBackup struct {
	ID            int64  `db:"id" json:"id"`
	SaveDate      string `db:"save_date" json:"save_date"`
	SaveTime      string `db:"save_time" json:"save_time"`
	CurrentSeason string `db:"current_season" json:"current_season"`
	CurrentDay    int    `db:"current_day" json:"current_day"`
	Note          string `db:"note" json:"note"`
	IsValid       bool   `db:"is_valid" json:"is_valid"`
}

// Generation returns the partition this backup roots.
func (b SaveBackup) Generation() Generation {
	return Generation(b.ID)
}

// PlayerTask is an assigned task and its progress.
type PlayerTask struct {
	ID              int64      `db:"id" json:"id"`
	TaskName        string     `db:"task_name" json:"task_name"`
	TaskType        string     `db:"task_type" json:"task_type"`
	Status          TaskStatus `db:"status" json:"status"`
	Description     string     `db:"description" json:"description"`
	TargetCount     int        `db:"target_count" json:"target_count"`
	CurrentProgress int        `db:"current_progress" json:"current_progress"`
	RewardItems     string     `db:"reward_items" json:"reward_items"`
	DayAssigned     int        `db:"day_assigned" json:"day_assigned"`
	DayLimit        int        `db:"day_limit" json:"day_limit"`
	DialogueNode    string     `db:"dialogue_node" json:"dialogue_node"`
	Generation      Generation `db:"generation" json:"generation"`
}

// Overdue reports whether the task missed its deadline as of day.
func (t PlayerTask) Overdue(day int) bool {
	return t.Status != TaskCompleted && day > t.DayAssigned+t.DayLimit
}

// DialogueVar is an opaque key/value pair owned by the dialogue subsystem.
type DialogueVar struct {
	ID            int64      `db:"id" json:"id"`
	VarName       string     `db:"var_name" json:"var_name"`
	VarValue      string     `db:"var_value" json:"var_value"`
	RelatedSystem string     `db:"related_system" json:"related_system"`
	Generation    Generation `db:"generation" json:"generation"`
}

// AtlasEntry mirrors one configured crop definition.
type AtlasEntry struct {
	CropType        string `db:"crop_type" json:"crop_type"`
	SeedName        string `db:"seed_name" json:"seed_name"`
	TotalGrowthDays int    `db:"total_growth_days" json:"total_growth_days"`
	HarvestClass    string `db:"harvest_class" json:"harvest_class"`
}

func (FarmlandTile) table() string { return "farmland_tiles" }
func (Crop) table() string { return "crops" }
func (BackpackItem) table() string { return "backpack_items" }
func (PlayerCore) table() string { return "player_core" }
func (PlayerTask) table() string { return "player_tasks" }
func (DialogueVar) table() string { return "dialogue_vars" }
