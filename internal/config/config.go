// Package config loads farmstead settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Harvest classes for the crop catalog.
const (
	HarvestSingle   = "single"    // row deleted on harvest
	HarvestSeedDrop = "seed_drop" // row deleted, chance of a seed back
	HarvestCyclic   = "cyclic"    // row kept, regrows after waterings
)

// Config is the complete process configuration.
type Config struct {
	Store    Store      `yaml:"store"`
	Log      Log        `yaml:"log"`
	API      API        `yaml:"api"`
	Clock    Clock      `yaml:"clock"`
	World    World      `yaml:"world"`
	Player   Player     `yaml:"player"`
	Crops    []Crop     `yaml:"crops"`
	Backpack Backpack   `yaml:"backpack"`
	Tasks    []TaskRule `yaml:"tasks"`
	Snapshot Snapshot   `yaml:"snapshot"`
	Entropy  Entropy    `yaml:"entropy"`
}

type Store struct {
	Path string `yaml:"path"`
}

type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json, logfmt
}

type API struct {
	Enabled     bool    `yaml:"enabled"`
	Port        int     `yaml:"port"`
	AdminKey    string  `yaml:"-"` // env only
	AdminPerSec float64 `yaml:"admin_per_sec"`
	AdminBurst  int     `yaml:"admin_burst"`
}

// Clock drives the in-game day/night cycle.
type Clock struct {
	TickInterval   time.Duration `yaml:"tick_interval"`    // wall time per engine tick
	SecondsPerHour float64       `yaml:"seconds_per_hour"` // ticks per in-game hour
	DayStart       int           `yaml:"day_start"`
	DuskStart      int           `yaml:"dusk_start"`
	NightStart     int           `yaml:"night_start"`
	DaysPerSeason  int           `yaml:"days_per_season"`
	StartSeason    string        `yaml:"start_season"`
	StartDay       int           `yaml:"start_day"`
}

// World controls tilemap generation.
type World struct {
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	Seed          int64   `yaml:"seed"`
	SoilThreshold float64 `yaml:"soil_threshold"`
}

type Player struct {
	Name string `yaml:"name"`
}

// Crop is one crop atlas entry.
type Crop struct {
	Type            string  `yaml:"type"`
	Seed            string  `yaml:"seed"`
	GrowthDays      int     `yaml:"growth_days"`
	Harvest         string  `yaml:"harvest"`
	SeedDropChance  float64 `yaml:"seed_drop_chance"`
	RegrowWaterings int     `yaml:"regrow_waterings"`
}

type ItemStack struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
}

type Backpack struct {
	StartingItems []ItemStack `yaml:"starting_items"`
}

// TaskRule assigns a task on a given in-game day.
type TaskRule struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`   // "harvest" advances on harvesting Target
	Target       string `yaml:"target"` // crop type for harvest tasks
	Description  string `yaml:"description"`
	TargetCount  int    `yaml:"target_count"`
	AssignOnDay  int    `yaml:"assign_on_day"`
	DayLimit     int    `yaml:"day_limit"`
	Rewards      string `yaml:"rewards"` // "Wheat_Seed:5,Hoe:1"
	StartNode    string `yaml:"start_node"`
	CompleteNode string `yaml:"complete_node"`
}

// Snapshot widens SaveGame/LoadBackup beyond player, farmland and crops.
type Snapshot struct {
	IncludeBackpack bool `yaml:"include_backpack"`
	IncludeTasks    bool `yaml:"include_tasks"`
	IncludeDialogue bool `yaml:"include_dialogue"`
}

// Entropy selects the random source for harvest drops.
type Entropy struct {
	RandomOrgKey string `yaml:"-"` // env only; empty uses crypto/rand
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: Store{Path: "data/farmstead.db"},
		Log:   Log{Level: "info", Format: "text"},
		API: API{
			Enabled:     true,
			Port:        8080,
			AdminPerSec: 5,
			AdminBurst:  10,
		},
		Clock: Clock{
			TickInterval:   time.Second,
			SecondsPerHour: 20,
			DayStart:       6,
			DuskStart:      16,
			NightStart:     19,
			DaysPerSeason:  28,
			StartSeason:    "Spring",
			StartDay:       1,
		},
		World: World{
			Width:         16,
			Height:        12,
			Seed:          42,
			SoilThreshold: 0.45,
		},
		Player: Player{Name: "Farmer"},
		Crops: []Crop{
			{Type: "Wheat", Seed: "Wheat_Seed", GrowthDays: 3, Harvest: HarvestSingle},
			{Type: "Tomato", Seed: "Tomato_Seed", GrowthDays: 7, Harvest: HarvestSeedDrop, SeedDropChance: 0.3},
			{Type: "Carrot", Seed: "Carrot_Seed", GrowthDays: 12, Harvest: HarvestCyclic, RegrowWaterings: 2},
		},
		Backpack: Backpack{
			StartingItems: []ItemStack{
				{Type: "Wheat_Seed", Count: 5},
				{Type: "Tomato_Seed", Count: 5},
				{Type: "Carrot_Seed", Count: 5},
				{Type: "WateringCan", Count: 1},
				{Type: "Hoe", Count: 1},
			},
		},
		Tasks: []TaskRule{
			{
				Name:         "harvest_wheat",
				Type:         "harvest",
				Target:       "Wheat",
				Description:  "Plant and harvest wheat",
				TargetCount:  1,
				AssignOnDay:  1,
				DayLimit:     7,
				Rewards:      "Wheat_Seed:5",
				StartNode:    "Task_Wheat_Start",
				CompleteNode: "Task_Wheat_Complete",
			},
		},
		Snapshot: Snapshot{
			IncludeBackpack: true,
			IncludeTasks:    true,
			IncludeDialogue: true,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path yields the defaults.
// Environment overrides are applied afterwards, then the result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides selected fields from FARMSTEAD_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("FARMSTEAD_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("FARMSTEAD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FARMSTEAD_ADMIN_KEY"); v != "" {
		c.API.AdminKey = v
	}
	if v := os.Getenv("FARMSTEAD_RANDOM_ORG_KEY"); v != "" {
		c.Entropy.RandomOrgKey = v
	}
	if v := os.Getenv("FARMSTEAD_API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.API.Port = p
		}
	}
}

// Validate rejects configurations the simulation cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is empty")
	}
	ck := c.Clock
	if ck.TickInterval <= 0 || ck.SecondsPerHour <= 0 {
		return fmt.Errorf("clock: tick_interval and seconds_per_hour must be positive")
	}
	if !(0 <= ck.DayStart && ck.DayStart < ck.DuskStart && ck.DuskStart < ck.NightStart && ck.NightStart <= 24) {
		return fmt.Errorf("clock: need 0 <= day_start < dusk_start < night_start <= 24")
	}
	if ck.DaysPerSeason <= 0 {
		return fmt.Errorf("clock: days_per_season must be positive")
	}
	if ck.StartDay < 1 || ck.StartDay > ck.DaysPerSeason {
		return fmt.Errorf("clock: start_day %d outside 1..%d", ck.StartDay, ck.DaysPerSeason)
	}
	if c.World.Width <= 0 || c.World.Height <= 0 {
		return fmt.Errorf("world: width and height must be positive")
	}

	seen := make(map[string]bool, len(c.Crops))
	for _, cr := range c.Crops {
		if cr.Type == "" || cr.Seed == "" {
			return fmt.Errorf("crop: type and seed are required")
		}
		if seen[cr.Type] {
			return fmt.Errorf("crop %q defined twice", cr.Type)
		}
		seen[cr.Type] = true
		if cr.GrowthDays <= 0 {
			return fmt.Errorf("crop %q: growth_days must be positive", cr.Type)
		}
		switch cr.Harvest {
		case HarvestSingle:
		case HarvestSeedDrop:
			if cr.SeedDropChance < 0 || cr.SeedDropChance > 1 {
				return fmt.Errorf("crop %q: seed_drop_chance outside [0,1]", cr.Type)
			}
		case HarvestCyclic:
			if cr.RegrowWaterings <= 0 {
				return fmt.Errorf("crop %q: regrow_waterings must be positive", cr.Type)
			}
		default:
			return fmt.Errorf("crop %q: unknown harvest class %q", cr.Type, cr.Harvest)
		}
	}

	for _, it := range c.Backpack.StartingItems {
		if it.Type == "" || it.Count <= 0 {
			return fmt.Errorf("backpack: starting item needs a type and positive count")
		}
	}

	names := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.Name == "" {
			return fmt.Errorf("task: name is required")
		}
		if names[t.Name] {
			return fmt.Errorf("task %q defined twice", t.Name)
		}
		names[t.Name] = true
		if t.TargetCount <= 0 || t.DayLimit < 0 || t.AssignOnDay < 1 {
			return fmt.Errorf("task %q: target_count > 0, day_limit >= 0, assign_on_day >= 1 required", t.Name)
		}
	}
	return nil
}
