package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Catalogs holds the static definitions the simulation is parameterized by:
// the road class palette and the agent profile palette. Both carry content
// digests so clients can detect drift without re-downloading definitions.
type Catalogs struct {
	Roads    RoadCatalog
	Profiles ProfileCatalog
}

type RoadCatalog struct {
	Palette []string
	Index   map[string]uint8
	Defs    map[string]RoadClassDef
	Digest  string
}

type RoadClassDef struct {
	ID                string  `yaml:"id" json:"id"`
	SpeedCellsPerTick float64 `yaml:"speed_cells_per_tick" json:"speed_cells_per_tick"`
	Lanes             int     `yaml:"lanes" json:"lanes"`
	HalfWidthCells    int     `yaml:"half_width_cells" json:"half_width_cells"`
	Capacity          float64 `yaml:"capacity" json:"capacity"`
}

type ProfileCatalog struct {
	Palette []string
	Index   map[string]uint8
	Defs    map[string]ProfileDef
	Digest  string
}

// ProfileDef describes an agent class: how much load it adds to a cell it
// occupies and how its speed relates to the road's class speed.
type ProfileDef struct {
	ID              string  `yaml:"id" json:"id"`
	Load            float64 `yaml:"load" json:"load"`
	SpeedMultiplier float64 `yaml:"speed_multiplier" json:"speed_multiplier"`
}

type roadClassesFile struct {
	Classes  []RoadClassDef `yaml:"classes"`
	Profiles []ProfileDef   `yaml:"profiles"`
}

func Load(configDir string) (*Catalogs, error) {
	raw, err := os.ReadFile(filepath.Join(configDir, "road_classes.yaml"))
	if err != nil {
		return nil, err
	}
	var f roadClassesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("road_classes.yaml: %w", err)
	}
	if len(f.Classes) == 0 {
		return nil, fmt.Errorf("road_classes.yaml: no classes defined")
	}
	if len(f.Profiles) == 0 {
		return nil, fmt.Errorf("road_classes.yaml: no profiles defined")
	}

	c := &Catalogs{
		Roads: RoadCatalog{
			Index: map[string]uint8{},
			Defs:  map[string]RoadClassDef{},
		},
		Profiles: ProfileCatalog{
			Index: map[string]uint8{},
			Defs:  map[string]ProfileDef{},
		},
	}
	for i, def := range f.Classes {
		if def.ID == "" {
			return nil, fmt.Errorf("road class %d: empty id", i)
		}
		if _, dup := c.Roads.Index[def.ID]; dup {
			return nil, fmt.Errorf("road class %s: duplicate id", def.ID)
		}
		if def.SpeedCellsPerTick <= 0 || def.Capacity <= 0 {
			return nil, fmt.Errorf("road class %s: speed and capacity must be positive", def.ID)
		}
		c.Roads.Palette = append(c.Roads.Palette, def.ID)
		c.Roads.Index[def.ID] = uint8(i)
		c.Roads.Defs[def.ID] = def
	}
	for i, def := range f.Profiles {
		if def.ID == "" {
			return nil, fmt.Errorf("profile %d: empty id", i)
		}
		if _, dup := c.Profiles.Index[def.ID]; dup {
			return nil, fmt.Errorf("profile %s: duplicate id", def.ID)
		}
		if def.Load <= 0 || def.SpeedMultiplier <= 0 {
			return nil, fmt.Errorf("profile %s: load and speed_multiplier must be positive", def.ID)
		}
		c.Profiles.Palette = append(c.Profiles.Palette, def.ID)
		c.Profiles.Index[def.ID] = uint8(i)
		c.Profiles.Defs[def.ID] = def
	}

	c.Roads.Digest = digestJSON(f.Classes)
	c.Profiles.Digest = digestJSON(f.Profiles)
	return c, nil
}

// ClassByIndex resolves a palette index back to its definition.
func (rc *RoadCatalog) ClassByIndex(idx uint8) (RoadClassDef, bool) {
	if int(idx) >= len(rc.Palette) {
		return RoadClassDef{}, false
	}
	return rc.Defs[rc.Palette[idx]], true
}

func (pc *ProfileCatalog) ProfileByIndex(idx uint8) (ProfileDef, bool) {
	if int(idx) >= len(pc.Palette) {
		return ProfileDef{}, false
	}
	return pc.Defs[pc.Palette[idx]], true
}

func (c *Catalogs) ClassByIndex(idx uint8) (RoadClassDef, bool) {
	return c.Roads.ClassByIndex(idx)
}

func (c *Catalogs) ProfileByIndex(idx uint8) (ProfileDef, bool) {
	return c.Profiles.ProfileByIndex(idx)
}

func digestJSON(v any) string {
	b, _ := json.Marshal(v)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
