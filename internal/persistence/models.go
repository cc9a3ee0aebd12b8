// Package persistence is the collaborator that gives the interface-only
// persisted-state layout from spec.md §6 a concrete, swappable
// implementation: scenes and FX presets serialize to SQLite via GORM. The
// real-time core (internal/universe, internal/transaction, internal/clock,
// internal/fx, internal/scene) never imports this package — "the core
// neither reads nor writes this store; collaborators translate."
package persistence

import "time"

// SceneChannelRecord is one persisted `{ universe, channel, value }` entry
// from a recorded scene (spec.md §6).
type SceneChannelRecord struct {
	ID          string `gorm:"column:id;primaryKey"`
	SceneID     string `gorm:"column:scene_id;index"`
	UniverseKey string `gorm:"column:universe_key"`
	Channel     int    `gorm:"column:channel"`
	Value       uint8  `gorm:"column:value"`
}

func (SceneChannelRecord) TableName() string { return "scene_channel_records" }

// SceneRecord is a named, persisted scene: a collection of channel records.
type SceneRecord struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Channels []SceneChannelRecord `gorm:"foreignKey:SceneID"`
}

func (SceneRecord) TableName() string { return "scene_records" }

// FxPresetRecord is a persisted
// `{ effectType, beatDivision, blendMode, distribution, phaseOffset, parameters }`
// entry (spec.md §6).
type FxPresetRecord struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name"`
	EffectType   string    `gorm:"column:effect_type"`
	BeatDivision float64   `gorm:"column:beat_division"`
	BlendMode    string    `gorm:"column:blend_mode"`
	Distribution string    `gorm:"column:distribution"`
	PhaseOffset  float64   `gorm:"column:phase_offset"`
	TargetKind   string    `gorm:"column:target_kind"`
	TargetRef    string    `gorm:"column:target_ref"` // fixture id or group name
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Parameters []FxPresetParameter `gorm:"foreignKey:PresetID"`
}

func (FxPresetRecord) TableName() string { return "fx_preset_records" }

// FxPresetParameter is one entry of an FxPresetRecord's
// `parameters: map<string,string>` (spec.md §6); stored as rows rather
// than a serialized blob so individual parameters remain queryable.
type FxPresetParameter struct {
	ID       string `gorm:"column:id;primaryKey"`
	PresetID string `gorm:"column:preset_id;index"`
	Key      string `gorm:"column:key"`
	Value    string `gorm:"column:value"`
}

func (FxPresetParameter) TableName() string { return "fx_preset_parameters" }
