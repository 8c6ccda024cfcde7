package seed

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yml
var builtinPresets []byte

// Preset sizes a seeding run.
type Preset struct {
	Name            string  `yaml:"-"`
	Users           int     `yaml:"users"`
	Admins          int     `yaml:"admins"`
	Posts           int     `yaml:"posts"`
	DraftRatio      float64 `yaml:"draft_ratio"`
	CommentsPerPost int     `yaml:"comments_per_post"`
	LikeRate        float64 `yaml:"like_rate"`
	EmojiRate       float64 `yaml:"emoji_rate"`
	MaxDays         int     `yaml:"max_days"`
}

type presetFile struct {
	Presets map[string]Preset `yaml:"presets"`
}

// Validate rejects presets that cannot produce a consistent dataset.
func (p Preset) Validate() error {
	if p.Users < 0 || p.Admins < 0 || p.Posts < 0 || p.CommentsPerPost < 0 || p.MaxDays < 0 {
		return fmt.Errorf("preset %q: counts must not be negative", p.Name)
	}
	if p.Posts > 0 && p.Admins == 0 {
		return fmt.Errorf("preset %q: posts need at least one admin author", p.Name)
	}
	for name, rate := range map[string]float64{
		"draft_ratio": p.DraftRatio,
		"like_rate":   p.LikeRate,
		"emoji_rate":  p.EmojiRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("preset %q: %s must be between 0 and 1", p.Name, name)
		}
	}
	return nil
}

// ParsePresets decodes a presets document keyed by preset name.
func ParsePresets(raw []byte) (map[string]Preset, error) {
	var doc presetFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	if len(doc.Presets) == 0 {
		return nil, errors.New("parse presets: no presets defined")
	}
	for name, p := range doc.Presets {
		p.Name = name
		if err := p.Validate(); err != nil {
			return nil, err
		}
		doc.Presets[name] = p
	}
	return doc.Presets, nil
}

// LoadPreset returns the named preset from path, or from the built-in set
// when path is empty.
func LoadPreset(path, name string) (Preset, error) {
	raw := builtinPresets
	if path != "" {
		var err error
		if raw, err = os.ReadFile(path); err != nil {
			return Preset{}, fmt.Errorf("read presets: %w", err)
		}
	}

	presets, err := ParsePresets(raw)
	if err != nil {
		return Preset{}, err
	}
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (available: %v)", name, presetNames(presets))
	}
	return p, nil
}

func presetNames(presets map[string]Preset) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
