package types

import "time"

// SettingDefinition declares an app setting and its default
type SettingDefinition struct {
	Key         string      `json:"key" yaml:"key" toml:"key"`
	Value       interface{} `json:"value" yaml:"value" toml:"value"`
	Type        string      `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
}

// Manifest describes an installable app package
type Manifest struct {
	ID          string              `json:"id" yaml:"id" toml:"id"`
	Name        string              `json:"name" yaml:"name" toml:"name"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Icon        string              `json:"icon,omitempty" yaml:"icon,omitempty" toml:"icon,omitempty"`
	Category    string              `json:"category,omitempty" yaml:"category,omitempty" toml:"category,omitempty"`
	Version     string              `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	Author      string              `json:"author,omitempty" yaml:"author,omitempty" toml:"author,omitempty"`
	Script      string              `json:"script,omitempty" yaml:"script,omitempty" toml:"script,omitempty"`
	ScriptFile  string              `json:"script_file,omitempty" yaml:"script_file,omitempty" toml:"script_file,omitempty"`
	HTML        string              `json:"html,omitempty" yaml:"html,omitempty" toml:"html,omitempty"`
	HTMLFile    string              `json:"html_file,omitempty" yaml:"html_file,omitempty" toml:"html_file,omitempty"`
	Exports     []string            `json:"exports,omitempty" yaml:"exports,omitempty" toml:"exports,omitempty"`
	Settings    []SettingDefinition `json:"settings,omitempty" yaml:"settings,omitempty" toml:"settings,omitempty"`
	Permissions []string            `json:"permissions,omitempty" yaml:"permissions,omitempty" toml:"permissions,omitempty"`
	Tags        []string            `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty"`
	CreatedAt   time.Time           `json:"created_at" yaml:"-" toml:"-"`
	UpdatedAt   time.Time           `json:"updated_at" yaml:"-" toml:"-"`
}

// Defaults returns the declared setting defaults keyed by setting key
func (m *Manifest) Defaults() map[string]interface{} {
	out := make(map[string]interface{}, len(m.Settings))
	for _, s := range m.Settings {
		out[s.Key] = s.Value
	}
	return out
}

// ManifestMetadata is the summary shown in listings
type ManifestMetadata struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Category    string   `json:"category"`
	Version     string   `json:"version"`
	Author      string   `json:"author"`
	Tags        []string `json:"tags"`
}

// ToMetadata extracts metadata from a manifest
func (m *Manifest) ToMetadata() ManifestMetadata {
	return ManifestMetadata{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Icon:        m.Icon,
		Category:    m.Category,
		Version:     m.Version,
		Author:      m.Author,
		Tags:        m.Tags,
	}
}

// RegistryStats contains registry statistics
type RegistryStats struct {
	TotalPackages int            `json:"total_packages"`
	Categories    map[string]int `json:"categories"`
}
