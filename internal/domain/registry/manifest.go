package registry

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/WebOS/backend/internal/shared/paths"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/utils"
)

var ErrInvalidManifest = errors.New("invalid manifest")

// Format is a manifest encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var manifestSuffixes = map[string]Format{
	".app.json": FormatJSON,
	".app.yaml": FormatYAML,
	".app.yml":  FormatYAML,
	".app.toml": FormatTOML,
}

var exportName = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// FormatFor returns the manifest format of a file name
func FormatFor(name string) (Format, bool) {
	lower := strings.ToLower(path.Base(name))
	for suffix, f := range manifestSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return f, true
		}
	}
	return "", false
}

// Parse decodes a manifest in the given format
func Parse(data []byte, format Format) (*types.Manifest, error) {
	var m types.Manifest
	var err error
	switch format {
	case FormatJSON:
		err = sonic.Unmarshal(data, &m)
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	case FormatTOML:
		err = toml.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidManifest, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return &m, nil
}

// Validate checks a manifest after file references were resolved
func Validate(m *types.Manifest) error {
	if m == nil {
		return fmt.Errorf("%w: nil manifest", ErrInvalidManifest)
	}

	checks := []error{
		utils.ValidateID(m.ID, "id", true),
		paths.ValidateAppID(m.ID),
		utils.ValidateName(m.Name, "name"),
		utils.ValidateDescription(m.Description, "description", false),
		utils.ValidateCategory(m.Category, false),
		utils.ValidateTags(m.Tags),
	}
	for _, err := range checks {
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidManifest, m.ID, err)
		}
	}

	if m.Script == "" && m.HTML == "" {
		return fmt.Errorf("%w: %s: needs a script or html", ErrInvalidManifest, m.ID)
	}
	if len(m.Script) > utils.MaxScriptSize {
		return fmt.Errorf("%w: %s: script exceeds %d bytes", ErrInvalidManifest, m.ID, utils.MaxScriptSize)
	}
	for _, name := range m.Exports {
		if !exportName.MatchString(name) {
			return fmt.Errorf("%w: %s: export %q is not an identifier", ErrInvalidManifest, m.ID, name)
		}
	}
	seen := make(map[string]bool, len(m.Settings))
	for _, s := range m.Settings {
		if s.Key == "" {
			return fmt.Errorf("%w: %s: setting without key", ErrInvalidManifest, m.ID)
		}
		if seen[s.Key] {
			return fmt.Errorf("%w: %s: duplicate setting %q", ErrInvalidManifest, m.ID, s.Key)
		}
		seen[s.Key] = true
	}
	return nil
}
