package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Loader reads, overlays and validates manifests.
type Loader struct {
	registry *SchemaRegistry
	validate *validator.Validate
	// OverlayTimeout bounds overlay script evaluation.
	OverlayTimeout time.Duration
}

// NewLoader creates a manifest loader.
func NewLoader() *Loader {
	return &Loader{
		registry:       NewSchemaRegistry(),
		validate:       validator.New(),
		OverlayTimeout: 30 * time.Second,
	}
}

// Load reads the manifest at path, applies its overlay script if one is
// declared, fills defaults, and validates the result. An empty path loads
// the built-in default manifest.
func (l *Loader) Load(ctx context.Context, path string) (*Manifest, error) {
	if path == "" {
		m := DefaultManifest()
		if err := l.Validate(ctx, m); err != nil {
			return nil, err
		}
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	if overlay, _ := raw["overlay"].(string); overlay != "" {
		raw, err = l.applyOverlay(ctx, raw, overlay, filepath.Dir(path))
		if err != nil {
			return nil, err
		}
	}

	// Round-trip through YAML to decode the possibly rewritten document
	// into the typed manifest.
	rewritten, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(rewritten, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}

	applyDefaults(&m)

	if err := l.Validate(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate runs struct-tag validation followed by CUE schema validation.
func (l *Loader) Validate(ctx context.Context, m *Manifest) error {
	if err := l.validate.Struct(m); err != nil {
		return fmt.Errorf("manifest validation failed: %w", err)
	}
	if err := l.registry.ValidateManifest(ctx, m); err != nil {
		return fmt.Errorf("manifest schema validation failed: %w", err)
	}
	return nil
}

// applyOverlay loads and runs the overlay script against the raw document.
// A relative script path is resolved against the manifest's directory.
func (l *Loader) applyOverlay(ctx context.Context, raw map[string]interface{}, overlay, baseDir string) (map[string]interface{}, error) {
	scriptPath := overlay
	if !filepath.IsAbs(scriptPath) {
		scriptPath = filepath.Join(baseDir, scriptPath)
	}

	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read overlay %s: %w", scriptPath, err)
	}

	evaluator := NewOverlayEvaluator(l.OverlayTimeout)
	out, err := evaluator.Evaluate(ctx, string(script), raw)
	if err != nil {
		return nil, fmt.Errorf("overlay %s: %w", scriptPath, err)
	}

	// The overlay key has done its job; drop it so the rewritten document
	// cannot chain overlays.
	delete(out, "overlay")
	return out, nil
}

// ExpandHome replaces a leading ~ in path with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
