package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpataki/dchgen/internal/models"
	"gopkg.in/yaml.v3"
)

// MaxScanPoints caps how many masses a range may expand to.
const MaxScanPoints = 10000

func Parse(path string) (*models.ScanSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan file: %w", err)
	}

	var spec models.ScanSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse scan YAML: %w", err)
	}

	if spec.Mode == "" {
		spec.Mode = models.ModeLocal
	}
	if spec.Name == "" {
		spec.Name = trimExt(filepath.Base(path))
	}

	return &spec, nil
}

func LoadAll(dirs []string) (map[string]*models.ScanSpec, error) {
	specs := make(map[string]*models.ScanSpec)

	for _, dir := range dirs {
		if err := loadFromDir(dir, specs); err != nil {
			// Skip directories that don't exist
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
	}

	return specs, nil
}

func loadFromDir(dir string, specs map[string]*models.ScanSpec) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !IsYAML(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		spec, err := Parse(path)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if _, ok := specs[spec.Name]; ok {
			// Earlier directories take precedence.
			continue
		}
		specs[spec.Name] = spec
	}

	return nil
}

func IsYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func trimExt(name string) string {
	return strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
}

func Validate(spec *models.ScanSpec) error {
	if spec.Mode != models.ModeLocal && spec.Mode != models.ModeBatch {
		return fmt.Errorf("scan %q: unknown mode %q", spec.Name, spec.Mode)
	}

	if len(spec.Masses) == 0 && spec.Range == nil {
		return fmt.Errorf("scan %q must list masses or a range", spec.Name)
	}

	for _, m := range spec.Masses {
		if err := models.ValidateMass(m); err != nil {
			return fmt.Errorf("scan %q: %w", spec.Name, err)
		}
	}

	if r := spec.Range; r != nil {
		if err := models.ValidateMass(r.Start); err != nil {
			return fmt.Errorf("scan %q range start: %w", spec.Name, err)
		}
		if r.Stop < r.Start {
			return fmt.Errorf("scan %q: range stop %s below start %s", spec.Name, r.Stop, r.Start)
		}
		if r.Step <= 0 {
			return fmt.Errorf("scan %q: range step must be positive", spec.Name)
		}
		if float64((r.Stop-r.Start)/r.Step) >= MaxScanPoints {
			return fmt.Errorf("scan %q: range expands to more than %d points", spec.Name, MaxScanPoints)
		}
	}

	return nil
}

// Masses lists the explicit masses followed by the expanded range.
// The spec must already be valid.
func Masses(spec *models.ScanSpec) []models.Mass {
	out := append([]models.Mass(nil), spec.Masses...)
	if r := spec.Range; r != nil {
		// Small tolerance so 100..1000 step 100 includes 1000.
		limit := float64(r.Stop) + float64(r.Step)*1e-9
		for i := 0; i < MaxScanPoints; i++ {
			m := float64(r.Start) + float64(i)*float64(r.Step)
			if m > limit {
				break
			}
			out = append(out, models.Mass(m))
		}
	}
	return out
}
