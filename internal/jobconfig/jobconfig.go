// Package jobconfig writes the MadGraph steering script for a H_R++ sample.
package jobconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpataki/dchgen/internal/models"
)

// FileName is the steering script name the generator is pointed at.
const FileName = "mc.aMGPy8EG_HPPR.txt"

var ErrInvalidLabel = errors.New("invalid output label")

// Same-sign dilepton production through H_R++ H_R--, showered with Pythia8.
// Widths are left for MadGraph to compute.
const template = `
import model lrsm_1_3_2_UFO_DCH
define rm h h2 hp2 hm2 n1 n2 n3
define h++ hl++ hr++
define h-- hl-- hr--
define l+ e+ mu+ ta+
define l- e- mu- ta-
generate p p > h++ h--, h++ > l+ l+, h-- > l- l- / rm ` + `
output {output}
shower=pythia8
launch
set MHPPR {mass}
set WHPPL auto
set WHPPR auto
`

// OutputLabel is the generator output directory name used for a mass.
func OutputLabel(mass models.Mass) string {
	return "MG5aMC_SSmumujj_MHPPR_" + mass.String()
}

// ValidateLabel rejects labels MadGraph or the filesystem would choke on.
func ValidateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("%w: empty", ErrInvalidLabel)
	}
	if label == "." || label == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	if i := strings.IndexFunc(label, badLabelRune); i >= 0 {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidLabel, label, label[i])
	}
	return nil
}

func badLabelRune(r rune) bool {
	if r <= ' ' || r == 0x7f {
		return true
	}
	return strings.ContainsRune(`/\"'$;|&<>()*?[]{}#!~`+"`", r)
}

// Render returns the steering script text.
func Render(mass models.Mass, label string) string {
	r := strings.NewReplacer("{output}", label, "{mass}", mass.String())
	return r.Replace(template)
}

// Generate writes the steering script into dir, replacing any existing one,
// and returns its path.
func Generate(dir string, mass models.Mass, label string) (string, error) {
	if err := models.ValidateMass(mass); err != nil {
		return "", err
	}
	if err := ValidateLabel(label); err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(Render(mass, label)), 0644); err != nil {
		return "", fmt.Errorf("failed to write steering script: %w", err)
	}
	return path, nil
}
