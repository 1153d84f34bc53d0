package models

// ScanSpec describes a sequence of orchestrations over several masses.
type ScanSpec struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Mode        Mode       `yaml:"mode"`
	Masses      []Mass     `yaml:"masses"`
	Range       *MassRange `yaml:"range,omitempty"`
}

// MassRange expands to start, start+step, ... up to and including stop.
type MassRange struct {
	Start Mass `yaml:"start"`
	Stop  Mass `yaml:"stop"`
	Step  Mass `yaml:"step"`
}
