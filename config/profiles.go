package config

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var profilesYAML []byte

// Profile is a named accuracy preset
type Profile struct {
	Name         string  `yaml:"-"`
	Tolerance    float64 `yaml:"tolerance"`
	MinFaceSize  int     `yaml:"min_face_size"`
	MinFaceRatio float64 `yaml:"min_face_ratio"`
	Upsamples    int     `yaml:"upsamples"`
	Model        string  `yaml:"model"`
}

type profileFile struct {
	Default  string             `yaml:"default"`
	Profiles map[string]Profile `yaml:"profiles"`
}

// Profiles parses the embedded accuracy profiles and returns them with the default profile name
func Profiles() (map[string]Profile, string, error) {
	var pf profileFile
	if err := yaml.Unmarshal(profilesYAML, &pf); err != nil {
		return nil, "", fmt.Errorf("failed to parse embedded profiles: %w", err)
	}
	for name, p := range pf.Profiles {
		p.Name = name
		pf.Profiles[name] = p
	}
	if _, ok := pf.Profiles[pf.Default]; !ok {
		return nil, "", fmt.Errorf("default profile %q is not defined", pf.Default)
	}
	return pf.Profiles, pf.Default, nil
}

// LookupProfile returns the named profile, or the default one when name is empty
func LookupProfile(name string) (Profile, error) {
	profiles, def, err := Profiles()
	if err != nil {
		return Profile{}, err
	}
	if name == "" {
		name = def
	}
	p, ok := profiles[name]
	if !ok {
		names := make([]string, 0, len(profiles))
		for n := range profiles {
			names = append(names, n)
		}
		sort.Strings(names)
		return Profile{}, fmt.Errorf("unknown face profile %q (available: %v)", name, names)
	}
	return p, nil
}
