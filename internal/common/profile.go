package common

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Profile describes one deployed financing instance: the underlying asset,
// where its yield vault lives, and the two privileged identities.
type Profile struct {
	Asset          string `yaml:"asset"`
	VaultURL       string `yaml:"vault_url"`
	AdminIdentity  string `yaml:"admin_identity"`
	EngineIdentity string `yaml:"engine_identity"`
}

func LoadProfile(profileFile string) (*Profile, error) {
	var profilePath string
	if filepath.IsAbs(profileFile) {
		profilePath = profileFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		profilePath = filepath.Join(wd, profileFile)
	}

	data, err := os.ReadFile(profilePath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", profileFile, err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", profileFile, err)
	}

	if profile.Asset == "" {
		return nil, fmt.Errorf("profile missing asset")
	}
	if profile.AdminIdentity == "" {
		return nil, fmt.Errorf("profile missing admin_identity")
	}
	if profile.EngineIdentity == "" {
		return nil, fmt.Errorf("profile missing engine_identity")
	}

	return &profile, nil
}
