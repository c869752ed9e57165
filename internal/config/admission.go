package config

import "fmt"

// AdmissionConfig holds configuration for the Admission Controller.
type AdmissionConfig struct {
	// AdminGroup names the group whose members may cancel or abort
	// operations they do not operate or own a component of.
	AdminGroup string `mapstructure:"admin_group"`
}

// Validate checks the admission configuration.
func (a *AdmissionConfig) Validate() error {
	if a.AdminGroup == "" {
		return fmt.Errorf("admin_group must not be empty")
	}
	return nil
}

// SetDefaults sets default values for admission configuration.
func (a *AdmissionConfig) SetDefaults() {
	if a.AdminGroup == "" {
		a.AdminGroup = "admins"
	}
}
