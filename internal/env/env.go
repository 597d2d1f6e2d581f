// Package env resolves the deployment environment the process runs in.
package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/voxclone/internal/envvar"
)

// Environment is the deployment environment.
type Environment string

const (
	// Development enables human-friendly output.
	Development Environment = "development"

	// Production enables machine-readable output.
	Production Environment = "production"
)

// FromEnv reads the environment from VOXCLONE_ENV, defaulting to development.
func FromEnv() Environment {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envvar.VoxcloneEnv))) {
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}

func (e Environment) String() string {
	return string(e)
}
