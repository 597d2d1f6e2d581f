package model

import (
	"time"
)

// Role names one of the three inference providers.
type Role string

const (
	// RoleEncoder maps utterances to speaker embeddings.
	RoleEncoder Role = "encoder"

	// RoleSynthesizer maps text and embeddings to spectrograms.
	RoleSynthesizer Role = "synthesizer"

	// RoleVocoder maps spectrograms to waveforms.
	RoleVocoder Role = "vocoder"
)

// Roles lists the providers in load order.
var Roles = []Role{RoleEncoder, RoleSynthesizer, RoleVocoder}

// ModelStatus is the current loading status of a provider.
type ModelStatus string

const (
	// ModelStatusUnloaded indicates that the provider has not been loaded yet.
	ModelStatusUnloaded ModelStatus = "unloaded"

	// ModelStatusLoading indicates that the provider is being loaded.
	ModelStatusLoading ModelStatus = "loading"

	// ModelStatusLoaded indicates that the provider is loaded. It never reverts.
	ModelStatusLoaded ModelStatus = "loaded"

	// ModelStatusFailed indicates that the last load attempt failed. The next
	// EnsureReady retries it.
	ModelStatusFailed ModelStatus = "failed"
)

// Instance is the state of one provider.
type Instance struct {
	LoadedAt *time.Time  `json:"loaded_at,omitempty"`
	Role     Role        `json:"role"`
	Backend  string      `json:"backend"`
	Location string      `json:"location"`
	Status   ModelStatus `json:"status"`
	Error    string      `json:"error,omitempty"`
}

// SetStatus sets the status of the instance.
func (i *Instance) SetStatus(status ModelStatus) {
	i.Status = status
	if status == ModelStatusLoaded {
		now := time.Now()
		i.LoadedAt = &now
		i.Error = ""
	}
}

// SetError marks the instance failed with err.
func (i *Instance) SetError(err error) {
	i.Status = ModelStatusFailed
	i.Error = err.Error()
}
