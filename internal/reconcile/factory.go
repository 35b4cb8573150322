package reconcile

import (
	"github.com/pressdeck/engine/internal/models"
	"github.com/pressdeck/engine/internal/providers"
	"github.com/pressdeck/engine/internal/providers/dokploy"
	"github.com/pressdeck/engine/internal/providers/hetzner"
)

// AdapterFactory builds provider adapters from stored credentials. Adapters
// hold no mutable state between calls, so a fresh one per reconciliation is
// cheap and keeps tokens out of long-lived structs.
type AdapterFactory interface {
	Compute(cred *models.Credential) providers.ComputeProvider
	Deploy(cred *models.Credential) providers.DeployProvider
}

type adapterFactory struct{}

// NewAdapterFactory returns the production factory backed by the Hetzner
// and Dokploy clients.
func NewAdapterFactory() AdapterFactory {
	return adapterFactory{}
}

func (adapterFactory) Compute(cred *models.Credential) providers.ComputeProvider {
	return hetzner.New(string(cred.Token))
}

func (adapterFactory) Deploy(cred *models.Credential) providers.DeployProvider {
	return dokploy.New(cred.BaseURL, string(cred.Token))
}
