package presets

import (
	"context"

	"github.com/iwvelando/tank-quote/internal/client"
	"github.com/iwvelando/tank-quote/internal/tank"
)

// RemoteSource keeps presets in the backend, reached through the proxy API.
type RemoteSource struct {
	api *client.Client
}

// NewRemoteSource wraps api.
func NewRemoteSource(api *client.Client) *RemoteSource {
	return &RemoteSource{api: api}
}

func (r *RemoteSource) List(ctx context.Context) ([]tank.Preset, error) {
	return r.api.ListPresets(ctx)
}

func (r *RemoteSource) Save(ctx context.Context, name string, params tank.TankParams) error {
	return r.api.SavePreset(ctx, name, params)
}

func (r *RemoteSource) Delete(ctx context.Context, name string) error {
	return r.api.DeletePreset(ctx, name)
}
