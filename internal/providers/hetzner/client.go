// Package hetzner adapts the Hetzner Cloud API to the providers contract.
package hetzner

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/pressdeck/engine/internal/providers"
)

// idempotencyLabel marks servers created by this control plane so a retried
// create can adopt a server whose creation response was lost.
const idempotencyLabel = "pressdeck.io/idempotency-key"

// Client implements providers.ComputeProvider against the Hetzner Cloud API.
type Client struct {
	hc *hcloud.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHCloudClient replaces the underlying hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// New creates a compute adapter authenticated with the given API token.
func New(token string, opts ...Option) *Client {
	c := &Client{hc: hcloud.NewClient(hcloud.WithToken(token))}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ providers.ComputeProvider = (*Client)(nil)

func (c *Client) CreateServer(ctx context.Context, spec providers.ServerSpec) (*providers.ServerObservation, error) {
	serverType, _, err := c.hc.ServerType.Get(ctx, spec.ServerType)
	if err != nil {
		return nil, classify(err)
	}
	if serverType == nil {
		return nil, providers.NewError(providers.ErrConfigInvalid, fmt.Errorf("server type %q not found", spec.ServerType))
	}

	image, _, err := c.hc.Image.GetForArchitecture(ctx, spec.Image, serverType.Architecture)
	if err != nil {
		return nil, classify(err)
	}
	if image == nil {
		return nil, providers.NewError(providers.ErrConfigInvalid, fmt.Errorf("image %q not found", spec.Image))
	}

	location, _, err := c.hc.Location.Get(ctx, spec.Location)
	if err != nil {
		return nil, classify(err)
	}
	if location == nil {
		return nil, providers.NewError(providers.ErrConfigInvalid, fmt.Errorf("location %q not found", spec.Location))
	}

	res, _, err := c.hc.Server.Create(ctx, hcloud.ServerCreateOpts{
		Name:       spec.Name,
		ServerType: serverType,
		Image:      image,
		Location:   location,
		Labels:     map[string]string{idempotencyLabel: spec.IdempotencyKey},
	})
	if err != nil {
		return nil, classify(err)
	}

	return observe(res.Server), nil
}

func (c *Client) DescribeServer(ctx context.Context, externalID string) (*providers.ServerObservation, error) {
	id, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return nil, providers.NewError(providers.ErrConfigInvalid, fmt.Errorf("bad external id %q: %w", externalID, err))
	}
	server, _, err := c.hc.Server.GetByID(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	if server == nil {
		return nil, providers.NewError(providers.ErrNotFound, fmt.Errorf("server %s not found", externalID))
	}
	return observe(server), nil
}

func (c *Client) DescribeServerByName(ctx context.Context, name string) (*providers.ServerObservation, error) {
	server, _, err := c.hc.Server.GetByName(ctx, name)
	if err != nil {
		return nil, classify(err)
	}
	if server == nil {
		return nil, providers.NewError(providers.ErrNotFound, fmt.Errorf("server %q not found", name))
	}
	return observe(server), nil
}

func (c *Client) DestroyServer(ctx context.Context, externalID string) error {
	id, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return providers.NewError(providers.ErrConfigInvalid, fmt.Errorf("bad external id %q: %w", externalID, err))
	}
	server, _, err := c.hc.Server.GetByID(ctx, id)
	if err != nil {
		return classify(err)
	}
	if server == nil {
		// Already gone, idempotent delete.
		return providers.NewError(providers.ErrNotFound, fmt.Errorf("server %s not found", externalID))
	}
	if _, _, err := c.hc.Server.DeleteWithResult(ctx, server); err != nil {
		return classify(err)
	}
	return nil
}

// Validate lists locations, the cheapest read-only call available.
func (c *Client) Validate(ctx context.Context) error {
	if _, err := c.hc.Location.All(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func observe(s *hcloud.Server) *providers.ServerObservation {
	obs := &providers.ServerObservation{
		ExternalID: strconv.FormatInt(s.ID, 10),
		Running:    s.Status == hcloud.ServerStatusRunning,
	}
	if !s.PublicNet.IPv4.IsUnspecified() {
		obs.PublicIPv4 = s.PublicNet.IPv4.IP.String()
	}
	return obs
}
