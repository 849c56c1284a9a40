package directory

import (
	"context"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/optional"
)

const serviceProfiles = "profiles"

// ProfilesClient looks up profiles by identifier.
type ProfilesClient struct {
	client client
}

// NewProfilesClient constructs a client for {BaseURL}/profiles.
func NewProfilesClient(cfg ClientConfig) (*ProfilesClient, error) {
	base, err := newClient(serviceProfiles, cfg)
	if err != nil {
		return nil, err
	}
	return &ProfilesClient{client: base}, nil
}

// GetProfileByID returns the profile for id, or an absent value when the
// service has no usable record for it.
func (c *ProfilesClient) GetProfileByID(ctx context.Context, id string) (optional.Value[Profile], error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return optional.None[Profile](), nil
	}
	var profile Profile
	found, err := c.client.getJSON(ctx, c.client.baseURL+"/profiles/"+url.PathEscape(id), &profile)
	if err != nil || !found {
		return optional.None[Profile](), err
	}
	return optional.Some(profile), nil
}
