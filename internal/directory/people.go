package directory

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/optional"
	"go.uber.org/zap"
)

const (
	servicePeople = "people"
	peoplePerPage = 100
)

// ErrInvalidRole is returned when a role listing is requested for an unknown role.
var ErrInvalidRole = errors.New("directory: invalid role")

var validRoles = map[string]struct{}{
	"director":         {},
	"early-career":     {},
	"executive":        {},
	"leadership":       {},
	"reviewing-editor": {},
	"senior-editor":    {},
}

var roleAliases = map[string]string{
	"seniorEditor":    "senior-editor",
	"reviewingEditor": "reviewing-editor",
}

// IsValidRole reports whether role can be listed.
func IsValidRole(role string) bool {
	_, ok := validRoles[role]
	return ok
}

// NormalizeRole maps camel-cased role names used by clients onto directory role ids.
func NormalizeRole(role string) string {
	role = strings.TrimSpace(role)
	if alias, ok := roleAliases[role]; ok {
		return alias
	}
	return role
}

// PeopleClient looks up people and role listings.
type PeopleClient struct {
	client client
}

// NewPeopleClient constructs a client for {BaseURL}/people.
func NewPeopleClient(cfg ClientConfig) (*PeopleClient, error) {
	base, err := newClient(servicePeople, cfg)
	if err != nil {
		return nil, err
	}
	return &PeopleClient{client: base}, nil
}

// IsValidRole reports whether role can be listed.
func (c *PeopleClient) IsValidRole(role string) bool {
	return IsValidRole(role)
}

// GetPersonByID returns the person for id, or an absent value when the
// service has no usable record for it.
func (c *PeopleClient) GetPersonByID(ctx context.Context, id string) (optional.Value[Person], error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return optional.None[Person](), nil
	}
	var person Person
	found, err := c.client.getJSON(ctx, c.client.baseURL+"/people/"+url.PathEscape(id), &person)
	if err != nil || !found {
		return optional.None[Person](), err
	}
	return optional.Some(person), nil
}

type peoplePage struct {
	Total int      `json:"total"`
	Items []Person `json:"items"`
}

// GetPeopleByRole lists every person holding role, following pages until
// the reported total is reached.
func (c *PeopleClient) GetPeopleByRole(ctx context.Context, role string) ([]EditorAlias, error) {
	if !IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	people := make([]Person, 0)
	for page := 1; ; page++ {
		var current peoplePage
		found, err := c.client.getJSON(ctx, c.peopleURL(role, page), &current)
		if err != nil {
			return nil, err
		}
		if !found {
			// A listing with a missing page is reported as empty rather than short.
			c.client.logger.Warn("people listing incomplete, discarding collected pages",
				zap.String("role", role),
				zap.Int("page", page),
				zap.Int("discarded", len(people)))
			return []EditorAlias{}, nil
		}
		people = append(people, current.Items...)
		if len(current.Items) == 0 || len(people) >= current.Total {
			break
		}
	}

	aliases := make([]EditorAlias, 0, len(people))
	for _, person := range people {
		aliases = append(aliases, newEditorAlias(person))
	}
	return aliases, nil
}

func (c *PeopleClient) peopleURL(role string, page int) string {
	query := url.Values{}
	query.Set("order", "asc")
	query.Set("page", strconv.Itoa(page))
	query.Set("per-page", strconv.Itoa(peoplePerPage))
	query.Add("type[]", role)
	return c.client.baseURL + "/people?" + query.Encode()
}
