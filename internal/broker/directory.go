package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/directory"
	"go.uber.org/zap"
)

// DirectoryConfig wires the people pass-through.
type DirectoryConfig struct {
	People PeopleDirectory
	Logger *zap.Logger
}

// Directory exposes people lookups to authenticated callers.
type Directory struct {
	people PeopleDirectory
	logger *zap.Logger
}

// NewDirectory constructs the pass-through.
func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if cfg.People == nil {
		return nil, errMissingPeople
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{people: cfg.People, logger: logger}, nil
}

// Editors lists the people holding role.
func (d *Directory) Editors(ctx context.Context, role string) ([]directory.EditorAlias, error) {
	normalized := directory.NormalizeRole(role)
	if !d.people.IsValidRole(normalized) {
		return nil, fmt.Errorf("%w %s", ErrInvalidRole, normalized)
	}
	editors, err := d.people.GetPeopleByRole(context.WithoutCancel(ctx), normalized)
	if err != nil {
		return nil, d.translate(err)
	}
	return editors, nil
}

// Person returns the person with id.
func (d *Directory) Person(ctx context.Context, id string) (directory.Person, error) {
	result, err := d.people.GetPersonByID(context.WithoutCancel(ctx), id)
	if err != nil {
		return directory.Person{}, d.translate(err)
	}
	person, ok := result.Get()
	if !ok {
		return directory.Person{}, ErrPersonNotFound
	}
	return person, nil
}

func (d *Directory) translate(err error) error {
	switch {
	case errors.Is(err, directory.ErrInvalidRole):
		return fmt.Errorf("%w: %v", ErrInvalidRole, err)
	case errors.Is(err, directory.ErrUnavailable):
		d.logger.Warn("people service unavailable", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDownstreamUnavailable, err)
	default:
		return fmt.Errorf("broker: people lookup: %w", err)
	}
}
