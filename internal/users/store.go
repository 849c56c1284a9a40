package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/metrics"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/optional"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

var (
	// ErrInvalidIdentity indicates the provider subject was empty.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrProvisionConflict indicates a unique violation whose winning identity could not be read back.
	ErrProvisionConflict = errors.New("users: identity missing after provisioning conflict")

	errMissingDatabase = errors.New("users: database connection required")
)

// StoreConfig describes the dependencies required for identity resolution.
type StoreConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Logger     *zap.Logger
	Metrics    *metrics.Collectors
}

// Store maps provider subjects onto durable local users.
type Store struct {
	db      *gorm.DB
	ids     IDProvider
	logger  *zap.Logger
	metrics *metrics.Collectors
}

// NewStore constructs the identity store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:      cfg.Database,
		ids:     ids,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// ResolveOrCreate returns the user owning the home-realm identity for
// providerSubjectID, provisioning a user and identity on first sight.
// A concurrent provisioning of the same subject surfaces as a unique
// violation on the identity insert; the half-created user is rolled back
// and the lookup is repeated once.
func (s *Store) ResolveOrCreate(ctx context.Context, providerSubjectID string) (User, error) {
	subject := normalize(providerSubjectID)
	if subject == "" {
		return User{}, ErrInvalidIdentity
	}

	user, found, err := s.findByIdentity(ctx, subject)
	if err != nil {
		return User{}, err
	}
	if found {
		return user, nil
	}

	user, err = s.provision(ctx, subject)
	if err == nil {
		s.logger.Info("user provisioned", zap.String("user_id", user.ID), zap.String("identity_type", HomeRealm))
		s.metrics.ObserveProvisioned()
		return user, nil
	}
	if !isUniqueViolation(err) {
		return User{}, err
	}

	s.logger.Info("identity provisioned concurrently, reloading", zap.String("identity_type", HomeRealm))
	user, found, err = s.findByIdentity(ctx, subject)
	if err != nil {
		return User{}, err
	}
	if !found {
		return User{}, ErrProvisionConflict
	}
	return user, nil
}

// Load fetches a user together with all of its identities.
func (s *Store) Load(ctx context.Context, userID string) (optional.Value[User], error) {
	id := normalize(userID)
	if id == "" {
		return optional.None[User](), nil
	}

	var user User
	err := s.db.WithContext(ctx).
		Preload("Identities").
		Where("id = ?", id).
		Take(&user).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return optional.None[User](), nil
	}
	if err != nil {
		return optional.None[User](), fmt.Errorf("users: load user: %w", err)
	}
	return optional.Some(user), nil
}

func (s *Store) findByIdentity(ctx context.Context, subject string) (User, bool, error) {
	var identity Identity
	err := s.db.WithContext(ctx).
		Where("type = ? AND identifier = ?", HomeRealm, subject).
		Take(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("users: find identity: %w", err)
	}

	loaded, err := s.Load(ctx, identity.UserID)
	if err != nil {
		return User{}, false, err
	}
	user, ok := loaded.Get()
	if !ok {
		return User{}, false, fmt.Errorf("users: identity %s references missing user", identity.ID)
	}
	return user, true, nil
}

func (s *Store) provision(ctx context.Context, subject string) (User, error) {
	userID, err := s.ids.NewID()
	if err != nil {
		return User{}, fmt.Errorf("users: generate user id: %w", err)
	}
	identityID, err := s.ids.NewID()
	if err != nil {
		return User{}, fmt.Errorf("users: generate identity id: %w", err)
	}

	user := User{
		ID:              userID,
		DefaultIdentity: HomeRealm,
	}
	identity := Identity{
		ID:         identityID,
		UserID:     userID,
		Type:       HomeRealm,
		Identifier: subject,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&identity).Error
	})
	if err != nil {
		return User{}, err
	}

	user.Identities = []Identity{identity}
	return user, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
