package users

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/optional"
)

// HomeRealm is the identity type of the broker's own default identity provider.
const HomeRealm = "elife"

// User is the durable local identity issued on first successful login.
type User struct {
	ID              string     `gorm:"column:id;primaryKey;size:36;not null"`
	CreatedAt       time.Time  `gorm:"column:created;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated;autoUpdateTime"`
	DefaultIdentity string     `gorm:"column:default_identity;size:32;not null"`
	Identities      []Identity `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "user"
}

// IdentityByType returns the first identity of the given provider type.
func (u User) IdentityByType(identityType string) optional.Value[Identity] {
	for _, identity := range u.Identities {
		if identity.Type == identityType {
			return optional.Some(identity)
		}
	}
	return optional.None[Identity]()
}

// Identity maps a provider-issued subject onto a local user.
type Identity struct {
	ID          string    `gorm:"column:id;primaryKey;size:36;not null"`
	UserID      string    `gorm:"column:user_id;size:36;not null;index"`
	CreatedAt   time.Time `gorm:"column:created;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated;autoUpdateTime"`
	Type        string    `gorm:"column:type;size:32;not null;uniqueIndex:identity_identifier_type_index,priority:2"`
	Identifier  string    `gorm:"column:identifier;size:190;not null;uniqueIndex:identity_identifier_type_index,priority:1"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	Email       string    `gorm:"column:email;size:320"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "identity"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
