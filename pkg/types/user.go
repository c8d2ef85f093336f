package types

import "time"

type UserType string

const (
	UserTypeCreator UserType = "creator"
	UserTypeBacker  UserType = "backer"
)

const MaxBioLength = 500

type User struct {
	ID          string            `db:"id" json:"id"`
	UserType    *UserType         `db:"user_type" json:"userType,omitempty"`
	Email       *string           `db:"email" json:"email,omitempty"`
	GivenName   *string           `db:"given_name" json:"givenName,omitempty"`
	FamilyName  *string           `db:"family_name" json:"familyName,omitempty"`
	Bio         *string           `db:"bio" json:"bio,omitempty"`
	AvatarKey   *string           `db:"avatar_key" json:"avatarKey,omitempty"`
	SocialLinks map[string]string `db:"social_links" json:"socialLinks"` // jsonb object
	CreatedAt   time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updatedAt"`
}

type AuthSession struct {
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	ExpiresIn    int    `json:"expiresIn"`
}

// Public drops contact details before a profile is shown to other users.
func (u *User) Public() *User {
	out := *u
	out.Email = nil
	return &out
}
