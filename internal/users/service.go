package users

import (
	"context"
	"errors"
	"io"
	"strings"

	"crowdfund/internal/storage"
	"crowdfund/internal/utils"
	"crowdfund/pkg/types"

	"github.com/sirupsen/logrus"
)

type Store interface {
	User(ctx context.Context, userID string) (*types.User, error)
	UsersByIDs(ctx context.Context, userIDs []string) ([]*types.User, error)
	Create(ctx context.Context, user *types.User) error
	Update(ctx context.Context, userID string, user *types.User) error
	UpsertIdentity(ctx context.Context, userID, email, givenName, familyName string) error
}

type ObjectStore interface {
	Delete(ctx context.Context, bucket storage.Bucket, key string) error
}

type Service struct {
	store   Store
	objects ObjectStore
	logger  *logrus.Logger
}

func NewService(store Store, objects ObjectStore, logger *logrus.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("users: store is required")
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &Service{store: store, objects: objects, logger: logger}, nil
}

// ProfileInput is a partial update; nil fields are left unchanged.
type ProfileInput struct {
	GivenName   *string           `json:"givenName,omitempty" validate:"omitempty,max=100"`
	FamilyName  *string           `json:"familyName,omitempty" validate:"omitempty,max=100"`
	Bio         *string           `json:"bio,omitempty" validate:"omitempty,max=500"`
	SocialLinks map[string]string `json:"socialLinks,omitempty" validate:"omitempty,max=10,dive,keys,required,max=30,endkeys,omitempty,http_url"`
	UserType    *types.UserType   `json:"userType,omitempty" validate:"omitempty,oneof=creator backer"`
}

// EnsureUser mirrors the identity provider's attributes into the profile row.
func (s *Service) EnsureUser(ctx context.Context, userID, email, givenName, familyName string) error {
	return s.store.UpsertIdentity(ctx, userID, email, givenName, familyName)
}

func (s *Service) Profile(ctx context.Context, userID string) (*types.User, error) {
	return s.store.User(ctx, userID)
}

// PublicProfiles loads profiles for display next to projects and backings.
func (s *Service) PublicProfiles(ctx context.Context, userIDs []string) (map[string]*types.User, error) {
	users, err := s.store.UsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*types.User, len(users))
	for _, user := range users {
		out[user.ID] = user.Public()
	}

	return out, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, input ProfileInput) (*types.User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	user, err := s.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.GivenName != nil {
		user.GivenName = utils.StringPtrOrNil(strings.TrimSpace(*input.GivenName))
	}
	if input.FamilyName != nil {
		user.FamilyName = utils.StringPtrOrNil(strings.TrimSpace(*input.FamilyName))
	}
	if input.Bio != nil {
		user.Bio = utils.StringPtrOrNil(strings.TrimSpace(*input.Bio))
	}
	if input.UserType != nil {
		user.UserType = input.UserType
	}
	if input.SocialLinks != nil {
		links := make(map[string]string, len(input.SocialLinks))
		for name, link := range input.SocialLinks {
			if link = strings.TrimSpace(link); link != "" {
				links[strings.ToLower(name)] = link
			}
		}
		user.SocialLinks = links
	}

	if err := s.store.Update(ctx, userID, user); err != nil {
		return nil, err
	}

	s.logger.WithField("user_id", userID).Info("profile updated")

	return user, nil
}

// SetAvatar points the profile at a newly uploaded picture and removes the old one.
func (s *Service) SetAvatar(ctx context.Context, userID, key string) (*types.User, error) {
	user, err := s.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	previous := user.AvatarKey
	user.AvatarKey = &key

	if err := s.store.Update(ctx, userID, user); err != nil {
		return nil, err
	}

	if previous != nil && *previous != key && s.objects != nil {
		if err := s.objects.Delete(ctx, storage.BucketProfilePictures, *previous); err != nil {
			s.logger.WithError(err).WithField("key", *previous).Warn("failed to delete previous avatar")
		}
	}

	return user, nil
}
