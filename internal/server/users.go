package server

import (
	"errors"
	"net/http"

	"crowdfund/internal/storage"
	"crowdfund/internal/users"
	"crowdfund/pkg/types"
)

type profileView struct {
	*types.User
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func (s *Service) profileView(r *http.Request, user *types.User) *profileView {
	view := &profileView{User: user}
	if user.AvatarKey == nil {
		return view
	}

	url, err := s.objects.URL(r.Context(), storage.BucketProfilePictures, *user.AvatarKey)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("failed to resolve avatar url")
		return view
	}

	view.AvatarURL = url
	return view
}

func (s *Service) handleGetMe(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	user, err := s.users.Profile(r.Context(), userID)
	if errors.Is(err, types.ErrUserNotFound) {
		// registered before the profile row existed
		if err = s.users.EnsureUser(r.Context(), userID, emailFromContext(r.Context()), "", ""); err == nil {
			user, err = s.users.Profile(r.Context(), userID)
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.profileView(r, user))
}

func (s *Service) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var input users.ProfileInput
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.users.UpdateProfile(r.Context(), userIDFromContext(r.Context()), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.profileView(r, user))
}

func (s *Service) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	object, err := s.receiveUpload(w, r, storage.BucketProfilePictures, userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.users.SetAvatar(r.Context(), userID, object.Key)
	if err != nil {
		s.discardUpload(r, object)
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.profileView(r, user))
}
