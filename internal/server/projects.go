package server

import (
	"net/http"

	"crowdfund/internal/projects"
	"crowdfund/internal/storage"
	"crowdfund/pkg/types"
)

type projectView struct {
	*types.Project
	ImageURLs []string `json:"imageUrls"`
}

func (s *Service) projectView(r *http.Request, project *types.Project) *projectView {
	view := &projectView{Project: project, ImageURLs: make([]string, 0, len(project.ImageKeys))}

	for _, key := range project.ImageKeys {
		url, err := s.objects.URL(r.Context(), storage.BucketProjectImages, key)
		if err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("failed to resolve project image url")
			continue
		}
		view.ImageURLs = append(view.ImageURLs, url)
	}

	return view
}

func (s *Service) handleListProjects(w http.ResponseWriter, r *http.Request) {
	var filter types.ProjectFilter
	if err := decoder.Decode(&filter, r.URL.Query()); err != nil {
		s.writeError(w, r, types.NewValidationError("query", err.Error()))
		return
	}

	list, err := s.projects.ListProjects(r.Context(), filter, userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, list)
}

func (s *Service) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.Project(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.projectView(r, project))
}

func (s *Service) handleProjectDashboard(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")

	// visibility check first so drafts stay private
	if _, err := s.projects.Project(r.Context(), projectID, userIDFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}

	dashboard, err := s.funding.ProjectDashboard(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, dashboard)
}

func (s *Service) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var input projects.ProjectInput
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	project, err := s.projects.CreateProject(r.Context(), userIDFromContext(r.Context()), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, project)
}

func (s *Service) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var input projects.ProjectInput
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	project, err := s.projects.UpdateProject(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, project)
}

func (s *Service) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.DeleteProject(r.Context(), r.PathValue("id"), userIDFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeEnvelope(w, http.StatusOK, envelope{Success: true, Message: "Project deleted."})
}

func (s *Service) handlePublishProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.PublishProject(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, project)
}

func (s *Service) handleCancelProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.CancelProject(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, project)
}

func (s *Service) handleCompleteProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.CompleteProject(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, project)
}

func (s *Service) handleUploadProjectImage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	projectID := r.PathValue("id")

	object, err := s.receiveUpload(w, r, storage.BucketProjectImages, userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	project, err := s.projects.AddProjectImage(r.Context(), projectID, userID, object.Key)
	if err != nil {
		s.discardUpload(r, object)
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, s.projectView(r, project))
}

func (s *Service) handleListTiers(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")

	if _, err := s.projects.Project(r.Context(), projectID, userIDFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}

	tiers, err := s.projects.TiersByProject(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, tiers)
}

func (s *Service) handleTierAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := s.funding.CheckTierAvailability(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, availability)
}

func (s *Service) handleCreateTier(w http.ResponseWriter, r *http.Request) {
	var input projects.TierInput
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	tier, err := s.projects.CreateTier(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, tier)
}

func (s *Service) handleUpdateTier(w http.ResponseWriter, r *http.Request) {
	var input projects.TierInput
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	tier, err := s.projects.UpdateTier(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, tier)
}

func (s *Service) handleDeleteTier(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.DeleteTier(r.Context(), r.PathValue("id"), userIDFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeEnvelope(w, http.StatusOK, envelope{Success: true, Message: "Reward tier deleted."})
}
