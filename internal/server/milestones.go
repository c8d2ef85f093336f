package server

import (
	"net/http"

	"crowdfund/internal/projects"
	"crowdfund/internal/storage"
	"crowdfund/pkg/types"
)

type milestonePlanRequest struct {
	Milestones []projects.MilestoneInput `json:"milestones"`
}

type milestoneStatusRequest struct {
	Status types.MilestoneStatus `json:"status"`
}

type feedbackRequest struct {
	Score int `json:"score"`
}

func (s *Service) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")

	if _, err := s.projects.Project(r.Context(), projectID, userIDFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}

	milestones, err := s.projects.MilestonesByProject(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, milestones)
}

func (s *Service) handleMilestoneProgress(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")

	if _, err := s.projects.Project(r.Context(), projectID, userIDFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}

	progress, err := s.projects.MilestoneProgress(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, progress)
}

func (s *Service) handleSetMilestones(w http.ResponseWriter, r *http.Request) {
	var input milestonePlanRequest
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	milestones, err := s.projects.SetMilestones(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()), input.Milestones)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, milestones)
}

func (s *Service) handleUpdateMilestone(w http.ResponseWriter, r *http.Request) {
	var input milestoneStatusRequest
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	milestone, err := s.projects.UpdateMilestoneStatus(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()), input.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, milestone)
}

func (s *Service) handleUploadEvidence(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	object, err := s.receiveUpload(w, r, storage.BucketMilestoneEvidence, userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	milestone, err := s.projects.AddMilestoneEvidence(r.Context(), r.PathValue("id"), userID, object.Key)
	if err != nil {
		s.discardUpload(r, object)
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, milestone)
}

func (s *Service) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var input feedbackRequest
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	milestone, err := s.projects.SubmitFeedback(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()), input.Score)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"milestoneId":   milestone.ID,
		"feedbackCount": milestone.FeedbackCount,
		"feedbackScore": milestone.FeedbackScore(),
	})
}
