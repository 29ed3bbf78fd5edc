package api

import (
	"github.com/starford/webring/internal/models"
	"github.com/starford/webring/internal/moderation"
	"github.com/starford/webring/internal/photos"
)

// SubmitResponse is returned after a submission is queued.
type SubmitResponse struct {
	Success bool   `json:"success" example:"true"`
	ID      string `json:"id" example:"jane-doe" validate:"required"`
}

// MembersResponse wraps a member listing.
type MembersResponse struct {
	Members []models.Member `json:"members" validate:"required"`
}

// MemberDetail is a member plus incoming connections (aliased from the domain layer).
type MemberDetail = moderation.MemberDetail

// SubmissionsResponse wraps the pending queue.
type SubmissionsResponse struct {
	Submissions []models.Submission `json:"submissions" validate:"required"`
}

// ResolveRequest is the body of a moderation decision.
type ResolveRequest struct {
	ID     string `json:"id" example:"jane-doe" validate:"required"`
	Action string `json:"action" example:"promote" validate:"required"`
}

// ResolveResponse reports an applied decision.
type ResolveResponse struct {
	Success   bool   `json:"success" example:"true"`
	Action    string `json:"action" example:"promote"`
	Remaining int    `json:"remaining" example:"3"`
}

// MemberRequest is a full member record. OriginalID names the entry being
// replaced when the id itself changes.
type MemberRequest struct {
	models.Member
	OriginalID string `json:"originalId,omitempty" example:"jane-doe"`
}

// PhotoUploadResponse is returned after a successful photo upload.
type PhotoUploadResponse = photos.Photo

// PhotosResponse lists stored photos.
type PhotosResponse struct {
	Photos []photos.Photo `json:"photos" validate:"required"`
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
