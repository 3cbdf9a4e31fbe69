package dto

import (
	"time"

	"letsvida.com/guestsos/internal/model"
)

type CreateAlertRequest struct {
	Latitude  *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" binding:"omitempty,longitude"`
}

type TransitionRequest struct {
	Notes *string `json:"notes" binding:"omitempty,max=2000"`
}

type AlertFilter struct {
	Status []string `form:"status" binding:"omitempty,dive,oneof=pending acknowledged resolved false_alarm"`
	Page   int      `form:"page,default=1" binding:"min=1"`
	Limit  int      `form:"limit,default=50" binding:"min=1,max=200"`
}

type DispatchRequest struct {
	// Target is the contact number, digits only. Falls back to the configured
	// on-duty dispatch number when empty.
	Target string `json:"target" binding:"omitempty,numeric,max=20"`
}

type AlertResponse struct {
	ID            string     `json:"id"`
	SubjectUserID string     `json:"subject_user_id"`
	SubjectName   string     `json:"subject_name,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	Status        string     `json:"status"`
	Notes         *string    `json:"notes,omitempty"`
	EvidenceURL   *string    `json:"evidence_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

func ToAlertResponse(alert *model.Alert) AlertResponse {
	resp := AlertResponse{
		ID:            alert.ID.String(),
		SubjectUserID: alert.SubjectUserID.String(),
		Latitude:      alert.Latitude,
		Longitude:     alert.Longitude,
		Status:        string(alert.Status),
		Notes:         alert.Notes,
		EvidenceURL:   alert.EvidenceURL,
		CreatedAt:     alert.CreatedAt,
		UpdatedAt:     alert.UpdatedAt,
		ResolvedAt:    alert.ResolvedAt,
	}
	if alert.Subject != nil {
		resp.SubjectName = alert.Subject.Username
	}
	return resp
}
