package orchestratorapi

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/LucasBiason/threat-modeling-ai/internal/jobstore"
	"github.com/LucasBiason/threat-modeling-ai/internal/notification"
)

// analysisCreatedResponse is the 201 body for POST /api/v1/analyses.
type analysisCreatedResponse struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	ImageURL  string    `json:"imageUrl"`
}

// analysisDetail is the GET detail/list representation of an Analysis;
// Result is forwarded as raw JSON rather than re-decoded into
// pipeline.ThreatReport, since the HTTP boundary has no need to touch it.
type analysisDetail struct {
	ID           uuid.UUID       `json:"id"`
	Code         string          `json:"code"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	ImageURL     string          `json:"imageUrl"`
}

func toAnalysisDetail(a *jobstore.Analysis) analysisDetail {
	return analysisDetail{
		ID:           a.ID,
		Code:         a.Code,
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt,
		StartedAt:    a.StartedAt,
		FinishedAt:   a.FinishedAt,
		Result:       json.RawMessage(a.Result),
		ErrorMessage: a.ErrorMessage,
		ImageURL:     "/api/v1/analyses/" + a.ID.String() + "/image",
	}
}

type logsResponse struct {
	Logs string `json:"logs"`
}

type unreadNotificationsResponse struct {
	UnreadCount   int                      `json:"unreadCount"`
	Notifications []notification.Notification `json:"notifications"`
}
