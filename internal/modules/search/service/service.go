package service

import (
	"encoding/json"
	"log"

	"github.com/meilisearch/meilisearch-go"
	"letsvida.com/guestsos/internal/model"
)

const alertAuditIndex = "alerts_audit"

// AlertSearchService keeps an audit index of closed (terminal) alerts so
// admins can search the alert history. Indexing is best-effort and strictly
// downstream of the store write.
type AlertSearchService interface {
	IndexAlert(alert *model.Alert) error
	RemoveAlert(id string) error
	SearchAlerts(query string, limit int64) ([]map[string]interface{}, error)
}

type alertSearchService struct {
	client meilisearch.ServiceManager
}

func NewAlertSearchService(client meilisearch.ServiceManager) AlertSearchService {
	s := &alertSearchService{client: client}
	s.initIndexes()
	return s
}

func (s *alertSearchService) initIndexes() {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        alertAuditIndex,
		PrimaryKey: "id",
	})
	if err != nil {
		// Index probably exists already; settings update below still applies.
		log.Printf("meilisearch create index: %v", err)
	}

	filterableAttrs := []string{"status", "subject_user_id"}
	filterableInterface := make([]any, len(filterableAttrs))
	for i, v := range filterableAttrs {
		filterableInterface[i] = v
	}
	_, err = s.client.Index(alertAuditIndex).UpdateFilterableAttributes(&filterableInterface)
	if err != nil {
		log.Printf("meilisearch update filterable attributes: %v", err)
	}

	sortableAttrs := []string{"created_at", "resolved_at"}
	_, err = s.client.Index(alertAuditIndex).UpdateSortableAttributes(&sortableAttrs)
	if err != nil {
		log.Printf("meilisearch update sortable attributes: %v", err)
	}
}

func (s *alertSearchService) IndexAlert(alert *model.Alert) error {
	doc := map[string]interface{}{
		"id":              alert.ID.String(),
		"subject_user_id": alert.SubjectUserID.String(),
		"status":          string(alert.Status),
		"created_at":      alert.CreatedAt.Unix(),
	}
	if alert.Notes != nil {
		doc["notes"] = *alert.Notes
	}
	if alert.ResolvedAt != nil {
		doc["resolved_at"] = alert.ResolvedAt.Unix()
	}
	if alert.Subject != nil {
		doc["subject_name"] = alert.Subject.Username
	}

	_, err := s.client.Index(alertAuditIndex).AddDocuments([]map[string]interface{}{doc}, nil)
	return err
}

func (s *alertSearchService) RemoveAlert(id string) error {
	_, err := s.client.Index(alertAuditIndex).DeleteDocument(id)
	return err
}

func (s *alertSearchService) SearchAlerts(query string, limit int64) ([]map[string]interface{}, error) {
	if limit <= 0 {
		limit = 20
	}

	resp, err := s.client.Index(alertAuditIndex).Search(query, &meilisearch.SearchRequest{
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(resp.Hits)
	if err != nil {
		return nil, err
	}
	var hits []map[string]interface{}
	if err := json.Unmarshal(raw, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}
