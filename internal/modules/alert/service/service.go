package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"letsvida.com/guestsos/internal/changefeed"
	"letsvida.com/guestsos/internal/model"
	alertRepo "letsvida.com/guestsos/internal/modules/alert/repository"
	notifService "letsvida.com/guestsos/internal/modules/notification/service"
	searchService "letsvida.com/guestsos/internal/modules/search/service"
	userRepo "letsvida.com/guestsos/internal/modules/user/repository"
	"letsvida.com/guestsos/pkg/apperror"
	"letsvida.com/guestsos/pkg/storage"
)

type AlertService interface {
	CreateAlert(ctx context.Context, subjectID uuid.UUID, lat, lng *float64) (*model.Alert, error)
	GetAlert(ctx context.Context, id uuid.UUID) (*model.Alert, error)
	ListAlerts(ctx context.Context, statuses []model.AlertStatus, limit, offset int) ([]model.Alert, error)
	Acknowledge(ctx context.Context, id uuid.UUID, responder *model.User, notes *string) (*model.Alert, error)
	Resolve(ctx context.Context, id uuid.UUID, responder *model.User, notes *string) (*model.Alert, error)
	MarkFalseAlarm(ctx context.Context, id uuid.UUID, responder *model.User, notes *string) (*model.Alert, error)
	Reopen(ctx context.Context, id uuid.UUID, admin *model.User) (*model.Alert, error)
	AttachEvidence(ctx context.Context, id uuid.UUID, r io.Reader, fileName string) (*model.Alert, error)
}

type alertService struct {
	repo      alertRepo.AlertRepository
	users     userRepo.UserRepository
	notifier  notifService.NotificationService
	publisher *changefeed.Publisher
	search    searchService.AlertSearchService
	evidence  storage.EvidenceStorage
	logger    *zap.Logger
}

func NewAlertService(
	repo alertRepo.AlertRepository,
	users userRepo.UserRepository,
	notifier notifService.NotificationService,
	publisher *changefeed.Publisher,
	search searchService.AlertSearchService,
	evidence storage.EvidenceStorage,
	logger *zap.Logger,
) AlertService {
	return &alertService{
		repo:      repo,
		users:     users,
		notifier:  notifier,
		publisher: publisher,
		search:    search,
		evidence:  evidence,
		logger:    logger,
	}
}

func (s *alertService) CreateAlert(ctx context.Context, subjectID uuid.UUID, lat, lng *float64) (*model.Alert, error) {
	// A lone coordinate is worse than none: treat it as geolocation failure.
	if (lat == nil) != (lng == nil) {
		lat, lng = nil, nil
	}

	alert := &model.Alert{
		SubjectUserID: subjectID,
		Latitude:      lat,
		Longitude:     lng,
		Status:        model.AlertStatusPending,
	}

	// 1. Persist first; the feed only ever carries confirmed rows.
	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, err
	}

	// 2. Publish the insert to every subscribed responder client.
	s.publisher.PublishAlert(ctx, changefeed.EventInsert, alert)

	// 3. Inbox entries for on-duty responders. Downstream of the alert write:
	// a failure here never unwinds the alert itself.
	s.notifyResponders(ctx, alert)

	return alert, nil
}

func (s *alertService) notifyResponders(ctx context.Context, alert *model.Alert) {
	responders, err := s.users.FindByRoles(ctx, []string{"admin", "staff"})
	if err != nil {
		s.logger.Warn("could not list responders for alert notification",
			zap.String("alert_id", alert.ID.String()), zap.Error(err))
		return
	}

	link := fmt.Sprintf("/alerts/%s", alert.ID)
	for _, responder := range responders {
		if responder.ID == alert.SubjectUserID {
			continue
		}
		n := &model.Notification{
			UserID:  responder.ID,
			Title:   "SOS alert",
			Message: "A guest has raised an emergency alert.",
			Type:    "sos_alert",
			Link:    &link,
		}
		if err := s.notifier.CreateNotification(ctx, n); err != nil {
			s.logger.Warn("failed to create responder notification",
				zap.String("user_id", responder.ID.String()), zap.Error(err))
		}
	}
}

func (s *alertService) GetAlert(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	alert, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	return alert, err
}

func (s *alertService) ListAlerts(ctx context.Context, statuses []model.AlertStatus, limit, offset int) ([]model.Alert, error) {
	return s.repo.FindAll(ctx, statuses, limit, offset)
}

func (s *alertService) Acknowledge(ctx context.Context, id uuid.UUID, responder *model.User, notes *string) (*model.Alert, error) {
	return s.transition(ctx, id, model.AlertStatusAcknowledged, responder, notes)
}

func (s *alertService) Resolve(ctx context.Context, id uuid.UUID, responder *model.User, notes *string) (*model.Alert, error) {
	return s.transition(ctx, id, model.AlertStatusResolved, responder, notes)
}

func (s *alertService) MarkFalseAlarm(ctx context.Context, id uuid.UUID, responder *model.User, notes *string) (*model.Alert, error) {
	return s.transition(ctx, id, model.AlertStatusFalseAlarm, responder, notes)
}

// allowedFrom lists the statuses a transition may start from. Transitions are
// monotonic forward; nothing leaves a terminal state here (see Reopen).
var allowedFrom = map[model.AlertStatus][]model.AlertStatus{
	model.AlertStatusAcknowledged: {model.AlertStatusPending},
	model.AlertStatusResolved:     {model.AlertStatusPending, model.AlertStatusAcknowledged},
	model.AlertStatusFalseAlarm:   {model.AlertStatusPending, model.AlertStatusAcknowledged},
}

func (s *alertService) transition(ctx context.Context, id uuid.UUID, target model.AlertStatus, responder *model.User, notes *string) (*model.Alert, error) {
	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	if !responder.IsResponder() || responder.ID == alert.SubjectUserID {
		return nil, apperror.ErrForbidden
	}

	// Racing with another responder is not an error: an Alert already at (or
	// past) the requested state is returned as-is and the views converge.
	if alert.Status == target || alert.Status.IsTerminal() {
		return alert, nil
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     target,
		"updated_at": now,
	}
	if target.IsTerminal() {
		updates["resolved_at"] = now
	}
	if notes != nil {
		updates["notes"] = *notes
	}

	rows, err := s.repo.UpdateStatusFrom(ctx, id, allowedFrom[target], updates)
	if err != nil {
		return nil, err
	}

	refreshed, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	if rows == 0 {
		// Lost the race between the read above and the guarded write. The
		// store's state wins; no error surfaces to the user.
		return refreshed, nil
	}

	s.publisher.PublishAlert(ctx, changefeed.EventUpdate, refreshed)

	if refreshed.Status.IsTerminal() && s.search != nil {
		// Audit index of closed alerts; best-effort.
		if err := s.search.IndexAlert(refreshed); err != nil {
			s.logger.Warn("failed to index terminal alert", zap.Error(err))
		}
	}

	return refreshed, nil
}

// Reopen is the administrative override outside the normal state machine: it
// resets a terminal Alert to pending and clears resolved_at.
func (s *alertService) Reopen(ctx context.Context, id uuid.UUID, admin *model.User) (*model.Alert, error) {
	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	if admin.Role.Name != "admin" {
		return nil, apperror.ErrForbidden
	}

	if !alert.Status.IsTerminal() {
		return alert, nil
	}

	updates := map[string]interface{}{
		"status":      model.AlertStatusPending,
		"resolved_at": gorm.Expr("NULL"),
		"updated_at":  time.Now().UTC(),
	}
	terminal := []model.AlertStatus{model.AlertStatusResolved, model.AlertStatusFalseAlarm}
	if _, err := s.repo.UpdateStatusFrom(ctx, id, terminal, updates); err != nil {
		return nil, err
	}

	refreshed, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishAlert(ctx, changefeed.EventUpdate, refreshed)

	if s.search != nil {
		if err := s.search.RemoveAlert(id.String()); err != nil {
			s.logger.Warn("failed to drop reopened alert from audit index", zap.Error(err))
		}
	}

	return refreshed, nil
}

func (s *alertService) AttachEvidence(ctx context.Context, id uuid.UUID, r io.Reader, fileName string) (*model.Alert, error) {
	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	url, err := s.evidence.UploadEvidence(ctx, r, "alert-evidence", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to upload evidence: %w", err)
	}

	if err := s.repo.SetEvidenceURL(ctx, alert.ID, url); err != nil {
		return nil, err
	}

	refreshed, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishAlert(ctx, changefeed.EventUpdate, refreshed)
	return refreshed, nil
}
