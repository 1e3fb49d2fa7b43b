package moderation

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loopline/realtime/internals/bus"
	"github.com/loopline/realtime/internals/metrics"
	"github.com/loopline/realtime/internals/store"
)

// DurationClass is how long a ban lasts. Enforcement happens at the join-time
// authorization check, outside this service.
type DurationClass string

const (
	BanCurrentSession DurationClass = "current-session"
	Ban24h            DurationClass = "24h"
	BanPermanent      DurationClass = "permanent"
)

// ErrValidation indicates a missing identifier or an unknown duration class.
var ErrValidation = errors.New("moderation: missing or malformed field")

// BanRecord is the durable row created at most once per ban action.
type BanRecord struct {
	ID            string
	StreamID      string
	BannedUserID  string
	BannedByID    string
	Reason        string
	DurationClass DurationClass
	CreatedAt     time.Time
}

// BanRepository persists ban records in the external durable store.
type BanRepository interface {
	Create(ctx context.Context, record BanRecord) error
}

// Service aggregates per-target-per-context report counts within a rolling
// window and triggers a punitive action once the threshold is crossed.
type Service struct {
	store     store.Store
	publisher bus.Publisher
	bans      BanRepository
	logger    *zap.Logger

	window    time.Duration
	threshold int64
}

func NewService(s store.Store, publisher bus.Publisher, bans BanRepository, logger *zap.Logger, window time.Duration, threshold int64) *Service {
	return &Service{
		store:     s,
		publisher: publisher,
		bans:      bans,
		logger:    logger,
		window:    window,
		threshold: threshold,
	}
}

// Report increments the abuse counter for the (context, target) pair,
// refreshing its rolling window. The force-remove fires only when the
// post-increment count equals the threshold exactly, so the action triggers
// once per crossing; further reports keep counting but stay silent. Reports
// spread wider than the window never accumulate, which is a deliberate
// rate-limiting property.
func (s *Service) Report(ctx context.Context, contextID, targetUserID string) (int64, error) {
	if contextID == "" || targetUserID == "" {
		return 0, ErrValidation
	}

	count, err := s.store.IncrEX(ctx, store.ReportKey(contextID, targetUserID), s.window)
	if err != nil {
		return 0, err
	}

	metrics.ReportsTotal.Inc()

	if count == s.threshold {
		s.publisher.Publish(ctx, bus.PersonalRoom(targetUserID), bus.ForceRemove{
			Message:    "You have been removed after multiple reports",
			StatusCode: http.StatusTooManyRequests,
		})
		metrics.ForceRemovesTotal.Inc()

		s.logger.Info("Force-remove triggered",
			zap.String("context_id", contextID),
			zap.String("target_user_id", targetUserID),
			zap.Int64("count", count),
		)
	}

	return count, nil
}

// BanViewer records a durable ban and notifies the target. The record is
// created at most once per action; duplicate ban actions produce separate
// rows and the join-time check dedupes.
func (s *Service) BanViewer(ctx context.Context, streamID, targetUserID, bannedByID, reason string, class DurationClass) (*BanRecord, error) {
	if streamID == "" || targetUserID == "" || bannedByID == "" {
		return nil, ErrValidation
	}
	switch class {
	case BanCurrentSession, Ban24h, BanPermanent:
	default:
		return nil, ErrValidation
	}

	record := BanRecord{
		ID:            uuid.NewString(),
		StreamID:      streamID,
		BannedUserID:  targetUserID,
		BannedByID:    bannedByID,
		Reason:        reason,
		DurationClass: class,
		CreatedAt:     time.Now(),
	}

	if err := s.bans.Create(ctx, record); err != nil {
		return nil, err
	}

	metrics.RecordBan(string(class))

	s.publisher.Publish(ctx, bus.PersonalRoom(targetUserID), bus.ViewerBanned{
		Message:    "You have been banned from this stream",
		StatusCode: http.StatusTooManyRequests,
	})

	s.logger.Info("Viewer banned",
		zap.String("stream_id", streamID),
		zap.String("target_user_id", targetUserID),
		zap.String("banned_by", bannedByID),
		zap.String("duration_class", string(class)),
	)

	return &record, nil
}
