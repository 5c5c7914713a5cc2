// Package pricing resolves a recipient's published monetization
// configuration: content prices, call prices and purchasable chat-time tiers.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chatpesa/backend/internal/models"
)

// ErrPricingNotConfigured is returned when a recipient has not published the
// requested price.
var ErrPricingNotConfigured = errors.New("pricing not configured")

type Repo interface {
	GetSettings(ctx context.Context, userID uuid.UUID) (*models.MonetizationSettings, error)
	GetTiers(ctx context.Context, settingsID uuid.UUID) ([]models.ChatTimeTier, error)
	UpsertSettings(ctx context.Context, s *models.MonetizationSettings) error
	ReplaceTiers(ctx context.Context, settingsID uuid.UUID, tiers []models.ChatTimeTier) error
}

type Service interface {
	// SettingsFor returns nil when the recipient has no monetization row.
	SettingsFor(ctx context.Context, userID uuid.UUID) (*models.MonetizationSettings, error)
	// Tiers returns the recipient's published chat-time menu (empty when
	// unconfigured).
	Tiers(ctx context.Context, userID uuid.UUID) ([]models.ChatTimeTier, error)
	// TierPrice resolves the price of a chat-time tier.
	TierPrice(ctx context.Context, userID uuid.UUID, durationMinutes int) (int64, error)
	// ServicePrice resolves a service-request price: tiered for chat,
	// flat for calls.
	ServicePrice(ctx context.Context, userID uuid.UUID, serviceType string, durationMinutes int) (int64, error)
	// ContentPrice returns the per-unit base price for a metered content
	// type and whether the recipient bills for it at all.
	ContentPrice(ctx context.Context, userID uuid.UUID, contentType string) (base int64, enabled bool, err error)

	Publish(ctx context.Context, s *models.MonetizationSettings, tiers []models.ChatTimeTier) error
}

type service struct {
	repo Repo
}

func NewService(repo Repo) Service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

func (s *service) SettingsFor(ctx context.Context, userID uuid.UUID) (*models.MonetizationSettings, error) {
	return s.repo.GetSettings(ctx, userID)
}

func (s *service) Tiers(ctx context.Context, userID uuid.UUID) ([]models.ChatTimeTier, error) {
	settings, err := s.repo.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, nil
	}
	return s.repo.GetTiers(ctx, settings.ID)
}

func (s *service) TierPrice(ctx context.Context, userID uuid.UUID, durationMinutes int) (int64, error) {
	settings, err := s.repo.GetSettings(ctx, userID)
	if err != nil {
		return 0, err
	}
	if settings == nil || !settings.ChatEnabled {
		return 0, ErrPricingNotConfigured
	}
	tiers, err := s.repo.GetTiers(ctx, settings.ID)
	if err != nil {
		return 0, err
	}
	for _, t := range tiers {
		if t.DurationMinutes == durationMinutes {
			return t.PriceCents, nil
		}
	}
	return 0, ErrPricingNotConfigured
}

func (s *service) ServicePrice(ctx context.Context, userID uuid.UUID, serviceType string, durationMinutes int) (int64, error) {
	switch serviceType {
	case models.ServiceChat:
		return s.TierPrice(ctx, userID, durationMinutes)
	case models.ServiceVoiceCall, models.ServiceVideoCall:
		settings, err := s.repo.GetSettings(ctx, userID)
		if err != nil {
			return 0, err
		}
		if settings == nil {
			return 0, ErrPricingNotConfigured
		}
		price := settings.VoiceCallPriceCents
		if serviceType == models.ServiceVideoCall {
			price = settings.VideoCallPriceCents
		}
		if price <= 0 {
			return 0, ErrPricingNotConfigured
		}
		return price, nil
	default:
		return 0, fmt.Errorf("unknown service type %q", serviceType)
	}
}

func (s *service) ContentPrice(ctx context.Context, userID uuid.UUID, contentType string) (int64, bool, error) {
	settings, err := s.repo.GetSettings(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if settings == nil {
		return 0, false, nil
	}
	switch contentType {
	case models.ContentImage:
		return settings.ImagePriceCents, settings.ImageEnabled, nil
	case models.ContentAudio:
		return settings.AudioPricePerSecondCents, settings.AudioEnabled, nil
	case models.ContentVideo:
		return settings.VideoPricePerSecondCents, settings.VideoEnabled, nil
	case models.ContentText:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("unknown content type %q", contentType)
	}
}

func (s *service) Publish(ctx context.Context, settings *models.MonetizationSettings, tiers []models.ChatTimeTier) error {
	if settings.ID == uuid.Nil {
		settings.ID = uuid.New()
	}
	if err := s.repo.UpsertSettings(ctx, settings); err != nil {
		return err
	}
	return s.repo.ReplaceTiers(ctx, settings.ID, tiers)
}
