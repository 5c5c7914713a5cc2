package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatpesa/backend/internal/models"
)

type PricingRepo struct {
	pool *pgxpool.Pool
}

func NewPricingRepo(pool *pgxpool.Pool) *PricingRepo {
	return &PricingRepo{pool: pool}
}

const settingsCols = `id, user_id, chat_enabled, image_enabled, audio_enabled, video_enabled,
	image_price_cents, audio_price_per_second_cents, video_price_per_second_cents,
	voice_call_price_cents, video_call_price_cents, created_at, updated_at`

// GetSettings returns nil without error when the user has not configured
// monetization.
func (r *PricingRepo) GetSettings(ctx context.Context, userID uuid.UUID) (*models.MonetizationSettings, error) {
	var s models.MonetizationSettings
	err := r.pool.QueryRow(ctx, `SELECT `+settingsCols+` FROM monetization_settings WHERE user_id = $1`, userID).Scan(
		&s.ID, &s.UserID, &s.ChatEnabled, &s.ImageEnabled, &s.AudioEnabled, &s.VideoEnabled,
		&s.ImagePriceCents, &s.AudioPricePerSecondCents, &s.VideoPricePerSecondCents,
		&s.VoiceCallPriceCents, &s.VideoCallPriceCents, &s.CreatedAt, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PricingRepo) UpsertSettings(ctx context.Context, s *models.MonetizationSettings) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO monetization_settings (id, user_id, chat_enabled, image_enabled, audio_enabled, video_enabled,
			image_price_cents, audio_price_per_second_cents, video_price_per_second_cents,
			voice_call_price_cents, video_call_price_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			chat_enabled = EXCLUDED.chat_enabled,
			image_enabled = EXCLUDED.image_enabled,
			audio_enabled = EXCLUDED.audio_enabled,
			video_enabled = EXCLUDED.video_enabled,
			image_price_cents = EXCLUDED.image_price_cents,
			audio_price_per_second_cents = EXCLUDED.audio_price_per_second_cents,
			video_price_per_second_cents = EXCLUDED.video_price_per_second_cents,
			voice_call_price_cents = EXCLUDED.voice_call_price_cents,
			video_call_price_cents = EXCLUDED.video_call_price_cents,
			updated_at = now()
		RETURNING id, created_at, updated_at
	`, s.ID, s.UserID, s.ChatEnabled, s.ImageEnabled, s.AudioEnabled, s.VideoEnabled,
		s.ImagePriceCents, s.AudioPricePerSecondCents, s.VideoPricePerSecondCents,
		s.VoiceCallPriceCents, s.VideoCallPriceCents).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *PricingRepo) GetTiers(ctx context.Context, settingsID uuid.UUID) ([]models.ChatTimeTier, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, settings_id, duration_minutes, price_cents
		FROM chat_time_tiers WHERE settings_id = $1 ORDER BY duration_minutes
	`, settingsID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tiers []models.ChatTimeTier
	for rows.Next() {
		var t models.ChatTimeTier
		if err := rows.Scan(&t.ID, &t.SettingsID, &t.DurationMinutes, &t.PriceCents); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// ReplaceTiers swaps the published tier menu in one transaction.
func (r *PricingRepo) ReplaceTiers(ctx context.Context, settingsID uuid.UUID, tiers []models.ChatTimeTier) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM chat_time_tiers WHERE settings_id = $1`, settingsID); err != nil {
		return err
	}
	for i := range tiers {
		t := &tiers[i]
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		t.SettingsID = settingsID
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_time_tiers (id, settings_id, duration_minutes, price_cents)
			VALUES ($1, $2, $3, $4)
		`, t.ID, t.SettingsID, t.DurationMinutes, t.PriceCents); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
