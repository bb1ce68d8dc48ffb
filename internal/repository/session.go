package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tellnoone/secrets/internal/db"
)

// gormSessionRepository is the GORM implementation of SessionRepository.
// Expiry times are stored in UTC so that comparisons are consistent on
// drivers that keep timestamps as text.
type gormSessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository returns a SessionRepository backed by the provided *gorm.DB.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &gormSessionRepository{db: db}
}

// FindCtx returns the payload for token. Expired rows are reported as not
// found even before the sweeper removes them.
func (r *gormSessionRepository) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	var row db.Session
	err := r.db.WithContext(ctx).
		First(&row, "token = ? AND expiry > ?", token, time.Now().UTC()).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sessions: find: %w", err)
	}
	return row.Data, true, nil
}

// CommitCtx inserts or replaces the payload for token.
func (r *gormSessionRepository) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	row := db.Session{Token: token, Data: b, Expiry: expiry.UTC()}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "expiry"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("sessions: commit: %w", err)
	}
	return nil
}

// DeleteCtx removes token. Deleting an unknown token is a no-op.
func (r *gormSessionRepository) DeleteCtx(ctx context.Context, token string) error {
	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&db.Session{}).Error
	if err != nil {
		return fmt.Errorf("sessions: delete: %w", err)
	}
	return nil
}

func (r *gormSessionRepository) Find(token string) ([]byte, bool, error) {
	return r.FindCtx(context.Background(), token)
}

func (r *gormSessionRepository) Commit(token string, b []byte, expiry time.Time) error {
	return r.CommitCtx(context.Background(), token, b, expiry)
}

func (r *gormSessionRepository) Delete(token string) error {
	return r.DeleteCtx(context.Background(), token)
}

// DeleteExpired permanently removes all expired sessions. Called
// periodically by the session sweeper.
func (r *gormSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expiry <= ?", time.Now().UTC()).
		Delete(&db.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("sessions: delete expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}
