package voiceRepository

import (
	"EchoBank/internal/api/voice"
	"EchoBank/internal/entity"
	contextPkg "EchoBank/pkg/context"
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type VoiceProfileDB struct {
	ID             sql.NullString `db:"id"`
	UserID         sql.NullString `db:"user_id"`
	Email          sql.NullString `db:"email"`
	Username       sql.NullString `db:"username"`
	PhoneNumber    sql.NullString `db:"phone_number"`
	PassphraseHash sql.NullString `db:"passphrase_hash"`
	SampleURL      sql.NullString `db:"sample_url"`
	SampleMime     sql.NullString `db:"sample_mime"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r *profileRepository) CreateVoiceProfile(ctx context.Context, profile entity.VoiceProfile) error {
	requestID := contextPkg.GetRequestID(ctx)

	argsKV := map[string]interface{}{
		"id":              profile.ID,
		"user_id":         profile.UserID,
		"passphrase_hash": profile.PassphraseHash,
		"sample_url":      profile.SampleURL,
		"sample_mime":     profile.SampleMime,
		"created_at":      profile.CreatedAt,
		"updated_at":      profile.UpdatedAt,
	}

	query, args, err := sqlx.Named(queryCreateVoiceProfile, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateVoiceProfile")
		return err
	}
	query = r.q.Rebind(query)

	_, err = r.q.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when creating voice profile")
		return err
	}

	return nil
}

func (r *profileRepository) UpdateVoiceProfile(ctx context.Context, profile entity.VoiceProfile) error {
	requestID := contextPkg.GetRequestID(ctx)

	argsKV := map[string]interface{}{
		"user_id":         profile.UserID,
		"passphrase_hash": profile.PassphraseHash,
		"sample_url":      profile.SampleURL,
		"sample_mime":     profile.SampleMime,
		"updated_at":      profile.UpdatedAt,
	}

	query, args, err := sqlx.Named(queryUpdateVoiceProfile, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for UpdateVoiceProfile")
		return err
	}
	query = r.q.Rebind(query)

	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when updating voice profile")
		return err
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return voice.ErrVoiceProfileNotFound
	}

	return nil
}

func (r *profileRepository) GetVoiceProfileByUserID(ctx context.Context, userID string) (entity.VoiceProfile, error) {
	return r.getOne(ctx, "GetVoiceProfileByUserID", queryGetVoiceProfileByUserID, map[string]interface{}{
		"user_id": userID,
	})
}

func (r *profileRepository) GetVoiceProfileByEmail(ctx context.Context, email string) (entity.VoiceProfile, error) {
	return r.getOne(ctx, "GetVoiceProfileByEmail", queryGetVoiceProfileByEmail, map[string]interface{}{
		"email": email,
	})
}

func (r *profileRepository) getOne(ctx context.Context, op, namedQuery string, argsKV map[string]interface{}) (entity.VoiceProfile, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var profileDB VoiceProfileDB

	query, args, err := sqlx.Named(namedQuery, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error(op + " named query preparation err")
		return entity.VoiceProfile{}, err
	}

	query = r.q.Rebind(query)

	if err := r.q.QueryRowxContext(ctx, query, args...).StructScan(&profileDB); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
			}).Warn(op + " no rows found")
			return entity.VoiceProfile{}, voice.ErrVoiceProfileNotFound
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error(op + " execution err")
		return entity.VoiceProfile{}, err
	}

	return r.makeVoiceProfile(profileDB), nil
}

func (r *profileRepository) DeleteVoiceProfile(ctx context.Context, userID string) error {
	requestID := contextPkg.GetRequestID(ctx)

	query, args, err := sqlx.Named(queryDeleteVoiceProfile, map[string]interface{}{
		"user_id": userID,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("DeleteVoiceProfile named query preparation err")
		return err
	}
	query = r.q.Rebind(query)

	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when deleting voice profile")
		return err
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return voice.ErrVoiceProfileNotFound
	}

	return nil
}

func (r *profileRepository) makeVoiceProfile(p VoiceProfileDB) entity.VoiceProfile {
	return entity.VoiceProfile{
		ID:             p.ID.String,
		UserID:         p.UserID.String,
		Email:          p.Email.String,
		Username:       p.Username.String,
		PhoneNumber:    p.PhoneNumber.String,
		PassphraseHash: p.PassphraseHash.String,
		SampleURL:      p.SampleURL.String,
		SampleMime:     p.SampleMime.String,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
