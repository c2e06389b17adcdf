package voiceRepository

import (
	"EchoBank/internal/entity"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type SQLExecutor interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
	Rebind(query string) string
}

func New(db *sqlx.DB, log *logrus.Logger) Repository {
	return &repository{
		DB:  db,
		log: log,
	}
}

type repository struct {
	DB  *sqlx.DB
	log *logrus.Logger
}

type Repository interface {
	NewClient(tx bool) (Client, error)
}

func (r *repository) NewClient(tx bool) (Client, error) {
	var sqlExecutor SQLExecutor
	var commitFunc, rollbackFunc func() error

	sqlExecutor = r.DB

	if tx {
		var err error
		txx, err := r.DB.Beginx()
		if err != nil {
			return Client{}, err
		}

		sqlExecutor = txx
		commitFunc = txx.Commit
		rollbackFunc = txx.Rollback
	} else {
		commitFunc = func() error { return nil }
		rollbackFunc = func() error { return nil }
	}

	return Client{
		Profiles: &profileRepository{q: sqlExecutor, log: r.log},
		Phrases:  &phraseRepository{q: sqlExecutor, log: r.log},
		Commit:   commitFunc,
		Rollback: rollbackFunc,
	}, nil
}

type Client struct {
	Profiles interface {
		CreateVoiceProfile(ctx context.Context, profile entity.VoiceProfile) error
		UpdateVoiceProfile(ctx context.Context, profile entity.VoiceProfile) error
		GetVoiceProfileByUserID(ctx context.Context, userID string) (entity.VoiceProfile, error)
		GetVoiceProfileByEmail(ctx context.Context, email string) (entity.VoiceProfile, error)
		DeleteVoiceProfile(ctx context.Context, userID string) error
	}

	Phrases interface {
		GetActivePhrases(ctx context.Context, audience string) ([]entity.CommandPhrase, error)
		DeletePhrasesByAudience(ctx context.Context, audience string) error
		CreatePhrase(ctx context.Context, phrase entity.CommandPhrase) error
	}

	Commit   func() error
	Rollback func() error
}

type profileRepository struct {
	q   SQLExecutor
	log *logrus.Logger
}

type phraseRepository struct {
	q   SQLExecutor
	log *logrus.Logger
}
