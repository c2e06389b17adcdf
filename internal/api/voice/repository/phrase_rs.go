package voiceRepository

import (
	"EchoBank/internal/entity"
	contextPkg "EchoBank/pkg/context"
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type CommandPhraseDB struct {
	ID        sql.NullString `db:"id"`
	Audience  sql.NullString `db:"audience"`
	Position  sql.NullInt64  `db:"position"`
	Phrases   sql.NullString `db:"phrases"`
	Action    sql.NullString `db:"action"`
	IsActive  sql.NullBool   `db:"is_active"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r *phraseRepository) GetActivePhrases(ctx context.Context, audience string) ([]entity.CommandPhrase, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var phraseList []CommandPhraseDB

	query, args, err := sqlx.Named(queryGetActivePhrases, map[string]interface{}{
		"audience": audience,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetActivePhrases named query preparation err")
		return nil, err
	}

	query = r.q.Rebind(query)

	if err := r.q.SelectContext(ctx, &phraseList, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetActivePhrases execution err")
		return nil, err
	}

	phrases := make([]entity.CommandPhrase, 0, len(phraseList))
	for _, phraseDB := range phraseList {
		phrase, err := r.makeCommandPhrase(phraseDB)
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"phrase_id":  phraseDB.ID.String,
				"error":      err.Error(),
			}).Warn("Skipping command phrase with malformed phrases column")
			continue
		}
		phrases = append(phrases, phrase)
	}

	return phrases, nil
}

func (r *phraseRepository) DeletePhrasesByAudience(ctx context.Context, audience string) error {
	requestID := contextPkg.GetRequestID(ctx)

	query, args, err := sqlx.Named(queryDeletePhrasesByAudience, map[string]interface{}{
		"audience": audience,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("DeletePhrasesByAudience named query preparation err")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when deleting command phrases")
		return err
	}

	return nil
}

func (r *phraseRepository) CreatePhrase(ctx context.Context, phrase entity.CommandPhrase) error {
	requestID := contextPkg.GetRequestID(ctx)

	phrasesJSON, err := json.Marshal(phrase.Phrases)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to marshal phrases")
		return err
	}

	argsKV := map[string]interface{}{
		"id":         phrase.ID,
		"audience":   phrase.Audience,
		"position":   phrase.Position,
		"phrases":    string(phrasesJSON),
		"action":     phrase.Action,
		"is_active":  phrase.IsActive,
		"created_at": phrase.CreatedAt,
		"updated_at": phrase.UpdatedAt,
	}

	query, args, err := sqlx.Named(queryCreatePhrase, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreatePhrase")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when creating command phrase")
		return err
	}

	return nil
}

func (r *phraseRepository) makeCommandPhrase(p CommandPhraseDB) (entity.CommandPhrase, error) {
	var phrases []string
	if p.Phrases.Valid && p.Phrases.String != "" {
		if err := json.Unmarshal([]byte(p.Phrases.String), &phrases); err != nil {
			return entity.CommandPhrase{}, err
		}
	}

	return entity.CommandPhrase{
		ID:        p.ID.String,
		Audience:  p.Audience.String,
		Position:  int(p.Position.Int64),
		Phrases:   phrases,
		Action:    p.Action.String,
		IsActive:  p.IsActive.Bool,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}, nil
}
