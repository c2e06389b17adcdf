package voiceService

import (
	"EchoBank/internal/api/voice"
	"EchoBank/internal/entity"
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

func ParseAudience(s string) (Audience, error) {
	switch Audience(s) {
	case AudiencePublic, AudienceMember:
		return Audience(s), nil
	case "":
		return AudiencePublic, nil
	default:
		return "", voice.ErrInvalidAudience
	}
}

// GetPhraseTable returns the stored table of audience, or the built-in one
// when nothing usable is stored.
func (s *voiceService) GetPhraseTable(ctx context.Context, audience Audience) (PhraseTable, error) {
	requestID := requestIDOf(ctx)

	repo, err := s.voiceRepo.NewClient(false)
	if err != nil {
		return nil, err
	}

	rows, err := repo.Phrases.GetActivePhrases(ctx, string(audience))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return DefaultPhraseTable(audience), nil
	}

	table := make(PhraseTable, 0, len(rows))
	for _, row := range rows {
		table = append(table, CommandEntry{Phrases: row.Phrases, Action: row.Action})
	}

	if err := table.Validate(); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"audience":   audience,
			"error":      err.Error(),
		}).Warn("Stored phrase table rejected, using built-in table")
		return DefaultPhraseTable(audience), nil
	}

	return table, nil
}

func (s *voiceService) ReplacePhraseTable(ctx context.Context, audience Audience, table PhraseTable) error {
	requestID := requestIDOf(ctx)

	if err := table.Validate(); err != nil {
		if errors.Is(err, ErrAmbiguousPhrase) {
			return voice.ErrAmbiguousPhrases
		}
		return err
	}

	repo, err := s.voiceRepo.NewClient(true)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return err
	}

	if err := s.writePhrases(ctx, repo.Phrases, audience, table); err != nil {
		if rbErr := repo.Rollback(); rbErr != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      rbErr.Error(),
			}).Error("Failed to rollback phrase table transaction")
		}
		return err
	}

	if err := repo.Commit(); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to commit phrase table transaction")
		return err
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"audience":   audience,
		"entries":    len(table),
	}).Info("Phrase table replaced")
	return nil
}

type phraseWriter interface {
	DeletePhrasesByAudience(ctx context.Context, audience string) error
	CreatePhrase(ctx context.Context, phrase entity.CommandPhrase) error
}

func (s *voiceService) writePhrases(ctx context.Context, w phraseWriter, audience Audience, table PhraseTable) error {
	if err := w.DeletePhrasesByAudience(ctx, string(audience)); err != nil {
		return err
	}

	now := s.clock.Now()
	for i, e := range table {
		id, err := s.utils.NewULIDFromTimestamp(now)
		if err != nil {
			return err
		}
		err = w.CreatePhrase(ctx, entity.CommandPhrase{
			ID:        id,
			Audience:  string(audience),
			Position:  i,
			Phrases:   e.Phrases,
			Action:    e.Action,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// loadPhraseTables resolves the tables of both audiences once, falling
// back to the built-in tables when the store is unreachable.
func (s *voiceService) loadPhraseTables(ctx context.Context) map[Audience]PhraseTable {
	tables := make(map[Audience]PhraseTable, 2)
	for _, audience := range []Audience{AudiencePublic, AudienceMember} {
		table, err := s.GetPhraseTable(ctx, audience)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestIDOf(ctx),
				"audience":   audience,
				"error":      err.Error(),
			}).Warn("Phrase table unavailable, using built-in table")
			table = DefaultPhraseTable(audience)
		}
		tables[audience] = table
	}
	return tables
}

func PhraseTableFromDTO(entries []voice.PhraseEntry) PhraseTable {
	table := make(PhraseTable, 0, len(entries))
	for _, e := range entries {
		table = append(table, CommandEntry{Phrases: e.Phrases, Action: e.Action})
	}
	return table
}

func (t PhraseTable) DTO() []voice.PhraseEntry {
	out := make([]voice.PhraseEntry, 0, len(t))
	for _, e := range t {
		out = append(out, voice.PhraseEntry{Phrases: e.Phrases, Action: e.Action})
	}
	return out
}
