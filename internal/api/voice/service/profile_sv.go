package voiceService

import (
	"EchoBank/internal/api/voice"
	"EchoBank/internal/entity"
	"EchoBank/pkg/audio"
	jwtPkg "EchoBank/pkg/jwt"
	"EchoBank/pkg/nlp"
	"EchoBank/pkg/redis"
	"EchoBank/pkg/speech"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

func voiceLoginKey(userID string) string {
	return "voice-login:" + userID
}

// CreateVoiceProfile stores the enrolment sample and derives the voice
// passphrase from its transcription. An existing profile is replaced.
func (s *voiceService) CreateVoiceProfile(ctx context.Context, userID string, sample speech.Sample) (ProfileResult, error) {
	requestID := requestIDOf(ctx)

	if len(sample.Data) == 0 {
		return ProfileResult{Error: voice.ErrEmptySample.Error()}, voice.ErrEmptySample
	}
	if int64(len(sample.Data)) > s.config.MaxSampleSize {
		return ProfileResult{Error: voice.ErrSampleTooLarge.Error()}, voice.ErrSampleTooLarge
	}

	transcript, err := s.transcriber.Transcribe(ctx, sample.Data, sample.MimeType)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"user_id":    userID,
			"error":      err.Error(),
		}).Error("Failed to transcribe voice sample")
		return ProfileResult{Error: voice.ErrTranscriptionFailed.Error()}, voice.ErrTranscriptionFailed
	}

	passphrase := nlp.Fold(transcript)
	if passphrase == "" {
		return ProfileResult{Error: voice.ErrPassphraseNotDetected.Error()}, voice.ErrPassphraseNotDetected
	}

	hash, err := s.bcrypt.HashPassword(passphrase)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to hash voice passphrase")
		return ProfileResult{Error: err.Error()}, err
	}

	now := s.clock.Now()
	profileID, err := s.utils.NewULIDFromTimestamp(now)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to generate voice profile id")
		return ProfileResult{Error: err.Error()}, err
	}

	key := fmt.Sprintf("voice-samples/%s/%s%s", userID, profileID, audio.Extension(sample.MimeType))
	sampleURL, err := s.s3Client.UploadBytes(key, sample.Data, sample.MimeType)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"user_id":    userID,
			"error":      err.Error(),
		}).Error("Failed to upload voice sample")
		return ProfileResult{Error: voice.ErrFailedToUploadSample.Error()}, voice.ErrFailedToUploadSample
	}

	profile := entity.VoiceProfile{
		ID:             profileID,
		UserID:         userID,
		PassphraseHash: hash,
		SampleURL:      sampleURL,
		SampleMime:     sample.MimeType,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	previous, err := s.storeProfile(ctx, profile)
	if err != nil {
		if delErr := s.s3Client.DeleteFile(sampleURL); delErr != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      delErr.Error(),
			}).Warn("Failed to remove orphaned voice sample")
		}
		return ProfileResult{Error: err.Error()}, err
	}

	if previous.SampleURL != "" && previous.SampleURL != sampleURL {
		if err := s.s3Client.DeleteFile(previous.SampleURL); err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      err.Error(),
			}).Warn("Failed to remove replaced voice sample")
		}
	}
	if previous.ID != "" {
		profileID = previous.ID
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"user_id":    userID,
		"profile_id": profileID,
	}).Info("Voice profile enrolled")

	return ProfileResult{Success: true, ProfileID: profileID}, nil
}

// storeProfile inserts profile or replaces the user's existing one and
// returns what was replaced.
func (s *voiceService) storeProfile(ctx context.Context, profile entity.VoiceProfile) (entity.VoiceProfile, error) {
	requestID := requestIDOf(ctx)

	repo, err := s.voiceRepo.NewClient(true)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return entity.VoiceProfile{}, err
	}
	defer func() {
		if err != nil {
			if rbErr := repo.Rollback(); rbErr != nil {
				s.log.WithFields(logrus.Fields{
					"request_id": requestID,
					"error":      rbErr.Error(),
				}).Error("Failed to rollback voice profile transaction")
			}
		}
	}()

	previous, err := repo.Profiles.GetVoiceProfileByUserID(ctx, profile.UserID)
	switch {
	case errors.Is(err, voice.ErrVoiceProfileNotFound):
		previous = entity.VoiceProfile{}
		err = repo.Profiles.CreateVoiceProfile(ctx, profile)
	case err == nil:
		err = repo.Profiles.UpdateVoiceProfile(ctx, profile)
	}
	if err != nil {
		return entity.VoiceProfile{}, err
	}

	if err = repo.Commit(); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to commit voice profile transaction")
		return entity.VoiceProfile{}, err
	}

	return previous, nil
}

func (s *voiceService) GetVoiceProfile(ctx context.Context, userID string) (voice.VoiceProfileResponse, error) {
	repo, err := s.voiceRepo.NewClient(false)
	if err != nil {
		return voice.VoiceProfileResponse{}, err
	}

	profile, err := repo.Profiles.GetVoiceProfileByUserID(ctx, userID)
	if err != nil {
		return voice.VoiceProfileResponse{}, err
	}

	sampleURL, err := s.s3Client.PresignUrl(profile.SampleURL)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(ctx),
			"error":      err.Error(),
		}).Warn("Failed to presign voice sample url")
		sampleURL = ""
	}

	return voice.VoiceProfileResponse{
		ID:        profile.ID,
		UserID:    profile.UserID,
		SampleURL: sampleURL,
		CreatedAt: profile.CreatedAt,
		UpdatedAt: profile.UpdatedAt,
	}, nil
}

func (s *voiceService) DeleteVoiceProfile(ctx context.Context, userID string) error {
	repo, err := s.voiceRepo.NewClient(false)
	if err != nil {
		return err
	}

	profile, err := repo.Profiles.GetVoiceProfileByUserID(ctx, userID)
	if err != nil {
		return err
	}

	if err := repo.Profiles.DeleteVoiceProfile(ctx, userID); err != nil {
		return err
	}

	if err := s.s3Client.DeleteFile(profile.SampleURL); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(ctx),
			"error":      err.Error(),
		}).Warn("Failed to remove voice sample")
	}
	return nil
}

// LoginWithVoice checks a recognised passphrase against the enrolled one
// and issues an access token.
func (s *voiceService) LoginWithVoice(ctx context.Context, account, passphrase string) (voice.VoiceLoginResponse, error) {
	requestID := requestIDOf(ctx)

	repo, err := s.voiceRepo.NewClient(false)
	if err != nil {
		return voice.VoiceLoginResponse{}, err
	}

	profile, err := repo.Profiles.GetVoiceProfileByEmail(ctx, account)
	if err != nil {
		return voice.VoiceLoginResponse{}, err
	}

	if err := s.bcrypt.ComparePassword(profile.PassphraseHash, nlp.Fold(passphrase)); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"user_id":    profile.UserID,
		}).Warn("Voice passphrase mismatch")
		return voice.VoiceLoginResponse{}, voice.ErrPassphraseMismatch
	}

	user := entity.UserLoginData{
		ID:       profile.UserID,
		Email:    profile.Email,
		Username: profile.Username,
	}

	token, expiresAt, err := jwtPkg.Sign(map[string]interface{}{
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
		"method":   "voice",
	}, s.config.LoginTTL)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to sign voice login token")
		return voice.VoiceLoginResponse{}, voice.ErrFailedToIssueLoginCred
	}

	if err := s.redis.SetToken(ctx, voiceLoginKey(user.ID), token, s.config.LoginTTL); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to store voice login session")
		return voice.VoiceLoginResponse{}, voice.ErrFailedToIssueLoginCred
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"user_id":    user.ID,
	}).Info("Voice login successful")

	return voice.VoiceLoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}

func (s *voiceService) SignOut(ctx context.Context, userID string) error {
	if err := s.redis.DeleteToken(ctx, voiceLoginKey(userID)); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(ctx),
			"user_id":    userID,
			"error":      err.Error(),
		}).Error("Failed to delete voice login session")
		return voice.ErrFailedToSignOut
	}
	return nil
}

func (s *voiceService) VerifyToken(ctx context.Context, token string) (entity.UserLoginData, error) {
	parsed, err := jwtPkg.VerifyToken(token, jwtPkg.AccessTokenSecret)
	if err != nil {
		return entity.UserLoginData{}, voice.ErrNotAuthenticated
	}

	user, err := jwtPkg.UserFromToken(parsed)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(ctx),
			"error":      err.Error(),
		}).Warn("Voice session token rejected")
		return entity.UserLoginData{}, voice.ErrNotAuthenticated
	}

	// Voice logins stay valid only while their session key exists.
	if jwtPkg.LoginMethod(parsed) == "voice" {
		stored, err := s.redis.GetToken(ctx, voiceLoginKey(user.ID))
		if err != nil && !errors.Is(err, redis.ErrKeyNotFound) {
			s.log.WithFields(logrus.Fields{
				"request_id": requestIDOf(ctx),
				"user_id":    user.ID,
				"error":      err.Error(),
			}).Error("Failed to look up voice login session")
		}
		if err != nil || stored != strings.TrimSpace(token) {
			return entity.UserLoginData{}, voice.ErrNotAuthenticated
		}
	}
	return user, nil
}

func (s *voiceService) Normalize(_ context.Context, req voice.NormalizeRequest) voice.NormalizeResponse {
	kind := nlp.KindPlain
	if req.Kind == string(nlp.KindEmail) {
		kind = nlp.KindEmail
	}
	return voice.NormalizeResponse{
		Input:  req.Text,
		Kind:   string(kind),
		Output: nlp.Normalize(req.Text, kind),
	}
}
