package voiceService

import (
	"EchoBank/internal/api/voice"
	"EchoBank/internal/entity"
	"EchoBank/pkg/smtp"
	"EchoBank/pkg/whatsapp"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const alertTimeout = 30 * time.Second

// SecurityNotifier tells an account owner that voice sign-in was locked
// after repeated failed challenges.
type SecurityNotifier interface {
	NotifyLockout(ctx context.Context, profile entity.VoiceProfile, attempts int) error
}

type lockoutNotifier struct {
	log         *logrus.Logger
	mailer      smtp.ItfSmtp
	whatsapp    whatsapp.IWhatsappSender
	productName string
}

// NewSecurityNotifier sends lockout alerts by email and WhatsApp. Either
// channel may be nil.
func NewSecurityNotifier(log *logrus.Logger, mailer smtp.ItfSmtp, wa whatsapp.IWhatsappSender, productName string) SecurityNotifier {
	return &lockoutNotifier{
		log:         log,
		mailer:      mailer,
		whatsapp:    wa,
		productName: productName,
	}
}

func lockoutMessage(product, name string, attempts int) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hello %s, voice sign-in to your %s account was locked after %d failed attempts. "+
		"If this was not you, sign in with your password and change it.", name, product, attempts)
}

func (n *lockoutNotifier) NotifyLockout(ctx context.Context, profile entity.VoiceProfile, attempts int) error {
	body := lockoutMessage(n.productName, profile.Username, attempts)

	var errs []error
	if n.mailer != nil && profile.Email != "" {
		if err := n.mailer.SendMail(profile.Email, n.productName+": voice sign-in locked", body); err != nil {
			errs = append(errs, err)
		}
	}
	if n.whatsapp != nil && profile.PhoneNumber != "" {
		if err := n.whatsapp.SendMessage(ctx, profile.PhoneNumber, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AlertLockout looks up the owner of account and notifies them of a voice
// challenge lockout. Unknown accounts are ignored.
func (s *voiceService) AlertLockout(ctx context.Context, account string, attempts int) {
	if s.notifier == nil || account == "" {
		return
	}
	requestID := requestIDOf(ctx)

	repo, err := s.voiceRepo.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return
	}

	profile, err := repo.Profiles.GetVoiceProfileByEmail(ctx, account)
	if err != nil {
		if !errors.Is(err, voice.ErrVoiceProfileNotFound) {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      err.Error(),
			}).Error("Failed to look up locked out account")
		}
		return
	}

	if err := s.notifier.NotifyLockout(ctx, profile, attempts); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"user_id":    profile.UserID,
			"error":      err.Error(),
		}).Warn("Failed to deliver lockout alert")
		return
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"user_id":    profile.UserID,
	}).Info("Lockout alert sent")
}
