package voiceService

import (
	"context"
	"errors"
	"strings"
	"testing"

	"EchoBank/internal/entity"
)

type fakeMailer struct {
	err  error
	sent []string
}

func (m *fakeMailer) SendMail(to, subject, body string) error {
	m.sent = append(m.sent, to+"|"+subject+"|"+body)
	return m.err
}

type fakeWhatsapp struct {
	err  error
	sent []string
}

func (w *fakeWhatsapp) SendMessage(_ context.Context, phone, message string) error {
	w.sent = append(w.sent, phone+"|"+message)
	return w.err
}

func (w *fakeWhatsapp) Disconnect() error { return nil }
func (w *fakeWhatsapp) IsConnected() bool { return true }

func TestLockoutNotifier(t *testing.T) {
	profile := entity.VoiceProfile{UserID: "user-1", Email: "jane@example.com", Username: "Jane", PhoneNumber: "08123"}

	t.Run("both channels", func(t *testing.T) {
		mail, wa := &fakeMailer{}, &fakeWhatsapp{}
		n := NewSecurityNotifier(newTestLogger(), mail, wa, "Echo Bank")

		if err := n.NotifyLockout(context.Background(), profile, 3); err != nil {
			t.Fatal(err)
		}
		if len(mail.sent) != 1 || !strings.HasPrefix(mail.sent[0], "jane@example.com|Echo Bank: voice sign-in locked|Hello Jane") {
			t.Errorf("mail = %v", mail.sent)
		}
		if len(wa.sent) != 1 || !strings.Contains(wa.sent[0], "locked after 3 failed attempts") {
			t.Errorf("whatsapp = %v", wa.sent)
		}
	})

	t.Run("skips missing contact details", func(t *testing.T) {
		mail, wa := &fakeMailer{}, &fakeWhatsapp{}
		n := NewSecurityNotifier(newTestLogger(), mail, wa, "Echo Bank")

		if err := n.NotifyLockout(context.Background(), entity.VoiceProfile{Email: "jane@example.com"}, 3); err != nil {
			t.Fatal(err)
		}
		if len(mail.sent) != 1 || len(wa.sent) != 0 {
			t.Errorf("mail = %v whatsapp = %v", mail.sent, wa.sent)
		}
		if !strings.Contains(mail.sent[0], "Hello there") {
			t.Errorf("greeting = %q", mail.sent[0])
		}
	})

	t.Run("joins failures", func(t *testing.T) {
		mailErr, waErr := errors.New("smtp down"), errors.New("not paired")
		n := NewSecurityNotifier(newTestLogger(), &fakeMailer{err: mailErr}, &fakeWhatsapp{err: waErr}, "Echo Bank")

		err := n.NotifyLockout(context.Background(), profile, 3)
		if !errors.Is(err, mailErr) || !errors.Is(err, waErr) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("no channels", func(t *testing.T) {
		n := NewSecurityNotifier(newTestLogger(), nil, nil, "Echo Bank")
		if err := n.NotifyLockout(context.Background(), profile, 3); err != nil {
			t.Errorf("err = %v", err)
		}
	})
}

func TestVoiceService_AlertLockout(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.CreateVoiceProfile(context.Background(), "user-1", wavSample()); err != nil {
		t.Fatal(err)
	}

	f.svc.AlertLockout(context.Background(), "nobody@example.com", 3)
	f.svc.AlertLockout(context.Background(), "", 3)
	select {
	case alert := <-f.notifier.alerts:
		t.Fatalf("unexpected alert %+v", alert)
	default:
	}

	f.svc.AlertLockout(context.Background(), "JANE@example.com", 3)
	select {
	case alert := <-f.notifier.alerts:
		if alert.profile.Email != "jane@example.com" || alert.attempts != 3 {
			t.Errorf("alert = %+v", alert)
		}
	default:
		t.Fatal("no alert for enrolled account")
	}
}
