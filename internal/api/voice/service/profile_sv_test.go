package voiceService

import (
	"context"
	"errors"
	"strings"
	"testing"

	"EchoBank/internal/api/voice"
	jwtPkg "EchoBank/pkg/jwt"
	"EchoBank/pkg/speech"

	xbcrypt "golang.org/x/crypto/bcrypt"
)

func wavSample() speech.Sample {
	return speech.Sample{Data: []byte("RIFF....WAVEfmt "), MimeType: "audio/wav"}
}

func TestCreateVoiceProfile_Enrols(t *testing.T) {
	f := newServiceFixture(t)

	result, err := f.svc.CreateVoiceProfile(context.Background(), "user-1", wavSample())
	if err != nil {
		t.Fatalf("CreateVoiceProfile: %v", err)
	}
	if !result.Success || result.ProfileID == "" {
		t.Fatalf("result = %+v", result)
	}

	p, ok := f.store.profile("user-1")
	if !ok {
		t.Fatal("profile not stored")
	}
	if p.ID != result.ProfileID {
		t.Errorf("stored id = %q, want %q", p.ID, result.ProfileID)
	}
	if !strings.HasPrefix(p.SampleURL, "https://bucket.example.com/voice-samples/user-1/") || !strings.HasSuffix(p.SampleURL, ".wav") {
		t.Errorf("sample url = %q", p.SampleURL)
	}
	if err := xbcrypt.CompareHashAndPassword([]byte(p.PassphraseHash), []byte("open sesame please")); err != nil {
		t.Errorf("stored hash does not match the folded transcript: %v", err)
	}
	if f.store.commits != 1 {
		t.Errorf("commits = %d, want 1", f.store.commits)
	}
	if len(f.transcriber.mimes) != 1 || f.transcriber.mimes[0] != "audio/wav" {
		t.Errorf("transcriber mimes = %v", f.transcriber.mimes)
	}
}

func TestCreateVoiceProfile_ReplacesExisting(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateVoiceProfile(ctx, "user-1", wavSample())
	if err != nil {
		t.Fatalf("first enrolment: %v", err)
	}
	oldURL := f.store.profiles["user-1"].SampleURL

	f.transcriber.text = "new phrase"
	second, err := f.svc.CreateVoiceProfile(ctx, "user-1", wavSample())
	if err != nil {
		t.Fatalf("second enrolment: %v", err)
	}

	if second.ProfileID != first.ProfileID {
		t.Errorf("profile id changed from %q to %q", first.ProfileID, second.ProfileID)
	}
	p, _ := f.store.profile("user-1")
	if p.SampleURL == oldURL {
		t.Error("sample url not replaced")
	}
	if deleted := f.s3.Deleted(); len(deleted) != 1 || deleted[0] != oldURL {
		t.Errorf("deleted = %v, want [%s]", deleted, oldURL)
	}
	if err := xbcrypt.CompareHashAndPassword([]byte(p.PassphraseHash), []byte("new phrase")); err != nil {
		t.Error("passphrase not replaced")
	}
}

func TestCreateVoiceProfile_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *serviceFixture)
		sample  speech.Sample
		wantErr error
	}{
		{
			name:    "empty sample",
			sample:  speech.Sample{MimeType: "audio/wav"},
			wantErr: voice.ErrEmptySample,
		},
		{
			name:    "sample too large",
			setup:   func(f *serviceFixture) { f.config.MaxSampleSize = 4 },
			sample:  wavSample(),
			wantErr: voice.ErrSampleTooLarge,
		},
		{
			name:    "transcription fails",
			setup:   func(f *serviceFixture) { f.transcriber.err = errBoom },
			sample:  wavSample(),
			wantErr: voice.ErrTranscriptionFailed,
		},
		{
			name:    "nothing said",
			setup:   func(f *serviceFixture) { f.transcriber.text = " ... " },
			sample:  wavSample(),
			wantErr: voice.ErrPassphraseNotDetected,
		},
		{
			name:    "upload fails",
			setup:   func(f *serviceFixture) { f.s3.uploadErr = errBoom },
			sample:  wavSample(),
			wantErr: voice.ErrFailedToUploadSample,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			result, err := f.svc.CreateVoiceProfile(context.Background(), "user-1", tt.sample)

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if result.Success || result.Error == "" {
				t.Errorf("result = %+v", result)
			}
			if _, ok := f.store.profile("user-1"); ok {
				t.Error("profile stored despite rejection")
			}
		})
	}
}

func TestCreateVoiceProfile_StoreFailureRemovesUpload(t *testing.T) {
	f := newServiceFixture(t)
	f.store.writeErr = errBoom

	_, err := f.svc.CreateVoiceProfile(context.Background(), "user-1", wavSample())

	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
	if len(f.s3.objects) != 0 {
		t.Errorf("orphaned uploads: %v", f.s3.objects)
	}
	if f.store.rollbacks != 1 || f.store.commits != 0 {
		t.Errorf("rollbacks = %d, commits = %d", f.store.rollbacks, f.store.commits)
	}
}

func TestLoginWithVoice(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CreateVoiceProfile(ctx, "user-1", wavSample()); err != nil {
		t.Fatalf("enrol: %v", err)
	}

	t.Run("matching passphrase", func(t *testing.T) {
		resp, err := f.svc.LoginWithVoice(ctx, "Jane@Example.com", "open sesame please")
		if err != nil {
			t.Fatalf("LoginWithVoice: %v", err)
		}
		if resp.User.ID != "user-1" || resp.User.Email != "jane@example.com" {
			t.Errorf("user = %+v", resp.User)
		}

		token, err := jwtPkg.VerifyToken(resp.AccessToken, jwtPkg.AccessTokenSecret)
		if err != nil {
			t.Fatalf("issued token invalid: %v", err)
		}
		user, err := jwtPkg.UserFromToken(token)
		if err != nil || user.ID != "user-1" {
			t.Errorf("token user = %+v, %v", user, err)
		}

		if got := f.redis.keys[voiceLoginKey("user-1")]; got != resp.AccessToken {
			t.Error("login session not stored")
		}
		if ttl := f.redis.ttls[voiceLoginKey("user-1")]; ttl != f.config.LoginTTL {
			t.Errorf("session ttl = %v, want %v", ttl, f.config.LoginTTL)
		}
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		if _, err := f.svc.LoginWithVoice(ctx, "jane@example.com", "close sesame"); !errors.Is(err, voice.ErrPassphraseMismatch) {
			t.Errorf("err = %v, want ErrPassphraseMismatch", err)
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		if _, err := f.svc.LoginWithVoice(ctx, "nobody@example.com", "open sesame please"); !errors.Is(err, voice.ErrVoiceProfileNotFound) {
			t.Errorf("err = %v, want ErrVoiceProfileNotFound", err)
		}
	})
}

func TestSignOut(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.redis.keys[voiceLoginKey("user-1")] = "token"

	if err := f.svc.SignOut(ctx, "user-1"); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, ok := f.redis.keys[voiceLoginKey("user-1")]; ok {
		t.Error("session key still present")
	}

	f.redis.err = errBoom
	if err := f.svc.SignOut(ctx, "user-1"); !errors.Is(err, voice.ErrFailedToSignOut) {
		t.Errorf("err = %v, want ErrFailedToSignOut", err)
	}
}

func TestVerifyToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	token, _, err := jwtPkg.Sign(map[string]interface{}{"id": "user-1", "email": "jane@example.com", "username": "Jane"}, f.config.LoginTTL)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	user, err := f.svc.VerifyToken(ctx, token)
	if err != nil || user.ID != "user-1" || user.Username != "Jane" {
		t.Errorf("VerifyToken = %+v, %v", user, err)
	}

	if _, err := f.svc.VerifyToken(ctx, "not-a-token"); !errors.Is(err, voice.ErrNotAuthenticated) {
		t.Errorf("garbage token err = %v", err)
	}

	incomplete, _, _ := jwtPkg.Sign(map[string]interface{}{"username": "Jane"}, f.config.LoginTTL)
	if _, err := f.svc.VerifyToken(ctx, incomplete); !errors.Is(err, voice.ErrNotAuthenticated) {
		t.Errorf("token without id err = %v", err)
	}

	voiceToken, _, _ := jwtPkg.Sign(map[string]interface{}{"id": "user-1", "email": "jane@example.com", "method": "voice"}, f.config.LoginTTL)
	if _, err := f.svc.VerifyToken(ctx, voiceToken); !errors.Is(err, voice.ErrNotAuthenticated) {
		t.Errorf("voice token without session err = %v", err)
	}
	f.redis.keys[voiceLoginKey("user-1")] = voiceToken
	if _, err := f.svc.VerifyToken(ctx, voiceToken); err != nil {
		t.Errorf("live voice token rejected: %v", err)
	}
	if err := f.svc.SignOut(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.VerifyToken(ctx, voiceToken); !errors.Is(err, voice.ErrNotAuthenticated) {
		t.Errorf("signed out voice token err = %v", err)
	}
}

func TestGetAndDeleteVoiceProfile(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateVoiceProfile(ctx, "user-1", wavSample())
	if err != nil {
		t.Fatalf("enrol: %v", err)
	}
	url := f.store.profiles["user-1"].SampleURL

	got, err := f.svc.GetVoiceProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetVoiceProfile: %v", err)
	}
	if got.ID != created.ProfileID || got.SampleURL != url+"?signature=test" {
		t.Errorf("profile = %+v", got)
	}

	if err := f.svc.DeleteVoiceProfile(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteVoiceProfile: %v", err)
	}
	if _, ok := f.store.profile("user-1"); ok {
		t.Error("profile still stored")
	}
	if deleted := f.s3.Deleted(); len(deleted) != 1 || deleted[0] != url {
		t.Errorf("deleted = %v", deleted)
	}

	if _, err := f.svc.GetVoiceProfile(ctx, "user-1"); !errors.Is(err, voice.ErrVoiceProfileNotFound) {
		t.Errorf("err = %v, want ErrVoiceProfileNotFound", err)
	}
}

func TestNormalize(t *testing.T) {
	f := newServiceFixture(t)

	resp := f.svc.Normalize(context.Background(), voice.NormalizeRequest{Text: "jane at example dot com", Kind: "email"})
	if resp.Output != "jane@example.com" || resp.Kind != "email" {
		t.Errorf("email normalize = %+v", resp)
	}

	resp = f.svc.Normalize(context.Background(), voice.NormalizeRequest{Text: " Jane Doe "})
	if resp.Output != "Jane Doe" || resp.Kind != "plain" {
		t.Errorf("plain normalize = %+v", resp)
	}
}
