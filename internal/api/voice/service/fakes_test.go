package voiceService

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"EchoBank/internal/api/voice"
	voiceRepository "EchoBank/internal/api/voice/repository"
	"EchoBank/internal/entity"
	"EchoBank/pkg/bcrypt"
	"EchoBank/pkg/redis"
	"EchoBank/pkg/utils"
)

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]entity.UserLoginData
	profiles  map[string]entity.VoiceProfile
	phrases   map[string][]entity.CommandPhrase
	commits   int
	rollbacks int

	clientErr error
	writeErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]entity.UserLoginData),
		profiles: make(map[string]entity.VoiceProfile),
		phrases:  make(map[string][]entity.CommandPhrase),
	}
}

func (s *fakeStore) NewClient(bool) (voiceRepository.Client, error) {
	if s.clientErr != nil {
		return voiceRepository.Client{}, s.clientErr
	}
	return voiceRepository.Client{
		Profiles: fakeProfiles{s},
		Phrases:  fakePhrases{s},
		Commit: func() error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.commits++
			return nil
		},
		Rollback: func() error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.rollbacks++
			return nil
		},
	}, nil
}

func (s *fakeStore) profile(userID string) (entity.VoiceProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	return p, ok
}

type fakeProfiles struct{ s *fakeStore }

func (f fakeProfiles) CreateVoiceProfile(_ context.Context, p entity.VoiceProfile) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.writeErr != nil {
		return f.s.writeErr
	}
	f.s.profiles[p.UserID] = p
	return nil
}

func (f fakeProfiles) UpdateVoiceProfile(_ context.Context, p entity.VoiceProfile) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.writeErr != nil {
		return f.s.writeErr
	}
	old, ok := f.s.profiles[p.UserID]
	if !ok {
		return voice.ErrVoiceProfileNotFound
	}
	old.PassphraseHash = p.PassphraseHash
	old.SampleURL = p.SampleURL
	old.SampleMime = p.SampleMime
	old.UpdatedAt = p.UpdatedAt
	f.s.profiles[p.UserID] = old
	return nil
}

func (f fakeProfiles) GetVoiceProfileByUserID(_ context.Context, userID string) (entity.VoiceProfile, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.profiles[userID]
	if !ok {
		return entity.VoiceProfile{}, voice.ErrVoiceProfileNotFound
	}
	return f.s.withUser(p), nil
}

func (f fakeProfiles) GetVoiceProfileByEmail(_ context.Context, email string) (entity.VoiceProfile, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.profiles {
		p = f.s.withUser(p)
		if strings.EqualFold(p.Email, email) {
			return p, nil
		}
	}
	return entity.VoiceProfile{}, voice.ErrVoiceProfileNotFound
}

func (f fakeProfiles) DeleteVoiceProfile(_ context.Context, userID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.profiles[userID]; !ok {
		return voice.ErrVoiceProfileNotFound
	}
	delete(f.s.profiles, userID)
	return nil
}

// withUser fills the columns joined from users. s.mu must be held.
func (s *fakeStore) withUser(p entity.VoiceProfile) entity.VoiceProfile {
	if u, ok := s.users[p.UserID]; ok {
		p.Email = u.Email
		p.Username = u.Username
	}
	return p
}

type fakePhrases struct{ s *fakeStore }

func (f fakePhrases) GetActivePhrases(_ context.Context, audience string) ([]entity.CommandPhrase, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	rows := append([]entity.CommandPhrase(nil), f.s.phrases[audience]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	return rows, nil
}

func (f fakePhrases) DeletePhrasesByAudience(_ context.Context, audience string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	delete(f.s.phrases, audience)
	return nil
}

func (f fakePhrases) CreatePhrase(_ context.Context, p entity.CommandPhrase) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.writeErr != nil {
		return f.s.writeErr
	}
	f.s.phrases[p.Audience] = append(f.s.phrases[p.Audience], p)
	return nil
}

type fakeS3 struct {
	uploadErr error

	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) UploadBytes(key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	url := "https://bucket.example.com/" + key
	f.objects[url] = data
	return url, nil
}

func (f *fakeS3) PresignUrl(fileURL string) (string, error) {
	return fileURL + "?signature=test", nil
}

func (f *fakeS3) DeleteFile(fileURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, fileURL)
	f.deleted = append(f.deleted, fileURL)
	return nil
}

func (f *fakeS3) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type fakeRedis struct {
	err error

	mu   sync.Mutex
	keys map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (r *fakeRedis) SetToken(_ context.Context, key, token string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.keys[key] = token
	r.ttls[key] = ttl
	return nil
}

func (r *fakeRedis) GetToken(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.keys[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return v, nil
}

func (r *fakeRedis) DeleteToken(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	delete(r.keys, key)
	return nil
}

type fakeTranscriber struct {
	text string
	err  error

	mu    sync.Mutex
	mimes []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, mime string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mimes = append(f.mimes, mime)
	return f.text, f.err
}

type lockoutAlert struct {
	profile  entity.VoiceProfile
	attempts int
}

type fakeNotifier struct {
	err    error
	alerts chan lockoutAlert
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{alerts: make(chan lockoutAlert, 8)}
}

func (n *fakeNotifier) NotifyLockout(_ context.Context, profile entity.VoiceProfile, attempts int) error {
	n.alerts <- lockoutAlert{profile, attempts}
	return n.err
}

type serviceFixture struct {
	*harness
	store       *fakeStore
	s3          *fakeS3
	redis       *fakeRedis
	transcriber *fakeTranscriber
	notifier    *fakeNotifier
	config      VoiceConfig
	svc         *voiceService
}

const testJWTSecret = "test-secret"

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	t.Setenv("JWT_ACCESS_TOKEN_SECRET", testJWTSecret)

	f := &serviceFixture{
		harness:     newHarness(),
		store:       newFakeStore(),
		s3:          newFakeS3(),
		redis:       newFakeRedis(),
		transcriber: &fakeTranscriber{text: "Open sesame, please."},
		notifier:    newFakeNotifier(),
		config:      DefaultConfig(),
	}
	f.store.users["user-1"] = entity.UserLoginData{ID: "user-1", Email: "jane@example.com", Username: "Jane"}
	f.svc = NewVoiceService(
		f.log,
		f.store,
		f.s3,
		f.redis,
		bcrypt.NewWithCost(4),
		f.transcriber,
		utils.New(),
		f.clk,
		&f.config,
		f.notifier,
	).(*voiceService)
	return f
}
