package voiceService

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"EchoBank/internal/api/voice"
	"EchoBank/internal/entity"
)

func TestParseAudience(t *testing.T) {
	tests := []struct {
		in      string
		want    Audience
		wantErr error
	}{
		{"", AudiencePublic, nil},
		{"public", AudiencePublic, nil},
		{"member", AudienceMember, nil},
		{"admin", "", voice.ErrInvalidAudience},
	}
	for _, tt := range tests {
		got, err := ParseAudience(tt.in)
		if got != tt.want || !errors.Is(err, tt.wantErr) {
			t.Errorf("ParseAudience(%q) = %q, %v; want %q, %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestGetPhraseTable(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing stored", func(t *testing.T) {
		f := newServiceFixture(t)
		got, err := f.svc.GetPhraseTable(ctx, AudienceMember)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, DefaultPhraseTable(AudienceMember)) {
			t.Errorf("table = %+v", got)
		}
	})

	t.Run("stored table in position order", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.phrases["public"] = []entity.CommandPhrase{
			{Audience: "public", Position: 1, Phrases: []string{"open help"}, Action: "/help"},
			{Audience: "public", Position: 0, Phrases: []string{"go to home"}, Action: "/"},
		}
		got, err := f.svc.GetPhraseTable(ctx, AudiencePublic)
		if err != nil {
			t.Fatal(err)
		}
		want := PhraseTable{
			{Phrases: []string{"go to home"}, Action: "/"},
			{Phrases: []string{"open help"}, Action: "/help"},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("table = %+v, want %+v", got, want)
		}
	})

	t.Run("ambiguous stored table falls back", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.phrases["public"] = []entity.CommandPhrase{
			{Audience: "public", Position: 0, Phrases: []string{"open"}, Action: "/a"},
			{Audience: "public", Position: 1, Phrases: []string{"open help"}, Action: "/b"},
		}
		got, err := f.svc.GetPhraseTable(ctx, AudiencePublic)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, DefaultPhraseTable(AudiencePublic)) {
			t.Errorf("table = %+v", got)
		}
	})

	t.Run("store unavailable", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.clientErr = errBoom
		if _, err := f.svc.GetPhraseTable(ctx, AudiencePublic); !errors.Is(err, errBoom) {
			t.Errorf("err = %v", err)
		}
		tables := f.svc.loadPhraseTables(ctx)
		if !reflect.DeepEqual(tables[AudienceMember], DefaultPhraseTable(AudienceMember)) {
			t.Error("loadPhraseTables did not fall back to the built-in table")
		}
	})
}

func TestReplacePhraseTable(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces rows", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.phrases["member"] = []entity.CommandPhrase{{Audience: "member", Phrases: []string{"old"}, Action: "/old"}}

		table := PhraseTable{
			{Phrases: []string{"go to dashboard"}, Action: "/dashboard"},
			{Phrases: []string{"log out", "sign out"}, Action: ActionLogout},
		}
		if err := f.svc.ReplacePhraseTable(ctx, AudienceMember, table); err != nil {
			t.Fatalf("ReplacePhraseTable: %v", err)
		}

		rows := f.store.phrases["member"]
		if len(rows) != 2 {
			t.Fatalf("rows = %+v", rows)
		}
		for i, row := range rows {
			if row.Position != i || row.Action != table[i].Action || !row.IsActive || row.ID == "" {
				t.Errorf("row %d = %+v", i, row)
			}
		}
		if f.store.commits != 1 {
			t.Errorf("commits = %d", f.store.commits)
		}

		got, _ := f.svc.GetPhraseTable(ctx, AudienceMember)
		if !reflect.DeepEqual(got, table) {
			t.Errorf("read back %+v", got)
		}
	})

	t.Run("rejects ambiguous table", func(t *testing.T) {
		f := newServiceFixture(t)
		table := PhraseTable{
			{Phrases: []string{"open"}, Action: "/a"},
			{Phrases: []string{"open help"}, Action: "/b"},
		}
		if err := f.svc.ReplacePhraseTable(ctx, AudiencePublic, table); !errors.Is(err, voice.ErrAmbiguousPhrases) {
			t.Errorf("err = %v, want ErrAmbiguousPhrases", err)
		}
		if f.store.commits != 0 {
			t.Error("ambiguous table committed")
		}
	})

	t.Run("rolls back on write failure", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.writeErr = errBoom
		err := f.svc.ReplacePhraseTable(ctx, AudiencePublic, DefaultPhraseTable(AudiencePublic))
		if !errors.Is(err, errBoom) {
			t.Errorf("err = %v", err)
		}
		if f.store.rollbacks != 1 || f.store.commits != 0 {
			t.Errorf("rollbacks = %d, commits = %d", f.store.rollbacks, f.store.commits)
		}
	})
}

func TestPhraseTableDTORoundTrip(t *testing.T) {
	table := DefaultPhraseTable(AudienceMember)
	if got := PhraseTableFromDTO(table.DTO()); !reflect.DeepEqual(got, table) {
		t.Errorf("round trip = %+v", got)
	}
}
