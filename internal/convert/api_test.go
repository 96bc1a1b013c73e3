package convert

import (
	"strings"
	"testing"
	"time"

	"github.com/and161185/notevault/internal/api"
	model "github.com/and161185/notevault/internal/model"
	u "github.com/gofrs/uuid/v5"
)

func mustUUID(t *testing.T, s string) u.UUID {
	t.Helper()
	id, err := u.FromString(s)
	if err != nil {
		t.Fatalf("bad uuid %q: %v", s, err)
	}
	return id
}

func TestParseID(t *testing.T) {
	t.Parallel()
	if _, err := ParseID("nope"); err == nil {
		t.Fatalf("want error on garbage")
	}
	if _, err := ParseID(u.Nil.String()); err == nil {
		t.Fatalf("want error on nil uuid")
	}
	id := "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11"
	got, err := ParseID(id)
	if err != nil || got.String() != id {
		t.Fatalf("ParseID: %v %v", got, err)
	}
}

func TestFromAPIUpsertDocuments(t *testing.T) {
	t.Parallel()
	in := []api.UpsertDocument{
		{ID: "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11", BaseVer: 10, EncryptedContent: []byte{9}, EncryptedKey: []byte{8}},
	}
	got, err := FromAPIUpsertDocuments(in)
	if err != nil {
		t.Fatalf("FromAPIUpsertDocuments: %v", err)
	}
	if got[0].BaseVer != 10 || string(got[0].EncryptedKey) != "\x08" || got[0].Metadata != nil {
		t.Fatalf("mismatch: %+v", got[0])
	}

	in = append(in, api.UpsertDocument{ID: "bad"})
	_, err = FromAPIUpsertDocuments(in)
	if err == nil || !strings.Contains(err.Error(), "document[1]") {
		t.Fatalf("want indexed error, got %v", err)
	}
}

func TestToAPIChanges_TombstoneHasNoCiphertext(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id := mustUUID(t, "a1a1a1a1-b2b2-4c3c-8d4d-e5e5e5e5e5e5")
	out := ToAPIChanges([]model.Change{
		{ID: id, Ver: 2, UpdatedAt: ts, EncryptedContent: model.EncryptedBlob("c"), EncryptedKey: model.EncryptedBlob("k")},
		{ID: id, Ver: 3, Deleted: true, EncryptedContent: model.EncryptedBlob("stale")},
	})
	if len(out) != 2 || string(out[0].EncryptedContent) != "c" || out[0].ID != id.String() {
		t.Fatalf("live change: %+v", out[0])
	}
	if out[1].EncryptedContent != nil || !out[1].Deleted {
		t.Fatalf("tombstone: %+v", out[1])
	}
}

func TestWorkspaceRoundtrip(t *testing.T) {
	t.Parallel()
	w := model.Workspace{
		ID: mustUUID(t, "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11"), Name: "n", KDFSalt: "s",
		WrappedMasterKey: model.EncryptedBlob("w"),
	}
	back, err := FromAPIWorkspace(ToAPIWorkspace(w))
	if err != nil {
		t.Fatalf("FromAPIWorkspace: %v", err)
	}
	if back.ID != w.ID || string(back.WrappedMasterKey) != "w" || back.KDFSalt != "s" {
		t.Fatalf("roundtrip: %+v", back)
	}
	empty, _ := FromAPIWorkspace(api.Workspace{ID: w.ID.String()})
	if empty.WrappedMasterKey != nil {
		t.Fatalf("empty wrapped key must be nil")
	}
}

func TestToAPIShare_TTL(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := model.ShareToken{Token: "t", Permissions: model.Permissions{CanView: true}, ExpiresAt: now.Add(90 * time.Second)}
	s := ToAPIShare(tok, now)
	if s.TTLSeconds != 90 || !s.Permissions.CanView || s.Permissions.CanEdit {
		t.Fatalf("share: %+v", s)
	}
	if ToAPIShare(tok, now.Add(time.Hour)).TTLSeconds != 0 {
		t.Fatalf("expired share must report zero ttl")
	}
	if FromAPIPermissions(nil) != nil {
		t.Fatalf("nil perms must stay nil")
	}
	p := FromAPIPermissions(&api.Permissions{CanEdit: true})
	if p == nil || !p.CanEdit || p.CanView {
		t.Fatalf("perms: %+v", p)
	}
}

func TestToAPIDocument_DeletedStripsCiphertext(t *testing.T) {
	t.Parallel()
	d := model.Document{ID: u.Must(u.NewV4()), EncryptedContent: model.EncryptedBlob("c"), Deleted: true}
	if out := ToAPIDocument(d); out.EncryptedContent != nil {
		t.Fatalf("deleted doc leaked ciphertext")
	}
}
