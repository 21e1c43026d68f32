package store

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/pubky/homeserver/internal/capability"
	"github.com/pubky/homeserver/internal/zbase32"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestKey(t *testing.T) ed25519.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return pub
}

func TestUpsertUserIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	pub := newTestKey(t)

	if err := st.UpsertUser(ctx, pub); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	u1, ok, err := st.GetUser(ctx, pub)
	if err != nil || !ok {
		t.Fatalf("GetUser after first upsert: ok=%v err=%v", ok, err)
	}
	if err := st.UpsertUser(ctx, pub); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	u2, ok, err := st.GetUser(ctx, pub)
	if err != nil || !ok {
		t.Fatalf("GetUser after second upsert: ok=%v err=%v", ok, err)
	}
	if u1.CreatedAt != u2.CreatedAt {
		t.Fatal("second upsert should not change CreatedAt")
	}
}

func TestSessionLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	pub := newTestKey(t)

	secret, err := st.CreateSession(ctx, Session{
		Version:      0,
		Pubky:        pub,
		Name:         "test-agent",
		UserAgent:    "test-agent",
		Capabilities: capability.List{capability.RootCapability()},
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sess, ok, err := st.GetSession(ctx, secret)
	if err != nil || !ok {
		t.Fatalf("GetSession: ok=%v err=%v", ok, err)
	}
	if !sess.Pubky.Equal(pub) {
		t.Fatal("session pubky mismatch")
	}

	deleted, err := st.DeleteSession(ctx, secret)
	if err != nil || !deleted {
		t.Fatalf("DeleteSession: deleted=%v err=%v", deleted, err)
	}

	if _, ok, _ := st.GetSession(ctx, secret); ok {
		t.Fatal("session should be gone after delete")
	}
}

// S2 PUT/GET/DELETE.
func TestPutGetDeleteEntry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	pub := newTestKey(t)
	body := []byte{1, 2, 3, 4, 5}

	if err := st.PutEntry(ctx, pub, "pub/foo.txt", body, ""); err != nil {
		t.Fatalf("PutEntry: %v", err)
	}

	got, ok, err := st.GetBlob(ctx, pub, "pub/foo.txt")
	if err != nil || !ok {
		t.Fatalf("GetBlob: ok=%v err=%v", ok, err)
	}
	if string(got) != string(body) {
		t.Fatalf("got %v want %v", got, body)
	}

	deleted, err := st.DeleteEntry(ctx, pub, "pub/foo.txt")
	if err != nil || !deleted {
		t.Fatalf("DeleteEntry: deleted=%v err=%v", deleted, err)
	}

	if _, ok, _ := st.GetBlob(ctx, pub, "pub/foo.txt"); ok {
		t.Fatal("blob should be gone after delete")
	}
}

// S3 Shared blob dedup.
func TestSharedBlobDedupAndEvents(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u1 := newTestKey(t)
	u2 := newTestKey(t)
	body := []byte{0x01}
	path := "pub/pubky.app/file/file_1"

	if err := st.PutEntry(ctx, u1, path, body, ""); err != nil {
		t.Fatalf("put u1: %v", err)
	}
	if err := st.PutEntry(ctx, u2, path, body, ""); err != nil {
		t.Fatalf("put u2: %v", err)
	}
	if _, err := st.DeleteEntry(ctx, u1, path); err != nil {
		t.Fatalf("delete u1: %v", err)
	}

	got, ok, err := st.GetBlob(ctx, u2, path)
	if err != nil || !ok {
		t.Fatalf("GetBlob u2 after u1 delete: ok=%v err=%v", ok, err)
	}
	if string(got) != string(body) {
		t.Fatal("u2's copy should survive u1's delete")
	}

	lines, err := st.ListEvents(ctx, ListEventsParams{Limit: 10})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("expected 3 events + cursor line, got %d: %v", len(lines), lines)
	}
	u1z := zbase32.Encode(u1)
	u2z := zbase32.Encode(u2)
	wantPut1 := "PUT pubky://" + u1z + "/" + path
	wantPut2 := "PUT pubky://" + u2z + "/" + path
	wantDel1 := "DEL pubky://" + u1z + "/" + path
	if lines[0] != wantPut1 || lines[1] != wantPut2 || lines[2] != wantDel1 {
		t.Fatalf("unexpected event order: %v", lines)
	}
}

// S4-flavored listing-with-cursor test.
func TestListingWithCursor(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	pub := newTestKey(t)
	prefix := zbase32.Encode(pub) + "/pub/example.com/"

	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		if err := st.PutEntry(ctx, pub, "pub/example.com/"+name, []byte("x"), ""); err != nil {
			t.Fatalf("put %s: %v", name, err)
		}
	}
	if err := st.PutEntry(ctx, pub, "pub/example.com/cc-nested/z.txt", []byte("x"), ""); err != nil {
		t.Fatalf("put nested: %v", err)
	}

	urls, err := st.List(ctx, ListParams{
		PathPrefix:   prefix,
		Limit:        2,
		Cursor:       "a.txt",
		DefaultLimit: 100,
		MaxLimit:     1000,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"pubky://" + prefix + "b.txt", "pubky://" + prefix + "c.txt"}
	if len(urls) != 2 || urls[0] != want[0] || urls[1] != want[1] {
		t.Fatalf("got %v want %v", urls, want)
	}

	urls2, err := st.List(ctx, ListParams{
		PathPrefix:   prefix,
		Limit:        2,
		Cursor:       "cc-nested/",
		DefaultLimit: 100,
		MaxLimit:     1000,
	})
	if err != nil {
		t.Fatalf("List after cc-nested: %v", err)
	}
	want2 := []string{"pubky://" + prefix + "cc-nested/z.txt", "pubky://" + prefix + "d.txt"}
	if len(urls2) != 2 || urls2[0] != want2[0] || urls2[1] != want2[1] {
		t.Fatalf("got %v want %v", urls2, want2)
	}
}

// S5 Shallow listing.
func TestShallowListing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	pub := newTestKey(t)
	prefix := zbase32.Encode(pub) + "/pub/"

	paths := []string{
		"pub/a.com/index.html",
		"pub/example.com/index.html",
		"pub/z.com/index.html",
	}
	for _, p := range paths {
		if err := st.PutEntry(ctx, pub, p, []byte("x"), ""); err != nil {
			t.Fatalf("put %s: %v", p, err)
		}
	}

	urls, err := st.List(ctx, ListParams{
		PathPrefix:   prefix,
		Shallow:      true,
		Limit:        2,
		DefaultLimit: 100,
		MaxLimit:     1000,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"pubky://" + prefix + "a.com/", "pubky://" + prefix + "example.com/"}
	if len(urls) != 2 || urls[0] != want[0] || urls[1] != want[1] {
		t.Fatalf("got %v want %v", urls, want)
	}
}

func TestContainsDirectory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	pub := newTestKey(t)
	prefix := zbase32.Encode(pub) + "/pub/dir/"

	ok, err := st.ContainsDirectory(ctx, prefix)
	if err != nil {
		t.Fatalf("ContainsDirectory before put: %v", err)
	}
	if ok {
		t.Fatal("expected false before any entry exists")
	}

	if err := st.PutEntry(ctx, pub, "pub/dir/file.txt", []byte("x"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}

	ok, err = st.ContainsDirectory(ctx, prefix)
	if err != nil {
		t.Fatalf("ContainsDirectory after put: %v", err)
	}
	if !ok {
		t.Fatal("expected true after an entry exists under the prefix")
	}
}
