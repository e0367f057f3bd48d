package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, "wp"), mr
}

func testSession(sid, uid string) *Session {
	now := time.Now().Unix()
	return &Session{
		SessionID:    sid,
		UserID:       uid,
		Email:        uid + "@wellport.test",
		Role:         "patient",
		CreatedAt:    now,
		LastActivity: now,
		IP:           "203.0.113.1",
		Device:       "cli",
	}
}

func TestSaveAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	want := testSession("s-1", "u-1")
	want.GrantHash = "abc123"
	if err := store.Save(ctx, want, time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.Get(ctx, "s-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.UserID != "u-1" || got.Email != "u-1@wellport.test" || got.GrantHash != "abc123" {
		t.Fatalf("got = %+v", got)
	}
	if got.IP != "203.0.113.1" || got.Device != "cli" {
		t.Fatalf("metadata lost: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSessionExpiresWithTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("s-1", "u-1"), time.Minute); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "s-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after expiry", err)
	}
}

func TestTouchPreservesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("s-1", "u-1"), time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	mr.FastForward(30 * time.Minute)

	at := time.Now().UTC()
	if err := store.Touch(ctx, "s-1", "198.51.100.9", "Pixel Chrome", at); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	got, err := store.Get(ctx, "s-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.IP != "198.51.100.9" || got.Device != "Pixel Chrome" {
		t.Fatalf("activity not recorded: %+v", got)
	}

	// The record must still die on its original schedule.
	if ttl := mr.TTL("wp:s:s-1"); ttl > 30*time.Minute {
		t.Fatalf("touch extended the ttl to %v", ttl)
	}
	mr.FastForward(31 * time.Minute)
	if _, err := store.Get(ctx, "s-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record outlived its window: %v", err)
	}
}

func TestTouchMissingSession(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.Touch(context.Background(), "nope", "ip", "dev", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSupersedeShortensLifetime(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s-old", "u-1")
	sess.GrantHash = "oldgrant"
	if err := store.Save(ctx, sess, 24*time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := store.Supersede(ctx, "s-old", "s-new", 15*time.Minute); err != nil {
		t.Fatalf("supersede failed: %v", err)
	}

	got, err := store.Get(ctx, "s-old")
	if err != nil {
		t.Fatalf("superseded record unreadable inside grace: %v", err)
	}
	if !got.Superseded() || got.RotatedTo != "s-new" {
		t.Fatalf("rotation marker missing: %+v", got)
	}
	if got.GrantHash != "" {
		t.Fatal("grant hash survived supersede")
	}

	mr.FastForward(16 * time.Minute)
	if _, err := store.Get(ctx, "s-old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("superseded record outlived the grace window: %v", err)
	}
}

func TestSupersedeMissingSessionIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Supersede(context.Background(), "gone", "s-new", time.Minute); err != nil {
		t.Fatalf("supersede of absent record errored: %v", err)
	}
}

func TestDeleteRemovesRecordIndexAndGrant(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s-1", "u-1")
	sess.GrantHash = "granthash"
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.PutGrant(ctx, "granthash", Grant{UserID: "u-1", SessionID: "s-1"}, time.Hour); err != nil {
		t.Fatalf("put grant failed: %v", err)
	}

	if err := store.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if mr.Exists("wp:s:s-1") {
		t.Fatal("session record survived delete")
	}
	if mr.Exists("wp:g:granthash") {
		t.Fatal("grant survived delete")
	}
	if members, _ := mr.SMembers("wp:u:u-1"); len(members) != 0 {
		t.Fatalf("index still holds %v", members)
	}
	if _, err := store.ConsumeGrant(ctx, "granthash"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("grant consumable after delete: %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("s-1", "u-1"), time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := store.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("delete of unknown session failed: %v", err)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	for _, sid := range []string{"s-1", "s-2", "s-3"} {
		sess := testSession(sid, "u-1")
		sess.GrantHash = "grant-" + sid
		if err := store.Save(ctx, sess, time.Hour); err != nil {
			t.Fatalf("save %s failed: %v", sid, err)
		}
		if err := store.PutGrant(ctx, sess.GrantHash, Grant{UserID: "u-1", SessionID: sid}, time.Hour); err != nil {
			t.Fatalf("put grant %s failed: %v", sid, err)
		}
	}
	// Another user's session must survive.
	if err := store.Save(ctx, testSession("s-other", "u-2"), time.Hour); err != nil {
		t.Fatalf("save other failed: %v", err)
	}

	if err := store.DeleteAllForUser(ctx, "u-1"); err != nil {
		t.Fatalf("delete-all failed: %v", err)
	}

	for _, sid := range []string{"s-1", "s-2", "s-3"} {
		if mr.Exists("wp:s:" + sid) {
			t.Fatalf("record %s survived", sid)
		}
		if mr.Exists("wp:g:grant-" + sid) {
			t.Fatalf("grant for %s survived", sid)
		}
	}
	if mr.Exists("wp:u:u-1") {
		t.Fatal("user index survived")
	}
	if _, err := store.Get(ctx, "s-other"); err != nil {
		t.Fatalf("unrelated session was deleted: %v", err)
	}
}

func TestDeleteAllForUnknownUser(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.DeleteAllForUser(context.Background(), "u-nobody"); err != nil {
		t.Fatalf("delete-all for unknown user errored: %v", err)
	}
}

func TestListForUser(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("s-1", "u-1"), time.Minute); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Save(ctx, testSession("s-2", "u-1"), time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	sessions, err := store.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("listed %d sessions, want 2", len(sessions))
	}

	// A stale index entry (record expired, SREM never ran) is skipped.
	mr.FastForward(2 * time.Minute)
	sessions, err = store.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list after expiry failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s-2" {
		t.Fatalf("sessions = %+v, want only s-2", sessions)
	}
}

func TestListForUnknownUserIsEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	sessions, err := store.ListForUser(context.Background(), "u-nobody")
	if err != nil {
		t.Fatalf("list errored: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("listed %d sessions, want 0", len(sessions))
	}
}

func TestConsumeGrantIsSingleShot(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	grant := Grant{UserID: "u-1", SessionID: "s-1", Email: "u-1@wellport.test", Role: "patient"}
	if err := store.PutGrant(ctx, "hash-1", grant, time.Hour); err != nil {
		t.Fatalf("put grant failed: %v", err)
	}

	got, err := store.ConsumeGrant(ctx, "hash-1")
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if *got != grant {
		t.Fatalf("grant = %+v, want %+v", got, grant)
	}

	if _, err := store.ConsumeGrant(ctx, "hash-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume = %v, want ErrNotFound", err)
	}
}

func TestGrantExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.PutGrant(ctx, "hash-1", Grant{UserID: "u-1"}, time.Minute); err != nil {
		t.Fatalf("put grant failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.ConsumeGrant(ctx, "hash-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired grant consumable: %v", err)
	}
}

func TestStoreOutageWrapsErrUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("s-1", "u-1"), time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	mr.Close()

	if err := store.Save(ctx, testSession("s-2", "u-1"), time.Hour); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("save err = %v, want ErrUnavailable", err)
	}
	if _, err := store.Get(ctx, "s-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("get err = %v, want ErrUnavailable", err)
	}
	if _, err := store.ConsumeGrant(ctx, "hash"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("consume err = %v, want ErrUnavailable", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ping err = %v, want ErrUnavailable", err)
	}
}
