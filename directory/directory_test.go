// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"testing"
	"time"

	"github.com/xzyqiu/TermTalk/lib/clock"
)

func openTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	store, err := Open(":memory:", WithClock(fake))
	if err != nil {
		t.Fatalf("Open(:memory:) error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, fake
}

func TestRegisterLookup(t *testing.T) {
	store, fake := openTestStore(t)
	ctx := context.Background()

	record := Record{
		RoomID:    "a1b2c3d4e5f60718",
		Host:      "192.168.1.10",
		Port:      7500,
		ExpiresAt: fake.Now().Add(5 * time.Minute).Unix(),
	}
	if err := store.Register(ctx, record); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	got, found, err := store.Lookup(ctx, record.RoomID)
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if !found {
		t.Fatal("Lookup() did not find a just-registered room")
	}
	if got != record {
		t.Errorf("Lookup() = %+v, want %+v", got, record)
	}
}

func TestLookup_Absent(t *testing.T) {
	store, _ := openTestStore(t)

	_, found, err := store.Lookup(context.Background(), "ffffffffffffffff")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if found {
		t.Error("Lookup() found a room that was never registered")
	}
}

func TestLookup_ExpiredIsPruned(t *testing.T) {
	store, fake := openTestStore(t)
	ctx := context.Background()

	record := Record{
		RoomID:    "00112233445566aa",
		Host:      "10.0.0.5",
		Port:      7500,
		ExpiresAt: fake.Now().Add(2 * time.Second).Unix(),
	}
	if err := store.Register(ctx, record); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	fake.Advance(3 * time.Second)

	_, found, err := store.Lookup(ctx, record.RoomID)
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if found {
		t.Fatal("Lookup() returned an expired room")
	}

	// The expired record must be gone even for a clock that would
	// have accepted it: pruning is a delete, not a filter.
	record.ExpiresAt = fake.Now().Add(time.Hour).Unix()
	_, found, err = store.Lookup(ctx, record.RoomID)
	if err != nil {
		t.Fatalf("Lookup() error after prune: %v", err)
	}
	if found {
		t.Error("expired record was filtered but not deleted")
	}
}

func TestRegister_Overwrites(t *testing.T) {
	store, fake := openTestStore(t)
	ctx := context.Background()

	first := Record{RoomID: "aaaabbbbccccdddd", Host: "1.2.3.4", Port: 1000, ExpiresAt: fake.Now().Add(time.Hour).Unix()}
	second := Record{RoomID: "aaaabbbbccccdddd", Host: "5.6.7.8", Port: 2000, ExpiresAt: fake.Now().Add(2 * time.Hour).Unix()}
	if err := store.Register(ctx, first); err != nil {
		t.Fatalf("Register(first) error: %v", err)
	}
	if err := store.Register(ctx, second); err != nil {
		t.Fatalf("Register(second) error: %v", err)
	}

	got, found, err := store.Lookup(ctx, "aaaabbbbccccdddd")
	if err != nil || !found {
		t.Fatalf("Lookup() = found=%v, err=%v", found, err)
	}
	if got != second {
		t.Errorf("Lookup() after re-register = %+v, want %+v", got, second)
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	store, fake := openTestStore(t)
	ctx := context.Background()

	record := Record{RoomID: "1234abcd5678ef00", Host: "127.0.0.1", Port: 7500, ExpiresAt: fake.Now().Add(time.Hour).Unix()}
	if err := store.Register(ctx, record); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := store.Unregister(ctx, record.RoomID); err != nil {
		t.Fatalf("Unregister() error: %v", err)
	}
	if _, found, _ := store.Lookup(ctx, record.RoomID); found {
		t.Error("Lookup() found an unregistered room")
	}
	// Second removal of the same id is a no-op, not an error.
	if err := store.Unregister(ctx, record.RoomID); err != nil {
		t.Errorf("second Unregister() error: %v", err)
	}
}
