// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestQueue(t *testing.T, opts Options) *Queue {
	t.Helper()
	q, err := Open("", opts)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestFIFOOrdering(t *testing.T) {
	q := newTestQueue(t, Options{})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, id, []byte(id)); err != nil {
			t.Fatalf("Enqueue(%s) error: %v", id, err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		msg, err := q.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive() error: %v", err)
		}
		if msg.ID != want {
			t.Errorf("Receive() = %s, want %s", msg.ID, want)
		}
		if err := q.Delete(ctx, msg.ID); err != nil {
			t.Fatalf("Delete(%s) error: %v", msg.ID, err)
		}
	}

	if _, err := q.Receive(ctx); !errors.Is(err, ErrEmpty) {
		t.Errorf("drained Receive() error = %v, want ErrEmpty", err)
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	q := newTestQueue(t, Options{})
	ctx := context.Background()

	if err := q.Enqueue(ctx, "job-1", nil); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, "job-1", nil); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate Enqueue error = %v, want ErrDuplicate", err)
	}

	// Still a duplicate while in flight.
	if _, err := q.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, "job-1", nil); !errors.Is(err, ErrDuplicate) {
		t.Errorf("in-flight Enqueue error = %v, want ErrDuplicate", err)
	}

	// After deletion the ID can be reused.
	if err := q.Delete(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, "job-1", nil); err != nil {
		t.Errorf("post-delete Enqueue error = %v, want nil", err)
	}
}

func TestLeaseExpiryRedelivers(t *testing.T) {
	q := newTestQueue(t, Options{VisibilityTimeout: 30 * time.Millisecond})
	ctx := context.Background()

	if err := q.Enqueue(ctx, "job-1", []byte("payload")); err != nil {
		t.Fatal(err)
	}

	first, err := q.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Receives != 1 {
		t.Errorf("first delivery receives = %d, want 1", first.Receives)
	}

	// Invisible while the lease holds.
	if _, err := q.Receive(ctx); !errors.Is(err, ErrEmpty) {
		t.Errorf("leased Receive() error = %v, want ErrEmpty", err)
	}

	time.Sleep(50 * time.Millisecond)

	second, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("post-expiry Receive() error: %v", err)
	}
	if second.ID != "job-1" || second.Receives != 2 {
		t.Errorf("redelivery = %s/%d, want job-1/2", second.ID, second.Receives)
	}
	if string(second.Body) != "payload" {
		t.Errorf("body = %q, want payload", second.Body)
	}
}

func TestReleaseReturnsMessage(t *testing.T) {
	q := newTestQueue(t, Options{VisibilityTimeout: time.Hour})
	ctx := context.Background()

	if err := q.Enqueue(ctx, "job-1", nil); err != nil {
		t.Fatal(err)
	}
	msg, err := q.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Release(ctx, msg.ID); err != nil {
		t.Fatalf("Release() error: %v", err)
	}

	again, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() after release error: %v", err)
	}
	if again.ID != "job-1" || again.Receives != 2 {
		t.Errorf("after release = %s/%d, want job-1/2", again.ID, again.Receives)
	}
}

func TestDeadLetterAfterMaxReceives(t *testing.T) {
	q := newTestQueue(t, Options{VisibilityTimeout: time.Hour, MaxReceives: 2})
	ctx := context.Background()

	if err := q.Enqueue(ctx, "job-1", nil); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		msg, err := q.Receive(ctx)
		if err != nil {
			t.Fatalf("receive %d error: %v", i+1, err)
		}
		if err := q.Release(ctx, msg.ID); err != nil {
			t.Fatal(err)
		}
	}

	// Third delivery attempt exceeds MaxReceives and dead-letters.
	if _, err := q.Receive(ctx); !errors.Is(err, ErrEmpty) {
		t.Errorf("Receive() after exhaustion error = %v, want ErrEmpty", err)
	}

	dead, err := q.DeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("DeadLetters() error: %v", err)
	}
	if len(dead) != 1 || dead[0].ID != "job-1" {
		t.Errorf("dead letters = %+v, want one entry job-1", dead)
	}

	// A dead-lettered ID cannot be re-enqueued.
	if err := q.Enqueue(ctx, "job-1", nil); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Enqueue of dead ID error = %v, want ErrDuplicate", err)
	}
}

func TestDeleteUnknownMessage(t *testing.T) {
	q := newTestQueue(t, Options{})
	err := q.Delete(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("Delete(unknown) error = %v, want ErrUnknownMessage", err)
	}
}

func TestStats(t *testing.T) {
	q := newTestQueue(t, Options{VisibilityTimeout: time.Hour})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, id, nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := q.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.Ready != 2 || stats.InFlight != 1 || stats.Dead != 0 {
		t.Errorf("stats = %+v, want ready=2 inflight=1 dead=0", stats)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	q, err := Open(dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, "job-1", []byte("survives")); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}

	q2, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer q2.Close()

	msg, err := q2.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() after reopen error: %v", err)
	}
	if msg.ID != "job-1" || string(msg.Body) != "survives" {
		t.Errorf("message = %s/%q, want job-1/survives", msg.ID, msg.Body)
	}
}
