// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package queue is a durable FIFO job queue on Badger.
//
// Messages are enqueued with a deduplication ID (the job ID), received
// under a visibility-timeout lease, and either deleted on success or
// released for redelivery. A message received more than MaxReceives
// times moves to the dead-letter keyspace instead of being redelivered.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

var (
	// ErrEmpty indicates no message is currently ready.
	ErrEmpty = errors.New("queue empty")

	// ErrDuplicate indicates a message with the same ID is already
	// queued or in flight.
	ErrDuplicate = errors.New("duplicate message")

	// ErrUnknownMessage indicates the message ID has no in-flight lease.
	ErrUnknownMessage = errors.New("unknown message")
)

// Key prefixes. Ready keys embed a monotonic sequence so iteration
// order is enqueue order.
const (
	prefixReady = "ready/"
	prefixMsg   = "msg/"
	prefixLease = "lease/"
	prefixDead  = "dead/"
)

// Message is a queued unit of work.
type Message struct {
	ID         string    `json:"id"`
	Body       []byte    `json:"body"`
	Receives   int       `json:"receives"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Options tunes queue behavior.
type Options struct {
	// VisibilityTimeout is the lease length on a received message.
	VisibilityTimeout time.Duration

	// MaxReceives dead-letters a message after this many deliveries.
	MaxReceives int
}

// Stats is a point-in-time queue census.
type Stats struct {
	Ready    int `json:"ready"`
	InFlight int `json:"in_flight"`
	Dead     int `json:"dead"`
}

// Queue is safe for concurrent producers and consumers.
type Queue struct {
	db   *badger.DB
	opts Options

	mu  sync.Mutex
	seq uint64
}

// Open opens or creates the queue at dir. An empty dir opens an
// in-memory queue for tests.
func Open(dir string, opts Options) (*Queue, error) {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	if opts.MaxReceives <= 0 {
		opts.MaxReceives = 3
	}

	var badgerOpts badger.Options
	if dir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(dir)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	q := &Queue{db: db, opts: opts}
	if err := q.restoreSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

// Close flushes and closes the underlying store.
func (q *Queue) Close() error {
	return q.db.Close()
}

// restoreSeq resumes the ready-key sequence after a restart.
func (q *Queue) restoreSeq() error {
	return q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Reverse: true, Prefix: []byte(prefixReady)})
		defer it.Close()
		// Reverse iteration needs a seek past the prefix range.
		it.Seek([]byte(prefixReady + "\xff"))
		if it.ValidForPrefix([]byte(prefixReady)) {
			key := string(it.Item().Key())
			var seq uint64
			if _, err := fmt.Sscanf(strings.TrimPrefix(key, prefixReady), "%020d", &seq); err == nil {
				q.seq = seq
			}
		}
		return nil
	})
}

// Enqueue adds a message unless one with the same ID is already queued,
// in flight, or dead-lettered.
func (q *Queue) Enqueue(ctx context.Context, id string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	msg := Message{ID: id, Body: body, EnqueuedAt: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	return q.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(prefixMsg + id)); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicate, id)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if _, err := txn.Get([]byte(prefixDead + id)); err == nil {
			return fmt.Errorf("%w: %s is dead-lettered", ErrDuplicate, id)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		q.seq++
		if err := txn.Set([]byte(readyKey(q.seq)), []byte(id)); err != nil {
			return err
		}
		return txn.Set([]byte(prefixMsg+id), data)
	})
}

// Receive pops the oldest ready message and leases it for the visibility
// timeout. Expired leases are reclaimed first, so a crashed consumer's
// message becomes available again. Returns ErrEmpty when nothing is
// ready.
func (q *Queue) Receive(ctx context.Context) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.reclaimExpired(); err != nil {
		return Message{}, err
	}

	for {
		msg, found, err := q.popReady()
		if err != nil {
			return Message{}, err
		}
		if !found {
			return Message{}, ErrEmpty
		}
		if msg.Receives > q.opts.MaxReceives {
			if err := q.deadLetter(msg); err != nil {
				return Message{}, err
			}
			continue
		}
		return msg, nil
	}
}

// popReady removes the head ready key, bumps the receive count, and
// writes a lease.
func (q *Queue) popReady() (Message, bool, error) {
	var msg Message
	found := false

	err := q.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefixReady)})
		defer it.Close()
		it.Rewind()
		if !it.ValidForPrefix([]byte(prefixReady)) {
			return nil
		}

		readyK := it.Item().KeyCopy(nil)
		var id string
		if err := it.Item().Value(func(v []byte) error {
			id = string(v)
			return nil
		}); err != nil {
			return err
		}

		item, err := txn.Get([]byte(prefixMsg + id))
		if err != nil {
			// Orphaned ready key; drop it.
			return txn.Delete(readyK)
		}
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &msg)
		}); err != nil {
			return err
		}

		msg.Receives++
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixMsg+id), data); err != nil {
			return err
		}
		if err := txn.Delete(readyK); err != nil {
			return err
		}

		expiry := time.Now().UTC().Add(q.opts.VisibilityTimeout)
		if err := txn.Set([]byte(prefixLease+id), []byte(expiry.Format(time.RFC3339Nano))); err != nil {
			return err
		}
		found = true
		return nil
	})
	return msg, found, err
}

// reclaimExpired moves messages with expired leases back to ready.
func (q *Queue) reclaimExpired() error {
	now := time.Now().UTC()
	var expired []string

	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefixLease)})
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix([]byte(prefixLease)); it.Next() {
			id := strings.TrimPrefix(string(it.Item().Key()), prefixLease)
			var expiry time.Time
			if err := it.Item().Value(func(v []byte) error {
				var perr error
				expiry, perr = time.Parse(time.RFC3339Nano, string(v))
				return perr
			}); err != nil {
				return err
			}
			if now.After(expiry) {
				expired = append(expired, id)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range expired {
		err := q.db.Update(func(txn *badger.Txn) error {
			if err := txn.Delete([]byte(prefixLease + id)); err != nil {
				return err
			}
			q.seq++
			return txn.Set([]byte(readyKey(q.seq)), []byte(id))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Delete acknowledges a received message, removing it permanently.
func (q *Queue) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(prefixLease + id)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
		} else if err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixLease + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixMsg + id))
	})
}

// Release returns a received message to the ready state immediately,
// ahead of its lease expiry.
func (q *Queue) Release(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(prefixLease + id)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
		} else if err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixLease + id)); err != nil {
			return err
		}
		q.seq++
		return txn.Set([]byte(readyKey(q.seq)), []byte(id))
	})
}

// deadLetter moves a message out of rotation. Caller holds q.mu.
func (q *Queue) deadLetter(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(prefixLease + msg.ID)); err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixMsg + msg.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(prefixDead+msg.ID), data)
	})
}

// DeadLetters returns up to limit dead-lettered messages.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var out []Message
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefixDead)})
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix([]byte(prefixDead)) && len(out) < limit; it.Next() {
			var msg Message
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &msg)
			}); err != nil {
				return err
			}
			out = append(out, msg)
		}
		return nil
	})
	return out, err
}

// Stats counts ready, in-flight, and dead messages.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	var stats Stats
	err := q.db.View(func(txn *badger.Txn) error {
		stats.Ready = countPrefix(txn, prefixReady)
		stats.InFlight = countPrefix(txn, prefixLease)
		stats.Dead = countPrefix(txn, prefixDead)
		return nil
	})
	return stats, err
}

func countPrefix(txn *badger.Txn, prefix string) int {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
	defer it.Close()
	n := 0
	for it.Rewind(); it.ValidForPrefix([]byte(prefix)); it.Next() {
		n++
	}
	return n
}

func readyKey(seq uint64) string {
	return fmt.Sprintf("%s%020d", prefixReady, seq)
}
