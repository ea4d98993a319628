package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
)

var (
	ErrUserExists = errors.New("user already exists")
	ErrNotFound   = errors.New("not found")
)

// Store is a Pebble-backed persistence layer for user accounts,
// conversation records and message history.
type Store struct {
	db     *pebble.DB
	logger *slog.Logger

	// userMu serializes the exists-check with the insert in CreateUser;
	// Pebble has no conditional write, and without it two concurrent
	// signups for the same email would both succeed.
	userMu sync.Mutex

	// seq reduces key collisions when messages share a nanosecond timestamp.
	seq uint64
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}
	log := logger.With(slog.String("component", "store"))
	log.Info("store opened", slog.String("path", path))
	return &Store{db: db, logger: log}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	s.logger.Info("store closed")
	return nil
}

// UserRecord is a stored account. The public key is opaque; it is handed
// to other clients verbatim for their own key agreement.
type UserRecord struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	PublicKey    string    `json:"public_key"`
	CreatedAt    time.Time `json:"created_at"`
}

// ConversationRecord groups the direct messages between two users, keyed
// by the unordered pair of their ids.
type ConversationRecord struct {
	Key       string    `json:"conv_id"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageRecord is one stored private message. Ciphertext and IV are
// stored exactly as received.
type MessageRecord struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Ciphertext string    `json:"ciphertext"`
	IV         string    `json:"iv"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConversationKey returns the canonical key for the unordered pair of user
// ids, so both directions of a conversation map to the same record.
func ConversationKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "|" + pair[1]
}

func userKey(email string) []byte {
	return []byte("user:" + email)
}

func convKey(key string) []byte {
	return []byte("conv:" + key)
}

// CreateUser stores a new account; ErrUserExists if the email is taken.
func (s *Store) CreateUser(u UserRecord) error {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	key := userKey(u.Email)
	_, closer, err := s.db.Get(key)
	if err == nil {
		closer.Close()
		return ErrUserExists
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("failed to check for existing user: %w", err)
	}

	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	s.logger.Info("user created", slog.String("userID", u.UserID))
	return nil
}

// GetUserByEmail returns the account for the email, or ErrNotFound.
func (s *Store) GetUserByEmail(email string) (UserRecord, error) {
	data, closer, err := s.db.Get(userKey(email))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return UserRecord{}, ErrNotFound
		}
		return UserRecord{}, fmt.Errorf("failed to read user: %w", err)
	}
	defer closer.Close()

	var u UserRecord
	if err := json.Unmarshal(data, &u); err != nil {
		return UserRecord{}, fmt.Errorf("invalid stored user record: %w", err)
	}
	return u, nil
}

// RecordMessage appends a message to the conversation between sender and
// recipient, creating the conversation record lazily on first contact.
// Conversation keys are deterministic for a pair, so concurrent first
// messages write identical records instead of racing to duplicates.
func (s *Store) RecordMessage(ctx context.Context, senderID, recipientID, ciphertext, iv string) error {
	conv := ConversationKey(senderID, recipientID)
	if err := s.ensureConversation(conv, senderID, recipientID); err != nil {
		return err
	}

	// Key format: conv:<pair>:msg:<unix_nano_padded>-<seq>, sortable by insertion time.
	ts := time.Now().UTC()
	n := atomic.AddUint64(&s.seq, 1)
	key := fmt.Sprintf("conv:%s:msg:%020d-%06d", conv, ts.UnixNano(), n)

	rec := MessageRecord{
		From:       senderID,
		To:         recipientID,
		Ciphertext: ciphertext,
		IV:         iv,
		Timestamp:  ts,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	s.logger.Debug("message recorded", slog.String("conv", conv), slog.String("key", key))
	return nil
}

// ListMessages returns the messages between the two users in insertion
// order. A non-positive limit returns everything.
func (s *Store) ListMessages(a, b string, limit int) ([]MessageRecord, error) {
	prefix := []byte("conv:" + ConversationKey(a, b) + ":msg:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []MessageRecord
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var rec MessageRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			s.logger.Warn("skipping undecodable message record", slog.String("key", string(iter.Key())), slog.Any("error", err))
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ensureConversation(key, a, b string) error {
	k := convKey(key)
	_, closer, err := s.db.Get(k)
	if err == nil {
		closer.Close()
		return nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("failed to check conversation: %w", err)
	}

	members := []string{a, b}
	sort.Strings(members)
	rec := ConversationRecord{Key: key, Members: members, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := s.db.Set(k, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to store conversation: %w", err)
	}
	s.logger.Debug("conversation created", slog.String("conv", key))
	return nil
}
