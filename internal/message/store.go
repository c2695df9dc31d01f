package message

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chirpchat/chirp/internal/metrics"
	"github.com/chirpchat/chirp/internal/pipeline"
)

// Membership answers whether a user belongs to a group. Group membership
// CRUD lives in an external collaborator; the store only consults it for
// edit/delete/pin authorization.
type Membership interface {
	IsMember(groupID, userID string) bool
}

// ReactionSource supplies aggregate reaction metadata attached to history
// responses. Computation is an external collaborator.
type ReactionSource interface {
	Aggregates(messageID string) map[string]int
}

// StoreConfig wires the store to its collaborators.
type StoreConfig struct {
	Path       string
	Cipher     *pipeline.Cipher
	Classifier pipeline.Classifier
	Media      pipeline.MediaStore
	Members    Membership
	Reactions  ReactionSource // optional
}

// Store is the single source of truth for message entities and their state
// transitions. Rows live in pebble under "msg:<id>"; an ordered index under
// "conv:<key>:<padded createdAt>-<seq>:<id>" drives history scans. Content
// is held obscured at rest; every value leaving the store is revealed.
type Store struct {
	db         *pebble.DB
	cipher     *pipeline.Cipher
	classifier pipeline.Classifier
	media      pipeline.MediaStore
	members    Membership
	reactions  ReactionSource

	// seq breaks key collisions when two messages share a millisecond.
	seq uint64

	// locks serializes read-modify-write per message id so concurrent
	// edit/pin operations on the same row cannot lose an update.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open opens (or creates) the store at the configured path.
func Open(cfg StoreConfig) (*Store, error) {
	if cfg.Cipher == nil || cfg.Classifier == nil || cfg.Members == nil {
		return nil, fmt.Errorf("store requires cipher, classifier and membership")
	}
	db, err := pebble.Open(cfg.Path, &pebble.Options{})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Open",
			"path":     cfg.Path,
			"error":    err,
		}).Error("Failed to open message store")
		return nil, fmt.Errorf("open message store: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"path":     cfg.Path,
	}).Info("Message store opened")
	return &Store{
		db:         db,
		cipher:     cfg.Cipher,
		classifier: cfg.Classifier,
		media:      cfg.Media,
		members:    cfg.Members,
		reactions:  cfg.Reactions,
		locks:      map[string]*sync.Mutex{},
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) lock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func rowKey(id string) []byte {
	return []byte("msg:" + id)
}

func (s *Store) indexKey(m *Message) []byte {
	seq := atomic.AddUint64(&s.seq, 1)
	return []byte(fmt.Sprintf("conv:%s:%020d-%06d:%s", m.Conversation().Key(), m.CreatedAt, seq, m.ID))
}

// CreateInput carries everything a send operation needs. Exactly one of
// ReceiverID and GroupID must be set; the store does not validate group
// membership on create (delegated to the caller).
type CreateInput struct {
	SenderID   string
	ReceiverID string
	GroupID    string
	Text       string
	MediaName  string
	MediaData  []byte
	ReplyTo    string
}

// Create runs the content pipeline, commits a new message, and returns its
// revealed wire representation. Classification failure degrades to a
// neutral verdict; media store failure degrades to an inline reference.
// Neither failure rejects the send.
func (s *Store) Create(ctx context.Context, in CreateInput) (Message, error) {
	if in.SenderID == "" {
		return Message{}, fmt.Errorf("%w: missing sender", ErrValidation)
	}
	if (in.ReceiverID == "") == (in.GroupID == "") {
		return Message{}, fmt.Errorf("%w: exactly one of receiver and group must be set", ErrValidation)
	}
	if in.Text == "" && len(in.MediaData) == 0 {
		return Message{}, fmt.Errorf("%w: message needs text or media", ErrValidation)
	}

	msg := Message{
		ID:         uuid.NewString(),
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		GroupID:    in.GroupID,
		Text:       in.Text,
		ReplyTo:    in.ReplyTo,
		CreatedAt:  time.Now().UnixMilli(),
	}

	if len(in.MediaData) > 0 {
		msg.Media = s.placeMedia(in.MediaName, in.MediaData)
	}

	verdict, err := s.classifier.Classify(ctx, in.Text)
	if err != nil {
		metrics.ClassificationFallbacks.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "Create",
			"sender":   in.SenderID,
			"error":    err,
		}).Warn("Classification unavailable, storing neutral verdict")
		verdict = pipeline.NeutralVerdict()
	}
	msg.SetVerdict(verdict)

	row := msg
	if msg.Text != "" {
		token, err := s.cipher.Obscure(msg.Conversation().Key(), msg.Text)
		if err != nil {
			return Message{}, fmt.Errorf("obscure content: %w", err)
		}
		row.Text = token
	}

	batch := s.db.NewBatch()
	data, err := json.Marshal(&row)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message: %w", err)
	}
	if err := batch.Set(rowKey(msg.ID), data, nil); err != nil {
		return Message{}, fmt.Errorf("stage message row: %w", err)
	}
	if err := batch.Set(s.indexKey(&msg), nil, nil); err != nil {
		return Message{}, fmt.Errorf("stage history index: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Create",
			"id":       msg.ID,
			"error":    err,
		}).Error("Failed to commit message")
		return Message{}, fmt.Errorf("commit message: %w", err)
	}

	metrics.MessagesCreated.Inc()
	logrus.WithFields(logrus.Fields{
		"function":     "Create",
		"id":           msg.ID,
		"conversation": msg.Conversation().Key(),
	}).Info("Message created")
	return msg, nil
}

// placeMedia stores media and falls back to inlining when the media store
// is missing or fails. The fallback is explicit: logged and counted.
func (s *Store) placeMedia(name string, data []byte) string {
	if s.media == nil {
		metrics.MediaInlineFallbacks.Inc()
		return pipeline.InlineRef(data)
	}
	ref, err := s.media.Put(name, data)
	if err != nil {
		metrics.MediaInlineFallbacks.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "placeMedia",
			"name":     name,
			"error":    err,
		}).Warn("Media store failed, inlining payload")
		return pipeline.InlineRef(data)
	}
	return ref
}

// Edit replaces a message's content and marks it edited. Classification is
// not recomputed. Any conversation participant may edit.
func (s *Store) Edit(ctx context.Context, id, actor, newText string) (Message, error) {
	if newText == "" {
		return Message{}, fmt.Errorf("%w: empty replacement text", ErrValidation)
	}
	return s.mutate(ctx, id, actor, "Edit", func(row *Message) error {
		token, err := s.cipher.Obscure(row.Conversation().Key(), newText)
		if err != nil {
			return fmt.Errorf("obscure content: %w", err)
		}
		row.Text = token
		row.Edited = true
		metrics.MessagesEdited.Inc()
		return nil
	})
}

// SoftDelete tombstones a message: content token and media reference are
// cleared, classification and sender/reply metadata stay for audit.
func (s *Store) SoftDelete(ctx context.Context, id, actor string) (Message, error) {
	return s.mutate(ctx, id, actor, "SoftDelete", func(row *Message) error {
		row.Text = ""
		row.Media = ""
		row.Deleted = true
		metrics.MessagesDeleted.Inc()
		return nil
	})
}

// TogglePin flips the pinned flag.
func (s *Store) TogglePin(ctx context.Context, id, actor string) (Message, error) {
	return s.mutate(ctx, id, actor, "TogglePin", func(row *Message) error {
		row.Pinned = !row.Pinned
		metrics.PinToggles.Inc()
		return nil
	})
}

// mutate is the shared read-modify-write path for edit/delete/pin. It holds
// the per-id lock for the full cycle and authorizes the actor against the
// message's conversation.
func (s *Store) mutate(ctx context.Context, id, actor, op string, apply func(*Message) error) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	row, err := s.load(id)
	if err != nil {
		return Message{}, err
	}
	if err := s.authorize(&row, actor); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": op,
			"id":       id,
			"actor":    actor,
		}).Warn("Actor not authorized for mutation")
		return Message{}, err
	}
	if err := apply(&row); err != nil {
		return Message{}, err
	}

	data, err := json.Marshal(&row)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message: %w", err)
	}
	if err := s.db.Set(rowKey(id), data, pebble.Sync); err != nil {
		return Message{}, fmt.Errorf("commit message: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": op,
		"id":       id,
		"actor":    actor,
	}).Info("Message mutated")
	return s.reveal(row)
}

// load reads the authoritative row, content still obscured.
func (s *Store) load(id string) (Message, error) {
	data, closer, err := s.db.Get(rowKey(id))
	if err == pebble.ErrNotFound {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Message{}, fmt.Errorf("read message: %w", err)
	}
	defer closer.Close()
	var row Message
	if err := json.Unmarshal(data, &row); err != nil {
		return Message{}, fmt.Errorf("decode message row: %w", err)
	}
	return row, nil
}

// authorize implements the symmetric participant rule: the sender, the
// direct peer, or any member of the message's group may mutate.
func (s *Store) authorize(m *Message, actor string) error {
	if actor == m.SenderID {
		return nil
	}
	if m.GroupID != "" {
		if s.members.IsMember(m.GroupID, actor) {
			return nil
		}
		return fmt.Errorf("%w: %s is not a member of group %s", ErrForbidden, actor, m.GroupID)
	}
	if actor == m.ReceiverID {
		return nil
	}
	return fmt.Errorf("%w: %s is not a participant", ErrForbidden, actor)
}

// reveal converts a stored row into its wire representation.
func (s *Store) reveal(row Message) (Message, error) {
	if row.Text == "" {
		return row, nil
	}
	text, err := s.cipher.Reveal(row.Conversation().Key(), row.Text)
	if err != nil {
		return Message{}, fmt.Errorf("reveal content for %s: %w", row.ID, err)
	}
	row.Text = text
	return row, nil
}

// Get returns one revealed message by id.
func (s *Store) Get(ctx context.Context, id string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	row, err := s.load(id)
	if err != nil {
		return Message{}, err
	}
	return s.reveal(row)
}

// History returns all messages of a conversation in creation-time ascending
// order, revealed, with reaction aggregates attached when a source is wired.
func (s *Store) History(ctx context.Context, conv Conversation) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte("conv:" + conv.Key() + ":")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("open history iterator: %w", err)
	}
	defer iter.Close()

	var out []Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		key := iter.Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		// id is the suffix after the timestamp segment
		id := string(key[bytes.LastIndexByte(key, ':')+1:])
		row, err := s.load(id)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "History",
				"id":       id,
				"error":    err,
			}).Warn("History index points at missing row, skipping")
			continue
		}
		msg, err := s.reveal(row)
		if err != nil {
			return nil, err
		}
		if s.reactions != nil {
			msg.Reactions = s.reactions.Aggregates(msg.ID)
		}
		out = append(out, msg)
	}
	return out, nil
}
