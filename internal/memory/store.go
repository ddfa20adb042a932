// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package memory stores conversations, their messages and attached
// entities, and builds model-context strings from them.
//
// The store is bounded on three axes: number of conversations, messages
// per conversation, and messages in the cross-conversation global profile.
// Every write re-applies those limits, evicting the least recently updated
// data first.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/research-hub/internal/metrics"
	"github.com/pdiddy/research-hub/internal/persist"
	"github.com/pdiddy/research-hub/pkg/types"
)

// Default limits.
const (
	DefaultMaxConversations           = 50
	DefaultMaxMessagesPerConversation = 100
	DefaultMaxGlobalMessages          = 200
	DefaultContextMessages            = 10
	DefaultCrossConversationMessages  = 10
	DefaultEntityExcerptLimit         = 4000
)

var (
	// ErrConversationNotFound is returned for operations naming an unknown conversation.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned when appending a message with no content.
	ErrEmptyMessage = errors.New("message content is empty")

	// ErrEmptyTitle is returned when renaming a conversation to a blank title.
	ErrEmptyTitle = errors.New("conversation title is empty")
)

// state is the persisted shape of the store.
type state struct {
	Conversations        []types.Conversation `json:"conversations"`
	ActiveConversationID string               `json:"activeConversationId"`
	GlobalProfile        types.GlobalProfile  `json:"globalProfile"`
}

// Options configures a Store. Zero limits take the defaults.
type Options struct {
	Limits  types.MemoryConfig
	Backend persist.Backend
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time

	// NewID generates conversation and message IDs. Defaults to uuid.NewString.
	NewID func() string

	// Research, when set, supplies completed entity research for BuildContext.
	Research ResearchReader
}

// ResearchReader returns completed research for entities, one result set
// per source. *research.Store satisfies it.
type ResearchReader interface {
	GetMany(ctx context.Context, ids []string) []types.ResultSet
}

// Store is a bounded conversation memory. Safe for concurrent use.
type Store struct {
	mu sync.Mutex
	st state

	limits  types.MemoryConfig
	snap    *persist.Snapshot[state]
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string

	research ResearchReader
}

// New creates a store and restores any snapshot held by opts.Backend.
func New(ctx context.Context, opts Options) *Store {
	s := &Store{
		limits:  withDefaults(opts.Limits),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		newID:   opts.NewID,

		research: opts.Research,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if opts.Backend != nil {
		s.snap = persist.NewSnapshot[state](opts.Backend, persist.KindConversations, s.logger)
		if stored, ok := s.snap.Load(ctx); ok {
			s.st = stored
			if s.indexLocked(s.st.ActiveConversationID) < 0 {
				s.st.ActiveConversationID = ""
			}
			s.trimLocked()
		}
	}
	s.metrics.SetConversations(len(s.st.Conversations))
	return s
}

func withDefaults(l types.MemoryConfig) types.MemoryConfig {
	if l.MaxConversations <= 0 {
		l.MaxConversations = DefaultMaxConversations
	}
	if l.MaxMessagesPerConversation <= 0 {
		l.MaxMessagesPerConversation = DefaultMaxMessagesPerConversation
	}
	if l.MaxGlobalMessages <= 0 {
		l.MaxGlobalMessages = DefaultMaxGlobalMessages
	}
	if l.ContextMessages <= 0 {
		l.ContextMessages = DefaultContextMessages
	}
	if l.CrossConversationMessages <= 0 {
		l.CrossConversationMessages = DefaultCrossConversationMessages
	}
	if l.EntityExcerptLimit <= 0 {
		l.EntityExcerptLimit = DefaultEntityExcerptLimit
	}
	return l
}

// Create starts a conversation and makes it active. A blank title
// becomes the default title, which the first user message replaces.
func (s *Store) Create(ctx context.Context, title string) types.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cloneConversation(*s.createLocked(title))
	s.commitLocked(ctx)
	return c
}

func (s *Store) createLocked(title string) *types.Conversation {
	title = strings.TrimSpace(title)
	if title == "" {
		title = types.DefaultConversationTitle
	}
	now := s.now()
	s.st.Conversations = append(s.st.Conversations, types.Conversation{
		ID:        s.newID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	})
	c := &s.st.Conversations[len(s.st.Conversations)-1]
	s.st.ActiveConversationID = c.ID
	s.logger.Debug("conversation created", zap.String("conversation", c.ID))
	return c
}

// SetActive makes id the active conversation.
func (s *Store) SetActive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	s.st.ActiveConversationID = id
	s.commitLocked(ctx)
	return nil
}

// Rename sets the title of id.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	s.st.Conversations[i].Title = title
	s.st.Conversations[i].UpdatedAt = s.now()
	s.commitLocked(ctx)
	return nil
}

// Delete removes id. If it was active, the most recently updated remaining
// conversation becomes active.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	s.st.Conversations = slices.Delete(s.st.Conversations, i, i+1)
	if s.st.ActiveConversationID == id {
		s.st.ActiveConversationID = ""
		if recent := s.sortedLocked(); len(recent) > 0 {
			s.st.ActiveConversationID = recent[0].ID
		}
	}
	s.commitLocked(ctx)
	return nil
}

// AppendMessage adds msg to conversation convID, or to the active
// conversation when convID is empty. With no active conversation one is
// created. Missing message IDs and timestamps are filled in. The first user
// message of an untitled conversation sets its title.
func (s *Store) AppendMessage(ctx context.Context, convID string, msg types.Message) (types.Message, error) {
	if strings.TrimSpace(msg.Content) == "" {
		return types.Message{}, ErrEmptyMessage
	}
	if msg.Role == "" {
		msg.Role = types.RoleUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.targetLocked(convID)
	if err != nil {
		return types.Message{}, err
	}

	now := s.now()
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	msg.ConversationID = c.ID

	if msg.Role == types.RoleUser && c.Title == types.DefaultConversationTitle && !hasUserMessage(c.Messages) {
		if title := GenerateTitle(msg.Content); title != "" {
			c.Title = title
		}
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = now

	s.st.GlobalProfile.Messages = append(s.st.GlobalProfile.Messages, msg)
	s.st.GlobalProfile.LastUpdated = now

	s.commitLocked(ctx)
	return msg, nil
}

// AttachEntity records entity in the global profile and links it to
// conversation convID (or the active one, created if needed). Attaching an
// entity with a known ID replaces the stored copy. Returns the conversation ID.
func (s *Store) AttachEntity(ctx context.Context, convID string, entity types.Entity) (string, error) {
	if entity.ID == "" {
		entity.ID = s.newID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.targetLocked(convID)
	if err != nil {
		return "", err
	}

	now := s.now()
	if entity.AttachedAt.IsZero() {
		entity.AttachedAt = now
	}

	profile := &s.st.GlobalProfile
	if i := slices.IndexFunc(profile.Entities, func(e types.Entity) bool { return e.ID == entity.ID }); i >= 0 {
		profile.Entities[i] = entity
	} else {
		profile.Entities = append(profile.Entities, entity)
	}
	profile.LastUpdated = now

	if !slices.Contains(c.EntityIDs, entity.ID) {
		c.EntityIDs = append(c.EntityIDs, entity.ID)
	}
	c.UpdatedAt = now
	id := c.ID

	s.commitLocked(ctx)
	return id, nil
}

// List returns all conversations, most recently updated first.
func (s *Store) List() []types.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := s.sortedLocked()
	out := make([]types.Conversation, len(sorted))
	for i, c := range sorted {
		out[i] = cloneConversation(c)
	}
	return out
}

// Active returns the active conversation, if any.
func (s *Store) Active() (types.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationLocked(s.st.ActiveConversationID)
}

// Conversation returns conversation id.
func (s *Store) Conversation(id string) (types.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationLocked(id)
}

// Profile returns a copy of the global profile.
func (s *Store) Profile() types.GlobalProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.st.GlobalProfile
	p.Entities = slices.Clone(p.Entities)
	p.Messages = slices.Clone(p.Messages)
	return p
}

// ClearAll drops every conversation, the global profile and the snapshot.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = state{}
	s.metrics.SetConversations(0)
	return s.snap.Clear(ctx)
}

func (s *Store) conversationLocked(id string) (types.Conversation, bool) {
	i := s.indexLocked(id)
	if i < 0 {
		return types.Conversation{}, false
	}
	return cloneConversation(s.st.Conversations[i]), true
}

// targetLocked resolves the conversation a write goes to, creating one
// when convID is empty and nothing is active.
func (s *Store) targetLocked(convID string) (*types.Conversation, error) {
	if convID != "" {
		i := s.indexLocked(convID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, convID)
		}
		return &s.st.Conversations[i], nil
	}
	if i := s.indexLocked(s.st.ActiveConversationID); i >= 0 {
		return &s.st.Conversations[i], nil
	}
	return s.createLocked(""), nil
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.st.Conversations, func(c types.Conversation) bool { return c.ID == id })
}

// sortedLocked returns conversations most recently updated first. Ties go
// to the later-created conversation.
func (s *Store) sortedLocked() []types.Conversation {
	out := slices.Clone(s.st.Conversations)
	slices.Reverse(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// trimLocked re-applies every size limit.
func (s *Store) trimLocked() {
	for i := range s.st.Conversations {
		c := &s.st.Conversations[i]
		if n := len(c.Messages) - s.limits.MaxMessagesPerConversation; n > 0 {
			c.Messages = slices.Delete(c.Messages, 0, n)
		}
	}

	for len(s.st.Conversations) > s.limits.MaxConversations {
		oldest := 0
		for i, c := range s.st.Conversations {
			if c.UpdatedAt.Before(s.st.Conversations[oldest].UpdatedAt) {
				oldest = i
			}
		}
		evicted := s.st.Conversations[oldest]
		s.st.Conversations = slices.Delete(s.st.Conversations, oldest, oldest+1)
		if evicted.ID == s.st.ActiveConversationID {
			s.st.ActiveConversationID = ""
		}
		s.logger.Debug("conversation evicted", zap.String("conversation", evicted.ID))
	}

	if n := len(s.st.GlobalProfile.Messages) - s.limits.MaxGlobalMessages; n > 0 {
		s.st.GlobalProfile.Messages = slices.Delete(s.st.GlobalProfile.Messages, 0, n)
	}
}

// commitLocked trims, updates the gauge and persists.
func (s *Store) commitLocked(ctx context.Context) {
	s.trimLocked()
	s.metrics.SetConversations(len(s.st.Conversations))
	if err := s.snap.Save(ctx, s.st); err != nil {
		s.logger.Warn("saving conversation memory", zap.Error(err))
	}
}

func hasUserMessage(msgs []types.Message) bool {
	for _, m := range msgs {
		if m.Role == types.RoleUser {
			return true
		}
	}
	return false
}

func cloneConversation(c types.Conversation) types.Conversation {
	c.Messages = slices.Clone(c.Messages)
	c.EntityIDs = slices.Clone(c.EntityIDs)
	return c
}
