// internal/testutil/stores.go

// Package testutil holds shared test doubles and fixtures. The in-memory
// stores mirror the Mongo stores' sentinel errors and guard semantics so
// engine and handler tests run without a database.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	codestore "github.com/dalemusser/renewhub/internal/app/store/codes"
	membershipstore "github.com/dalemusser/renewhub/internal/app/store/memberships"
	"github.com/dalemusser/renewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemMemberships is an in-memory membership store.
type MemMemberships struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]models.Membership
}

// NewMemMemberships creates an empty in-memory membership store.
func NewMemMemberships() *MemMemberships {
	return &MemMemberships{byID: make(map[primitive.ObjectID]models.Membership)}
}

// Seed inserts records directly, assigning ids to any zero-id record.
func (s *MemMemberships) Seed(records ...models.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range records {
		if m.ID.IsZero() {
			m.ID = primitive.NewObjectID()
		}
		s.byID[m.ID] = m
	}
}

func (s *MemMemberships) All(_ context.Context) ([]models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Membership, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

func (s *MemMemberships) GetByGroup(_ context.Context, groupID string) (models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byID {
		if m.GroupID == groupID {
			return m, nil
		}
	}
	return models.Membership{}, membershipstore.ErrNotFound
}

func (s *MemMemberships) GetByID(_ context.Context, id primitive.ObjectID) (models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return models.Membership{}, membershipstore.ErrNotFound
	}
	return m, nil
}

func (s *MemMemberships) Insert(_ context.Context, m models.Membership) (models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.GroupID == m.GroupID {
			return models.Membership{}, membershipstore.ErrDuplicateGroup
		}
	}
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.byID[m.ID] = m
	return m, nil
}

func (s *MemMemberships) Save(_ context.Context, m models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[m.ID]; !ok {
		return membershipstore.ErrNotFound
	}
	m.UpdatedAt = time.Now().UTC()
	s.byID[m.ID] = m
	return nil
}

func (s *MemMemberships) MarkExpired(_ context.Context, id primitive.ObjectID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return membershipstore.ErrNotFound
	}
	m.Status = models.MembershipExpired
	m.ExpiredAt = &at
	m.UpdatedAt = time.Now().UTC()
	s.byID[id] = m
	return nil
}

func (s *MemMemberships) SetLastReminder(_ context.Context, id primitive.ObjectID, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return membershipstore.ErrNotFound
	}
	m.LastReminderOn = day
	m.UpdatedAt = time.Now().UTC()
	s.byID[id] = m
	return nil
}

func (s *MemMemberships) Delete(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.byID {
		if m.GroupID == groupID {
			delete(s.byID, id)
			return nil
		}
	}
	return membershipstore.ErrNotFound
}

func (s *MemMemberships) DeleteByID(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return membershipstore.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

// MemCodes is an in-memory code store. Consume applies the same guard as
// the Mongo store's conditional update, under the store mutex, so
// concurrency tests against it are meaningful.
type MemCodes struct {
	mu     sync.Mutex
	byCode map[string]models.RenewalCode
}

// NewMemCodes creates an empty in-memory code store.
func NewMemCodes() *MemCodes {
	return &MemCodes{byCode: make(map[string]models.RenewalCode)}
}

// Seed inserts codes directly.
func (s *MemCodes) Seed(cs ...models.RenewalCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cs {
		s.byCode[c.Code] = c
	}
}

func (s *MemCodes) Insert(_ context.Context, c models.RenewalCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[c.Code]; ok {
		return codestore.ErrDuplicateCode
	}
	s.byCode[c.Code] = c
	return nil
}

func (s *MemCodes) Get(_ context.Context, code string) (models.RenewalCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byCode[code]
	if !ok {
		return models.RenewalCode{}, codestore.ErrNotFound
	}
	return c, nil
}

func (s *MemCodes) Live(_ context.Context, now time.Time) ([]models.RenewalCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RenewalCode
	for _, c := range s.byCode {
		if c.Exhausted() || c.Expired(now) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *MemCodes) Consume(_ context.Context, code string, now time.Time) (models.RenewalCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byCode[code]
	if !ok {
		return models.RenewalCode{}, codestore.ErrNotFound
	}
	if c.Exhausted() {
		return models.RenewalCode{}, codestore.ErrExhausted
	}
	if c.Expired(now) {
		return models.RenewalCode{}, codestore.ErrExpired
	}
	c.UseCount++
	s.byCode[code] = c
	return c, nil
}

func (s *MemCodes) Unconsume(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byCode[code]
	if !ok || c.UseCount == 0 {
		return codestore.ErrNotFound
	}
	c.UseCount--
	s.byCode[code] = c
	return nil
}

func (s *MemCodes) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[code]; !ok {
		return codestore.ErrNotFound
	}
	delete(s.byCode, code)
	return nil
}

// MemSettings serves a fixed typed settings value plus the two opaque
// console documents.
type MemSettings struct {
	mu          sync.Mutex
	cfg         models.RenewalSettings
	config      map[string]any
	permissions map[string]any
}

// NewMemSettings wraps the given settings; zero-value callers get the
// defaults.
func NewMemSettings(cfg models.RenewalSettings) *MemSettings {
	return &MemSettings{cfg: cfg}
}

func (s *MemSettings) Renewal(_ context.Context) (models.RenewalSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, nil
}

// Set replaces the served settings mid-test.
func (s *MemSettings) Set(cfg models.RenewalSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *MemSettings) GetConfig(context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config, nil
}

func (s *MemSettings) PutConfig(_ context.Context, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = data
	return nil
}

func (s *MemSettings) GetPermissions(context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissions, nil
}

func (s *MemSettings) PutPermissions(_ context.Context, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions = data
	return nil
}

// BotCall records one notify or leave call against the fake bot.
type BotCall struct {
	Action  string
	GroupID string
	Bot     string
	Content string
}

// FakeBot implements the Notifier and GroupLeaver interfaces and records
// every call. Set Err to make all calls fail.
type FakeBot struct {
	mu    sync.Mutex
	Calls []BotCall
	Err   error
}

func (b *FakeBot) NotifyGroup(_ context.Context, groupID, preferredBot, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.Calls = append(b.Calls, BotCall{Action: "notify", GroupID: groupID, Bot: preferredBot, Content: content})
	return nil
}

func (b *FakeBot) LeaveGroup(_ context.Context, groupID, preferredBot string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.Calls = append(b.Calls, BotCall{Action: "leave", GroupID: groupID, Bot: preferredBot})
	return nil
}

// CallsFor returns the recorded calls for one group.
func (b *FakeBot) CallsFor(groupID string) []BotCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []BotCall
	for _, c := range b.Calls {
		if c.GroupID == groupID {
			out = append(out, c)
		}
	}
	return out
}
