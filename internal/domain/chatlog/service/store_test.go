package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory Store used by the service tests
type memStore struct {
	convs map[int64]*entity.Conversation
	msgs  []*entity.Message
	parts map[string]*entity.Participant

	calls map[string]int
	fails map[string]failure
	txs   int
}

type failure struct {
	nth int
	err error
}

func newMemStore() *memStore {
	return &memStore{
		convs: make(map[int64]*entity.Conversation),
		parts: make(map[string]*entity.Participant),
		calls: make(map[string]int),
		fails: make(map[string]failure),
	}
}

// failOn makes the nth call (1-based) of op return err
func (s *memStore) failOn(op string, nth int, err error) {
	s.fails[op] = failure{nth: nth, err: err}
}

func (s *memStore) hit(op string) error {
	s.calls[op]++
	if f, ok := s.fails[op]; ok && s.calls[op] == f.nth {
		return f.err
	}
	return nil
}

func (s *memStore) Conversations() ConversationRepository { return memConversations{s} }
func (s *memStore) Messages() MessageRepository           { return memMessages{s} }
func (s *memStore) Participants() ParticipantRepository   { return memParticipants{s} }

func (s *memStore) WithTx(_ context.Context, fn func(tx Store) error) error {
	s.txs++
	convs, msgs, parts := s.snapshot()
	if err := fn(s); err != nil {
		s.convs, s.msgs, s.parts = convs, msgs, parts
		return err
	}
	return nil
}

func (s *memStore) snapshot() (map[int64]*entity.Conversation, []*entity.Message, map[string]*entity.Participant) {
	convs := make(map[int64]*entity.Conversation, len(s.convs))
	for id, c := range s.convs {
		convs[id] = cloneConversation(c)
	}
	msgs := make([]*entity.Message, len(s.msgs))
	for i, m := range s.msgs {
		cp := *m
		msgs[i] = &cp
	}
	parts := make(map[string]*entity.Participant, len(s.parts))
	for id, p := range s.parts {
		cp := *p
		parts[id] = &cp
	}
	return convs, msgs, parts
}

func cloneConversation(c *entity.Conversation) *entity.Conversation {
	cp := *c
	if c.MergedInto != nil {
		target := *c.MergedInto
		cp.MergedInto = &target
	}
	return &cp
}

// seedConversation stores a consistent conversation with one message per time
func (s *memStore) seedConversation(t *testing.T, id int64, sender string, times ...int64) {
	t.Helper()
	if len(times) == 0 {
		t.Fatalf("conversation %d needs at least one message", id)
	}
	conv := entity.NewConversation(id, time.Unix(times[0], 0).UTC())
	for _, ts := range times[1:] {
		conv.Extend(time.Unix(ts, 0).UTC())
	}
	s.convs[id] = conv
	for _, ts := range times {
		s.addMessage(id, sender, ts)
	}
}

func (s *memStore) addMessage(conversationID int64, sender string, ts int64) *entity.Message {
	msg := &entity.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		FromIdentity:   sender,
		FromOrigin:     "home",
		FromNick:       sender,
		SentAt:         time.Unix(ts, 0).UTC(),
		Body:           fmt.Sprintf("message at %d", ts),
	}
	s.msgs = append(s.msgs, msg)
	return msg
}

func (s *memStore) messagesOf(conversationID int64) []*entity.Message {
	var out []*entity.Message
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out
}

type memConversations struct{ s *memStore }

func (r memConversations) Create(_ context.Context, conv *entity.Conversation) error {
	if err := r.s.hit("conversations.create"); err != nil {
		return err
	}
	if _, ok := r.s.convs[conv.ID]; ok {
		return fmt.Errorf("duplicate conversation %d", conv.ID)
	}
	r.s.convs[conv.ID] = cloneConversation(conv)
	return nil
}

func (r memConversations) Update(_ context.Context, conv *entity.Conversation) error {
	if err := r.s.hit("conversations.update"); err != nil {
		return err
	}
	if _, ok := r.s.convs[conv.ID]; !ok {
		return fmt.Errorf("conversation %d does not exist", conv.ID)
	}
	r.s.convs[conv.ID] = cloneConversation(conv)
	return nil
}

func (r memConversations) GetByID(_ context.Context, id int64) (*entity.Conversation, error) {
	if err := r.s.hit("conversations.get"); err != nil {
		return nil, err
	}
	c, ok := r.s.convs[id]
	if !ok {
		return nil, nil
	}
	return cloneConversation(c), nil
}

func (r memConversations) LatestID(_ context.Context) (int64, error) {
	var id int64
	for cid := range r.s.convs {
		id = max(id, cid)
	}
	return id, nil
}

func (r memConversations) Tallies(_ context.Context) ([]entity.ConversationTally, error) {
	if err := r.s.hit("conversations.tallies"); err != nil {
		return nil, err
	}
	var out []entity.ConversationTally
	for _, c := range r.s.convs {
		if c.IsMerged() {
			continue
		}
		t := entity.ConversationTally{Conversation: *cloneConversation(c)}
		for _, m := range r.s.messagesOf(c.ID) {
			t.ActualCount++
			if m.SentAt.After(t.LastSentAt) {
				t.LastSentAt = m.SentAt
			}
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memConversations) nonEmpty() []entity.Conversation {
	var out []entity.Conversation
	for _, c := range r.s.convs {
		if !c.IsMerged() && c.MessageCount > 0 {
			out = append(out, *cloneConversation(c))
		}
	}
	return out
}

func (r memConversations) List(_ context.Context, filter entity.ConversationFilter) ([]entity.Conversation, error) {
	convs := r.nonEmpty()
	less := func(a, b entity.Conversation) bool {
		switch filter.Sort {
		case entity.SortByID:
			return a.ID < b.ID
		case entity.SortByMessageCount:
			return a.MessageCount < b.MessageCount
		case entity.SortByTimeStart:
			return a.TimeStart.Before(b.TimeStart)
		default:
			return a.TimeEnd.Before(b.TimeEnd)
		}
	}
	sort.SliceStable(convs, func(i, j int) bool {
		if filter.Asc {
			return less(convs[i], convs[j])
		}
		return less(convs[j], convs[i])
	})
	if filter.Offset >= len(convs) {
		return nil, nil
	}
	convs = convs[filter.Offset:]
	if filter.Limit > 0 && len(convs) > filter.Limit {
		convs = convs[:filter.Limit]
	}
	return convs, nil
}

func (r memConversations) CountNonEmpty(_ context.Context) (int64, error) {
	return int64(len(r.nonEmpty())), nil
}

func (r memConversations) Previous(_ context.Context, conv *entity.Conversation) (*entity.Conversation, error) {
	var best *entity.Conversation
	for _, c := range r.nonEmpty() {
		if c.ID != conv.ID && c.TimeEnd.Before(conv.TimeEnd) && (best == nil || c.TimeEnd.After(best.TimeEnd)) {
			cp := c
			best = &cp
		}
	}
	return best, nil
}

func (r memConversations) Next(_ context.Context, conv *entity.Conversation) (*entity.Conversation, error) {
	var best *entity.Conversation
	for _, c := range r.nonEmpty() {
		if c.ID != conv.ID && c.TimeEnd.After(conv.TimeEnd) && (best == nil || c.TimeEnd.Before(best.TimeEnd)) {
			cp := c
			best = &cp
		}
	}
	return best, nil
}

type memMessages struct{ s *memStore }

func (r memMessages) Create(_ context.Context, msg *entity.Message) error {
	if err := r.s.hit("messages.create"); err != nil {
		return err
	}
	if _, ok := r.s.convs[msg.ConversationID]; !ok {
		return fmt.Errorf("conversation %d does not exist", msg.ConversationID)
	}
	cp := *msg
	r.s.msgs = append(r.s.msgs, &cp)
	return nil
}

func (r memMessages) Latest(_ context.Context) (*entity.Message, error) {
	var latest *entity.Message
	for _, m := range r.s.msgs {
		if latest == nil || !m.SentAt.Before(latest.SentAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r memMessages) Reassign(_ context.Context, from, to int64) (int64, error) {
	if err := r.s.hit("messages.reassign"); err != nil {
		return 0, err
	}
	var n int64
	for _, m := range r.s.msgs {
		if m.ConversationID == from {
			m.ConversationID = to
			n++
		}
	}
	return n, nil
}

func (r memMessages) CountByConversation(_ context.Context, id int64) (int, error) {
	return len(r.s.messagesOf(id)), nil
}

func (r memMessages) LatestSentAt(_ context.Context, id int64) (time.Time, error) {
	var last time.Time
	for _, m := range r.s.messagesOf(id) {
		if m.SentAt.After(last) {
			last = m.SentAt
		}
	}
	return last, nil
}

func (r memMessages) ListByConversation(_ context.Context, id int64) ([]entity.MessageView, error) {
	var out []entity.MessageView
	for _, m := range r.s.messagesOf(id) {
		view := entity.MessageView{Message: *m, Nickname: m.FromNick}
		if p, ok := r.s.parts[m.FromIdentity]; ok {
			view.Nickname = p.Nickname
		}
		out = append(out, view)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

type memParticipants struct{ s *memStore }

func (r memParticipants) Get(_ context.Context, identity string) (*entity.Participant, error) {
	if err := r.s.hit("participants.get"); err != nil {
		return nil, err
	}
	p, ok := r.s.parts[identity]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r memParticipants) Create(_ context.Context, p *entity.Participant) error {
	if err := r.s.hit("participants.create"); err != nil {
		return err
	}
	if _, ok := r.s.parts[p.Identity]; ok {
		return fmt.Errorf("duplicate participant %s", p.Identity)
	}
	cp := *p
	r.s.parts[p.Identity] = &cp
	return nil
}

func (r memParticipants) List(_ context.Context, limit, offset int) ([]entity.Participant, error) {
	var out []entity.Participant
	for _, p := range r.s.parts {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memParticipants) Count(_ context.Context) (int64, error) {
	return int64(len(r.s.parts)), nil
}

func (r memParticipants) NicknamesByConversations(_ context.Context, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string)
	for _, id := range ids {
		seen := make(map[string]bool)
		for _, m := range r.s.messagesOf(id) {
			nickname := m.FromNick
			if p, ok := r.s.parts[m.FromIdentity]; ok {
				nickname = p.Nickname
			}
			if seen[nickname] {
				continue
			}
			seen[nickname] = true
			out[id] = append(out[id], nickname)
		}
		sort.Strings(out[id])
	}
	return out, nil
}

// sliceSource serves records from memory the way the log table would
type sliceSource struct {
	records []entity.SourceRecord
	err     error // yielded after the records when set
	afters  []time.Time
}

func (s *sliceSource) Records(_ context.Context, after time.Time) iter.Seq2[entity.SourceRecord, error] {
	s.afters = append(s.afters, after)
	return func(yield func(entity.SourceRecord, error) bool) {
		for _, rec := range s.records {
			if !after.IsZero() && rec.LogTime <= after.Unix() {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if s.err != nil {
			yield(entity.SourceRecord{}, s.err)
		}
	}
}

func record(sender string, ts int64, body string) entity.SourceRecord {
	return entity.SourceRecord{Sender: sender, Nickname: sender, LogTime: ts, Body: body}
}

// memSenders is an in-memory KnownSenders
type memSenders struct {
	known map[string]bool
	err   error
}

func (m *memSenders) Contains(_ context.Context, identity string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.known[identity], nil
}

func (m *memSenders) Add(_ context.Context, identity string) error {
	if m.err != nil {
		return m.err
	}
	m.known[identity] = true
	return nil
}
