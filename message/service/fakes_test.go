package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/AdventureDe/LinkIM/message/repo"
	"github.com/AdventureDe/LinkIM/message/repo/model"
)

var errInjected = errors.New("injected storage failure")

type pair [2]int64

// fakeMessageRepo 内存版 MessageRepo，Transaction 出错时整体回滚
type fakeMessageRepo struct {
	mu            sync.Mutex
	txMu          sync.Mutex
	nextID        int64
	messages      []*model.PrivateMessage
	firstContacts map[pair]*model.FirstContact
	conversations map[pair]*model.Conversation
	failOn        map[string]bool
	onCall        func(method string)
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		firstContacts: make(map[pair]*model.FirstContact),
		conversations: make(map[pair]*model.Conversation),
		failOn:        make(map[string]bool),
	}
}

func (f *fakeMessageRepo) fail(method string) error {
	if f.onCall != nil {
		f.onCall(method)
	}
	if f.failOn[method] {
		return errInjected
	}
	return nil
}

func (f *fakeMessageRepo) Transaction(ctx context.Context, fn func(tx repo.MessageRepo) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	messages := append([]*model.PrivateMessage(nil), f.messages...)
	fcs := make(map[pair]*model.FirstContact, len(f.firstContacts))
	for k, v := range f.firstContacts {
		c := *v
		fcs[k] = &c
	}
	convs := make(map[pair]*model.Conversation, len(f.conversations))
	for k, v := range f.conversations {
		c := *v
		convs[k] = &c
	}
	nextID := f.nextID
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.messages, f.firstContacts, f.conversations, f.nextID = messages, fcs, convs, nextID
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeMessageRepo) SaveMessage(ctx context.Context, msg *model.PrivateMessage) error {
	if err := f.fail("SaveMessage"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg.ID = f.nextID
	c := *msg
	f.messages = append(f.messages, &c)
	return nil
}

func (f *fakeMessageRepo) ListMessages(ctx context.Context, viewerID, otherID, beforeID int64, pageSize int) (*repo.ConversationMessages, error) {
	if err := f.fail("ListMessages"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.PrivateMessage
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		if beforeID > 0 && m.ID >= beforeID {
			continue
		}
		mine := m.SenderID == viewerID && m.ReceiverID == otherID
		theirs := m.SenderID == otherID && m.ReceiverID == viewerID && m.Status == model.StatusDelivered
		if mine || theirs {
			c := *m
			out = append(out, &c)
		}
	}
	hasMore := len(out) > pageSize
	if hasMore {
		out = out[:pageSize]
	}
	var conv *model.Conversation
	low, high := model.PairKey(viewerID, otherID)
	if c, ok := f.conversations[pair{low, high}]; ok {
		cc := *c
		conv = &cc
	}
	return &repo.ConversationMessages{Conversation: conv, Messages: out, HasMore: hasMore}, nil
}

func (f *fakeMessageRepo) MarkAsRead(ctx context.Context, readerID, otherID int64, at time.Time) (int64, error) {
	if err := f.fail("MarkAsRead"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.ReceiverID == readerID && m.SenderID == otherID && m.Status == model.StatusDelivered && m.ReadAt == nil {
			t := at
			m.ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageRepo) CountUnread(ctx context.Context, receiverID int64) (int64, error) {
	if err := f.fail("CountUnread"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.ReceiverID == receiverID && m.Status == model.StatusDelivered && m.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageRepo) FindFirstContact(ctx context.Context, senderID, receiverID int64) (*model.FirstContact, error) {
	if err := f.fail("FindFirstContact"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fc, ok := f.firstContacts[pair{senderID, receiverID}]
	if !ok {
		return nil, nil
	}
	c := *fc
	return &c, nil
}

func (f *fakeMessageRepo) CreateFirstContact(ctx context.Context, fc *model.FirstContact) error {
	if err := f.fail("CreateFirstContact"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := pair{fc.SenderID, fc.ReceiverID}
	if _, ok := f.firstContacts[k]; ok {
		return errors.New("duplicate first contact")
	}
	fc.ID = int64(len(f.firstContacts) + 1)
	c := *fc
	f.firstContacts[k] = &c
	return nil
}

func (f *fakeMessageRepo) MarkReplied(ctx context.Context, senderID, receiverID int64) (bool, error) {
	if err := f.fail("MarkReplied"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fc, ok := f.firstContacts[pair{senderID, receiverID}]
	if !ok || fc.HasReplied {
		return false, nil
	}
	fc.HasReplied = true
	return true, nil
}

func (f *fakeMessageRepo) ConversationExists(ctx context.Context, userA, userB int64) (bool, error) {
	if err := f.fail("ConversationExists"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	low, high := model.PairKey(userA, userB)
	_, ok := f.conversations[pair{low, high}]
	return ok, nil
}

func (f *fakeMessageRepo) FindConversation(ctx context.Context, userA, userB int64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	low, high := model.PairKey(userA, userB)
	c, ok := f.conversations[pair{low, high}]
	if !ok {
		return nil, nil
	}
	cc := *c
	return &cc, nil
}

func (f *fakeMessageRepo) UpsertConversation(ctx context.Context, userA, userB, createdBy int64, at time.Time) error {
	if err := f.fail("UpsertConversation"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	low, high := model.PairKey(userA, userB)
	k := pair{low, high}
	if c, ok := f.conversations[k]; ok {
		c.LastMessageAt = at
		return nil
	}
	f.conversations[k] = &model.Conversation{
		ID:            int64(len(f.conversations) + 1),
		UserLowID:     low,
		UserHighID:    high,
		CreatedBy:     createdBy,
		LastMessageAt: at,
	}
	return nil
}

// Transaction 已经串行化，这里只需要按需创建
func (f *fakeMessageRepo) LockConversation(ctx context.Context, userA, userB, createdBy int64, at time.Time) (bool, error) {
	if err := f.fail("LockConversation"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	low, high := model.PairKey(userA, userB)
	k := pair{low, high}
	if _, ok := f.conversations[k]; ok {
		return false, nil
	}
	f.conversations[k] = &model.Conversation{
		ID:            int64(len(f.conversations) + 1),
		UserLowID:     low,
		UserHighID:    high,
		CreatedBy:     createdBy,
		LastMessageAt: at,
	}
	return true, nil
}

func (f *fakeMessageRepo) CountUnreadFrom(ctx context.Context, receiverID, senderID int64) (int64, error) {
	if err := f.fail("CountUnreadFrom"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.ReceiverID == receiverID && m.SenderID == senderID && m.Status == model.StatusDelivered && m.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageRepo) ListConversations(ctx context.Context, userID int64, page, pageSize int) ([]*repo.ConversationSummary, error) {
	if err := f.fail("ListConversations"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var convs []*model.Conversation
	for _, c := range f.conversations {
		if c.UserLowID == userID || c.UserHighID == userID {
			convs = append(convs, c)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].LastMessageAt.Equal(convs[j].LastMessageAt) {
			return convs[i].LastMessageAt.After(convs[j].LastMessageAt)
		}
		return convs[i].ID > convs[j].ID
	})
	out := []*repo.ConversationSummary{}
	for i := (page - 1) * pageSize; i < len(convs) && len(out) < pageSize; i++ {
		c := convs[i]
		peer := c.UserLowID
		if peer == userID {
			peer = c.UserHighID
		}
		var unread int64
		for _, m := range f.messages {
			if m.ReceiverID == userID && m.SenderID == peer && m.Status == model.StatusDelivered && m.ReadAt == nil {
				unread++
			}
		}
		out = append(out, &repo.ConversationSummary{
			ConversationID: c.ID,
			PeerID:         peer,
			CreatedBy:      c.CreatedBy,
			LastMessageAt:  c.LastMessageAt,
			UnreadCount:    unread,
		})
	}
	return out, nil
}

// helpers for assertions
func (f *fakeMessageRepo) message(id int64) *model.PrivateMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			c := *m
			return &c
		}
	}
	return nil
}

func (f *fakeMessageRepo) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeMessageRepo) conversationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conversations)
}

// fakeUsers 同时实现 AccountDirectory / RelationshipOracle / BlockRegistry / SettingsStore
type fakeUsers struct {
	mu       sync.Mutex
	users    map[int64]*model.User
	follows  map[pair]bool
	blocks   map[pair]bool
	settings map[int64]model.MessageSettings
	failOn   map[string]bool
}

func newFakeUsers(ids ...int64) *fakeUsers {
	u := &fakeUsers{
		users:    make(map[int64]*model.User),
		follows:  make(map[pair]bool),
		blocks:   make(map[pair]bool),
		settings: make(map[int64]model.MessageSettings),
		failOn:   make(map[string]bool),
	}
	for _, id := range ids {
		u.users[id] = &model.User{ID: id, Status: model.AccountActive}
	}
	return u
}

func (u *fakeUsers) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	if u.failOn["GetUser"] {
		return nil, errInjected
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[userID]
	if !ok {
		return nil, nil
	}
	c := *user
	return &c, nil
}

func (u *fakeUsers) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	if u.failOn["IsFollowing"] {
		return false, errInjected
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.follows[pair{followerID, followeeID}], nil
}

func (u *fakeUsers) IsBlocked(ctx context.Context, blockerID, blockedID int64) (bool, error) {
	if u.failOn["IsBlocked"] {
		return false, errInjected
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.blocks[pair{blockerID, blockedID}], nil
}

func (u *fakeUsers) GetMessageSettings(ctx context.Context, userID int64) (model.MessageSettings, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if s, ok := u.settings[userID]; ok {
		return s, nil
	}
	return model.DefaultMessageSettings(userID), nil
}

func (u *fakeUsers) mutualFollow(a, b int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.follows[pair{a, b}] = true
	u.follows[pair{b, a}] = true
}

func (u *fakeUsers) block(blocker, blocked int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.blocks[pair{blocker, blocked}] = true
}

// fakeSysConfigRepo 内存版 SysConfigRepo
type fakeSysConfigRepo struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newFakeSysConfigRepo() *fakeSysConfigRepo {
	return &fakeSysConfigRepo{values: make(map[string]string)}
}

func (r *fakeSysConfigRepo) FindValue(ctx context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", false, r.err
	}
	v, ok := r.values[key]
	return v, ok, nil
}

func (r *fakeSysConfigRepo) SaveValue(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.values[key] = value
	return nil
}

func (r *fakeSysConfigRepo) set(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
}

// failingRateStore 模拟频控存储不可用
type failingRateStore struct {
	failIncr bool
	failMark bool
}

func (s failingRateStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if s.failIncr {
		return 0, errInjected
	}
	return 1, nil
}

func (s failingRateStore) TryMark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.failMark {
		return false, errInjected
	}
	return true, nil
}
