package repo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/AdventureDe/LinkIM/message/repo/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	gormpostgres "gorm.io/driver/postgres"
)

var (
	testDB      *gorm.DB
	pgContainer *postgres.PostgresContainer
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	if err := startPostgres(ctx); err != nil {
		log.Printf("postgres container unavailable, database tests will be skipped: %v", err)
	}

	code := m.Run()

	if pgContainer != nil {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}
	os.Exit(code)
}

func startPostgres(ctx context.Context) (err error) {
	defer func() {
		// 没有 docker 时 testcontainers 可能 panic
		if r := recover(); r != nil {
			err = fmt.Errorf("start container: %v", r)
		}
	}()

	c, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("linkim"),
		postgres.WithUsername("linkim"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return err
	}
	pgContainer = c

	connStr, err := c.ConnectionString(ctx, "sslmode=disable", "application_name=test")
	if err != nil {
		return err
	}
	db, err := gorm.Open(gormpostgres.Open(connStr), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}
	if err := AutoMigrate(db); err != nil {
		return err
	}
	testDB = db
	return nil
}

func requireDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres container not available")
	}
	t.Cleanup(func() {
		err := testDB.Exec(`TRUNCATE TABLE private_messages, conversations, first_contacts, users, follows,
			blacklists, message_settings, sys_configs RESTART IDENTITY CASCADE`).Error
		require.NoError(t, err)
	})
	return testDB
}

func saveMessage(t *testing.T, r MessageRepo, sender, receiver int64, status model.MessageStatus) *model.PrivateMessage {
	t.Helper()
	msg := &model.PrivateMessage{
		SenderID:   sender,
		ReceiverID: receiver,
		Kind:       model.KindText,
		Content:    "hi",
		Status:     status,
	}
	require.NoError(t, r.SaveMessage(context.Background(), msg))
	require.Positive(t, msg.ID)
	return msg
}

func Test_UpsertConversationConcurrent(t *testing.T) {
	db := requireDB(t)
	r := NewMessageRepo(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := int64(1), int64(2)
			if i%2 == 1 {
				a, b = b, a
			}
			errCh <- r.UpsertConversation(ctx, a, b, a, time.Now())
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&model.Conversation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	conv, err := r.FindConversation(ctx, 2, 1)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, int64(1), conv.UserLowID)
	assert.Equal(t, int64(2), conv.UserHighID)
}

func Test_UpsertConversationBumpsLastMessageAt(t *testing.T) {
	db := requireDB(t)
	r := NewMessageRepo(db)
	ctx := context.Background()

	first := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	second := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, r.UpsertConversation(ctx, 5, 3, 5, first))
	require.NoError(t, r.UpsertConversation(ctx, 3, 5, 3, second))

	conv, err := r.FindConversation(ctx, 3, 5)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, int64(5), conv.CreatedBy)
	assert.True(t, conv.LastMessageAt.Equal(second))

	exists, err := r.ConversationExists(ctx, 5, 3)
	require.NoError(t, err)
	assert.True(t, exists)
}

func Test_FirstContact(t *testing.T) {
	db := requireDB(t)
	r := NewMessageRepo(db)
	ctx := context.Background()

	fc, err := r.FindFirstContact(ctx, 1, 2)
	require.NoError(t, err)
	assert.Nil(t, fc)

	msg := saveMessage(t, r, 1, 2, model.StatusDelivered)
	require.NoError(t, r.CreateFirstContact(ctx, &model.FirstContact{SenderID: 1, ReceiverID: 2, FirstMessageID: msg.ID}))

	t.Run("duplicate pair fails", func(t *testing.T) {
		err := r.CreateFirstContact(ctx, &model.FirstContact{SenderID: 1, ReceiverID: 2, FirstMessageID: msg.ID})
		assert.Error(t, err)
	})

	t.Run("mark replied is idempotent", func(t *testing.T) {
		marked, err := r.MarkReplied(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, marked)

		marked, err = r.MarkReplied(ctx, 1, 2)
		require.NoError(t, err)
		assert.False(t, marked)

		fc, err := r.FindFirstContact(ctx, 1, 2)
		require.NoError(t, err)
		require.NotNil(t, fc)
		assert.True(t, fc.HasReplied)
		assert.Equal(t, msg.ID, fc.FirstMessageID)
	})

	t.Run("reverse pair untouched", func(t *testing.T) {
		marked, err := r.MarkReplied(ctx, 2, 1)
		require.NoError(t, err)
		assert.False(t, marked)
	})
}

func Test_TransactionRollback(t *testing.T) {
	db := requireDB(t)
	r := NewMessageRepo(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := r.Transaction(ctx, func(tx MessageRepo) error {
		msg := saveMessage(t, tx, 1, 2, model.StatusDelivered)
		require.NoError(t, tx.CreateFirstContact(ctx, &model.FirstContact{SenderID: 1, ReceiverID: 2, FirstMessageID: msg.ID}))
		require.NoError(t, tx.UpsertConversation(ctx, 1, 2, 1, time.Now()))
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&model.PrivateMessage{}).Count(&count).Error)
	assert.Zero(t, count)
	fc, err := r.FindFirstContact(ctx, 1, 2)
	require.NoError(t, err)
	assert.Nil(t, fc)
	exists, err := r.ConversationExists(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, exists)
}

func Test_ListMessagesVisibility(t *testing.T) {
	db := requireDB(t)
	r := NewMessageRepo(db)
	ctx := context.Background()

	delivered := saveMessage(t, r, 1, 2, model.StatusDelivered)
	pending := saveMessage(t, r, 1, 2, model.StatusPending)
	blocked := saveMessage(t, r, 1, 2, model.StatusBlocked)
	reply := saveMessage(t, r, 2, 1, model.StatusDelivered)
	saveMessage(t, r, 1, 3, model.StatusDelivered) // 其他会话

	ids := func(page *ConversationMessages) []int64 {
		out := make([]int64, 0, len(page.Messages))
		for _, m := range page.Messages {
			out = append(out, m.ID)
		}
		return out
	}

	t.Run("sender sees everything they sent", func(t *testing.T) {
		page, err := r.ListMessages(ctx, 1, 2, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{reply.ID, blocked.ID, pending.ID, delivered.ID}, ids(page))
		assert.False(t, page.HasMore)
	})

	t.Run("receiver sees only delivered", func(t *testing.T) {
		page, err := r.ListMessages(ctx, 2, 1, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{reply.ID, delivered.ID}, ids(page))
	})

	t.Run("cursor pagination", func(t *testing.T) {
		page, err := r.ListMessages(ctx, 1, 2, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{reply.ID, blocked.ID}, ids(page))
		assert.True(t, page.HasMore)

		page, err = r.ListMessages(ctx, 1, 2, blocked.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{pending.ID, delivered.ID}, ids(page))
		assert.False(t, page.HasMore)
	})
}

func Test_MarkAsReadAndCountUnread(t *testing.T) {
	db := requireDB(t)
	r := NewMessageRepo(db)
	ctx := context.Background()

	saveMessage(t, r, 1, 2, model.StatusDelivered)
	saveMessage(t, r, 1, 2, model.StatusDelivered)
	saveMessage(t, r, 1, 2, model.StatusPending)
	saveMessage(t, r, 3, 2, model.StatusDelivered)

	n, err := r.CountUnread(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	updated, err := r.MarkAsRead(ctx, 2, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	n, err = r.CountUnread(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func Test_CountUnreadFrom(t *testing.T) {
	db := requireDB(t)
	r := NewMessageRepo(db)
	ctx := context.Background()

	saveMessage(t, r, 1, 2, model.StatusDelivered)
	saveMessage(t, r, 1, 2, model.StatusPending)
	saveMessage(t, r, 3, 2, model.StatusDelivered)
	saveMessage(t, r, 3, 2, model.StatusDelivered)

	n, err := r.CountUnreadFrom(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = r.CountUnreadFrom(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = r.CountUnreadFrom(ctx, 1, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func Test_ListConversations(t *testing.T) {
	db := requireDB(t)
	r := NewMessageRepo(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, r.UpsertConversation(ctx, 1, 2, 1, base))
	require.NoError(t, r.UpsertConversation(ctx, 3, 1, 3, base.Add(time.Minute)))
	require.NoError(t, r.UpsertConversation(ctx, 1, 4, 1, base.Add(2*time.Minute)))
	require.NoError(t, r.UpsertConversation(ctx, 2, 3, 2, base.Add(3*time.Minute))) // 与 1 无关
	require.NoError(t, r.UpsertConversation(ctx, 2, 1, 2, base.Add(4*time.Minute)))

	saveMessage(t, r, 2, 1, model.StatusDelivered)
	saveMessage(t, r, 2, 1, model.StatusDelivered)
	saveMessage(t, r, 3, 1, model.StatusPending)
	saveMessage(t, r, 1, 4, model.StatusDelivered)

	peers := func(list []*ConversationSummary) []int64 {
		out := make([]int64, 0, len(list))
		for _, c := range list {
			out = append(out, c.PeerID)
		}
		return out
	}

	list, err := r.ListConversations(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 3}, peers(list))
	assert.Equal(t, int64(2), list[0].UnreadCount)
	assert.Zero(t, list[1].UnreadCount)
	assert.Zero(t, list[2].UnreadCount)
	assert.Equal(t, int64(3), list[2].CreatedBy)

	page2, err := r.ListConversations(ctx, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, peers(page2))

	empty, err := r.ListConversations(ctx, 9, 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func Test_LockConversationSerializesPair(t *testing.T) {
	db := requireDB(t)
	r := NewMessageRepo(db)
	ctx := context.Background()

	firstLocked := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- r.Transaction(ctx, func(tx MessageRepo) error {
			created, err := tx.LockConversation(ctx, 1, 2, 1, time.Now())
			if err != nil {
				return err
			}
			if !created {
				return errors.New("first writer should create the conversation")
			}
			close(firstLocked)
			<-release
			return nil
		})
	}()
	<-firstLocked

	secondCreated := make(chan bool, 1)
	secondDone := make(chan error, 1)
	go func() {
		secondDone <- r.Transaction(ctx, func(tx MessageRepo) error {
			created, err := tx.LockConversation(ctx, 2, 1, 2, time.Now())
			secondCreated <- created
			return err
		})
	}()

	select {
	case <-secondCreated:
		t.Fatal("second writer did not wait for the first transaction")
	case <-time.After(300 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-firstDone)
	assert.False(t, <-secondCreated)
	require.NoError(t, <-secondDone)

	var count int64
	require.NoError(t, db.Model(&model.Conversation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// 已存在时只加锁，不修改
	conv, err := r.FindConversation(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, int64(1), conv.CreatedBy)
}

func Test_UserRepo(t *testing.T) {
	db := requireDB(t)
	r := NewUserRepo(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.User{ID: 1, Nickname: "a"}).Error)
	require.NoError(t, db.Create(&model.User{ID: 2, Nickname: "b", Status: model.AccountSuspended}).Error)

	t.Run("get user", func(t *testing.T) {
		u, err := r.GetUser(ctx, 2)
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.False(t, u.Status.CanMessage())

		u, err = r.GetUser(ctx, 99)
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("follow", func(t *testing.T) {
		require.NoError(t, r.Follow(ctx, 1, 2))
		require.NoError(t, r.Follow(ctx, 1, 2))
		ok, err := r.IsFollowing(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = r.IsFollowing(ctx, 2, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("block", func(t *testing.T) {
		require.NoError(t, r.BlockUser(ctx, 2, 1))
		ok, err := r.IsBlocked(ctx, 2, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, r.UnblockUser(ctx, 2, 1))
		ok, err = r.IsBlocked(ctx, 2, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("settings", func(t *testing.T) {
		s, err := r.GetMessageSettings(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, model.DefaultMessageSettings(1), s)

		require.NoError(t, r.SaveMessageSettings(ctx, &model.MessageSettings{UserID: 1, AllowStrangerMessage: false, AllowNonMutualFollowMessage: true}))
		s, err = r.GetMessageSettings(ctx, 1)
		require.NoError(t, err)
		assert.False(t, s.AllowStrangerMessage)
		assert.True(t, s.AllowNonMutualFollowMessage)
	})
}

func Test_SysConfigRepo(t *testing.T) {
	db := requireDB(t)
	r := NewSysConfigRepo(db)
	ctx := context.Background()

	_, ok, err := r.FindValue(ctx, "private_message.enabled")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SaveValue(ctx, "private_message.enabled", "1"))
	require.NoError(t, r.SaveValue(ctx, "private_message.enabled", "0"))

	v, ok, err := r.FindValue(ctx, "private_message.enabled")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0", v)
}
