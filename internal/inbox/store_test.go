package inbox

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ast-secret/inboxcore/internal/domain"
)

func newTestMessage(id string, at time.Time, public bool) *domain.Message {
	return &domain.Message{
		ID:        id,
		Content:   "hello " + id,
		Timestamp: at,
		IsPublic:  public,
	}
}

func newTestUser() *domain.User {
	now := time.Now()
	return &domain.User{
		ID:        "u1",
		Username:  "CoolStar42",
		IsPublic:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.AccountLifetime),
	}
}

func TestStore_SeedAndDerivedUser(t *testing.T) {
	s := NewStore()
	base := time.Now()
	s.Seed(newTestUser(), []*domain.Message{
		newTestMessage("m1", base, true),
		newTestMessage("m2", base.Add(time.Minute), false),
	})

	user := s.User()
	require.NotNil(t, user)
	assert.Equal(t, 2, user.MessageCount)

	// messageCount always derives from the live collection.
	e := NewEngine(s)
	e.Reconcile(domain.MessageDeleted("m1"))
	assert.Equal(t, 1, s.User().MessageCount)
}

func TestStore_EmptyFetch(t *testing.T) {
	s := NewStore()
	s.Seed(newTestUser(), nil)

	assert.Empty(t, s.FilteredView(FilterUnread))
	assert.Equal(t, Counts{}, s.DerivedCounts())
}

func TestStore_FilteredView(t *testing.T) {
	s := NewStore()
	base := time.Now()
	m1 := newTestMessage("m1", base, true)
	m2 := newTestMessage("m2", base.Add(time.Minute), false)
	m3 := newTestMessage("m3", base.Add(2*time.Minute), true)
	m3.IsRead = true
	s.Seed(newTestUser(), []*domain.Message{m1, m2, m3})

	assert.Len(t, s.FilteredView(FilterAll), 3)
	assert.Len(t, s.FilteredView(FilterUnread), 2)
	assert.Len(t, s.FilteredView(FilterRead), 1)
	assert.Len(t, s.FilteredView(FilterPublic), 2)
	assert.Len(t, s.FilteredView(FilterPrivate), 1)

	// Newest first regardless of seed order.
	all := s.FilteredView(FilterAll)
	assert.Equal(t, "m3", all[0].ID)
	assert.Equal(t, "m2", all[1].ID)
	assert.Equal(t, "m1", all[2].ID)
}

func TestStore_ViewsDoNotMutate(t *testing.T) {
	s := NewStore()
	s.Seed(newTestUser(), []*domain.Message{newTestMessage("m1", time.Now(), true)})

	view := s.FilteredView(FilterAll)
	view[0].IsRead = true
	view[0].Reactions.Heart = 99

	got, ok := s.Get("m1")
	require.True(t, ok)
	assert.False(t, got.IsRead)
	assert.Zero(t, got.Reactions.Heart)
}

func TestStore_DerivedCountsNeverDrift(t *testing.T) {
	s := NewStore()
	e := NewEngine(s)
	s.Seed(newTestUser(), nil)
	base := time.Now()

	for i := 0; i < 20; i++ {
		e.Reconcile(domain.MessageArrived(newTestMessage(fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second), i%2 == 0)))
	}
	for i := 0; i < 20; i += 3 {
		e.Reconcile(domain.MessageDeleted(fmt.Sprintf("m%d", i)))
	}
	for i := 0; i < 20; i += 2 {
		e.Reconcile(domain.ReadStateChanged(fmt.Sprintf("m%d", i)))
	}

	counts := s.DerivedCounts()
	assert.Equal(t, len(s.FilteredView(FilterAll)), counts.Total)
	assert.Equal(t, counts.Total, counts.Read+counts.Unread)
	assert.Equal(t, counts.Total, counts.Public+counts.Private)
	assert.Equal(t, counts.Total, s.User().MessageCount)
}

func TestStore_Stats(t *testing.T) {
	s := NewStore()
	base := time.Now()
	m1 := newTestMessage("m1", base, true)
	m1.Reactions = domain.Reactions{Heart: 3, Fire: 1}
	m1.Reply = "thanks!"
	m2 := newTestMessage("m2", base.Add(time.Minute), false)
	m2.Reactions = domain.Reactions{Laugh: 2}
	s.Seed(newTestUser(), []*domain.Message{m1, m2})

	st := s.Stats()
	assert.Equal(t, 2, st.TotalMessages)
	assert.Equal(t, 6, st.TotalReactions)
	assert.InDelta(t, 3.0, st.AverageReactions, 0.001)
	assert.Equal(t, domain.ReactionHeart, st.MostPopularReaction)
	assert.Equal(t, 1, st.RepliedMessages)
	assert.Equal(t, 50, st.ResponseRatePercent)
	assert.Equal(t, 1, st.PublicMessages)
	assert.Equal(t, 1, st.PrivateMessages)
	assert.Equal(t, 2, st.UnreadMessages)
}

func TestStore_StatsEmpty(t *testing.T) {
	s := NewStore()
	s.Seed(newTestUser(), nil)

	st := s.Stats()
	assert.Zero(t, st.TotalMessages)
	assert.Zero(t, st.AverageReactions)
	assert.Zero(t, st.ResponseRatePercent)
}
