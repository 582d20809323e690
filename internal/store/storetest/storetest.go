// Package storetest is a conformance suite run against every store backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/galactic-archives/internal/model"
	"github.com/dukerupert/galactic-archives/internal/store"
)

// Factory returns an empty store that reads time from clock.
type Factory func(t *testing.T, clock store.Clock) store.Store

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func RunSuite(t *testing.T, newStore Factory) {
	t.Run("UserCreateAndLookup", func(t *testing.T) { testUserCreateAndLookup(t, newStore) })
	t.Run("UserDuplicateEmail", func(t *testing.T) { testUserDuplicateEmail(t, newStore) })
	t.Run("UserEmailIgnoresCase", func(t *testing.T) { testUserEmailIgnoresCase(t, newStore) })
	t.Run("UserSubscription", func(t *testing.T) { testUserSubscription(t, newStore) })
	t.Run("NoteCRUD", func(t *testing.T) { testNoteCRUD(t, newStore) })
	t.Run("NoteOwnership", func(t *testing.T) { testNoteOwnership(t, newStore) })
	t.Run("NoteListOrder", func(t *testing.T) { testNoteListOrder(t, newStore) })
	t.Run("NoteSearch", func(t *testing.T) { testNoteSearch(t, newStore) })
	t.Run("NoteEmptyPatch", func(t *testing.T) { testNoteEmptyPatch(t, newStore) })
	t.Run("Products", func(t *testing.T) { testProducts(t, newStore) })
	t.Run("Ping", func(t *testing.T) { testPing(t, newStore) })
}

func setup(t *testing.T, newStore Factory) (store.Store, *Clock) {
	t.Helper()
	clock := NewClock()
	return newStore(t, clock.Now), clock
}

func mustUser(t *testing.T, s store.Store, email string) *model.User {
	t.Helper()
	u, err := s.Users().Create(context.Background(), email, "hash-"+email)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func testUserCreateAndLookup(t *testing.T, newStore Factory) {
	s, clock := setup(t, newStore)
	ctx := context.Background()

	u := mustUser(t, s, "a@x.com")
	assert.True(t, model.ValidID(u.ID))
	assert.Equal(t, "a@x.com", u.Email)
	assert.Equal(t, "hash-a@x.com", u.PasswordHash)
	assert.True(t, u.CreatedAt.Equal(clock.Now()))
	assert.True(t, u.UpdatedAt.Equal(clock.Now()))
	assert.Nil(t, u.Subscription)
	assert.Empty(t, u.StripeCustomerID)

	byEmail, err := s.Users().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)

	byID, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "a@x.com", byID.Email)

	missing, err := s.Users().GetByEmail(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = s.Users().GetByID(ctx, model.NewID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testUserDuplicateEmail(t *testing.T, newStore Factory) {
	s, _ := setup(t, newStore)
	ctx := context.Background()

	first := mustUser(t, s, "dup@x.com")

	_, err := s.Users().Create(ctx, "dup@x.com", "other-hash")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrDuplicateEmail), "got %v", err)

	got, err := s.Users().GetByEmail(ctx, "dup@x.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "hash-dup@x.com", got.PasswordHash)
}

func testUserEmailIgnoresCase(t *testing.T, newStore Factory) {
	s, _ := setup(t, newStore)
	ctx := context.Background()

	u := mustUser(t, s, "Alice@x.com")
	assert.Equal(t, "Alice@x.com", u.Email, "stored case is kept")

	for _, email := range []string{"Alice@x.com", "alice@x.com", "ALICE@X.COM"} {
		got, err := s.Users().GetByEmail(ctx, email)
		require.NoError(t, err)
		require.NotNil(t, got, email)
		assert.Equal(t, u.ID, got.ID, email)
		assert.Equal(t, "Alice@x.com", got.Email)
	}

	_, err := s.Users().Create(ctx, "alice@x.com", "other-hash")
	assert.True(t, errors.Is(err, store.ErrDuplicateEmail), "got %v", err)
}

func testUserSubscription(t *testing.T, newStore Factory) {
	s, clock := setup(t, newStore)
	ctx := context.Background()

	u := mustUser(t, s, "sub@x.com")

	found, err := s.Users().UpdateSubscription(ctx, "cus_123", model.Subscription{ID: "sub_1", Status: "active"})
	require.NoError(t, err)
	assert.False(t, found, "no user owns cus_123 yet")

	clock.Advance(time.Minute)
	require.NoError(t, s.Users().SetStripeCustomerID(ctx, u.ID, "cus_123"))

	clock.Advance(time.Minute)
	found, err = s.Users().UpdateSubscription(ctx, "cus_123", model.Subscription{
		ID:      "sub_1",
		Status:  "active",
		PriceID: "price_pro",
	})
	require.NoError(t, err)
	assert.True(t, found)

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cus_123", got.StripeCustomerID)
	require.NotNil(t, got.Subscription)
	assert.Equal(t, "sub_1", got.Subscription.ID)
	assert.Equal(t, "active", got.Subscription.Status)
	assert.Equal(t, "price_pro", got.Subscription.PriceID)
	assert.True(t, got.UpdatedAt.Equal(clock.Now()))
	assert.True(t, got.CreatedAt.Before(got.UpdatedAt))
}

func testNoteCRUD(t *testing.T, newStore Factory) {
	s, clock := setup(t, newStore)
	ctx := context.Background()
	owner := mustUser(t, s, "owner@x.com")

	note, err := s.Notes().Create(ctx, owner.ID, "Log", "first")
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.True(t, model.ValidID(note.ID))
	assert.Equal(t, owner.ID, note.OwnerID)
	assert.Equal(t, "Log", note.Title)
	assert.Equal(t, "first", note.Content)
	assert.True(t, note.CreatedAt.Equal(clock.Now()))

	got, err := s.Notes().Get(ctx, note.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, note.ID, got.ID)

	clock.Advance(time.Second)
	title := "Captain's Log"
	updated, err := s.Notes().Update(ctx, note.ID, owner.ID, model.NotePatch{Title: &title})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Captain's Log", updated.Title)
	assert.Equal(t, "first", updated.Content, "absent field is unchanged")
	assert.True(t, updated.CreatedAt.Equal(note.CreatedAt))
	assert.True(t, updated.UpdatedAt.Equal(clock.Now()))

	content := "second"
	updated, err = s.Notes().Update(ctx, note.ID, owner.ID, model.NotePatch{Content: &content})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Captain's Log", updated.Title)
	assert.Equal(t, "second", updated.Content)

	deleted, err := s.Notes().Delete(ctx, note.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err = s.Notes().Get(ctx, note.ID, owner.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	deleted, err = s.Notes().Delete(ctx, note.ID, owner.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	updated, err = s.Notes().Update(ctx, note.ID, owner.ID, model.NotePatch{Content: &content})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func testNoteOwnership(t *testing.T, newStore Factory) {
	s, _ := setup(t, newStore)
	ctx := context.Background()
	alice := mustUser(t, s, "alice@x.com")
	bob := mustUser(t, s, "bob@x.com")

	note, err := s.Notes().Create(ctx, alice.ID, "Private", "alice only")
	require.NoError(t, err)

	got, err := s.Notes().Get(ctx, note.ID, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	title := "Hijacked"
	updated, err := s.Notes().Update(ctx, note.ID, bob.ID, model.NotePatch{Title: &title})
	require.NoError(t, err)
	assert.Nil(t, updated)

	deleted, err := s.Notes().Delete(ctx, note.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	list, err := s.Notes().List(ctx, bob.ID, "")
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err = s.Notes().Get(ctx, note.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Private", got.Title)
	assert.Equal(t, "alice only", got.Content)
}

func testNoteListOrder(t *testing.T, newStore Factory) {
	s, clock := setup(t, newStore)
	ctx := context.Background()
	owner := mustUser(t, s, "order@x.com")

	first, err := s.Notes().Create(ctx, owner.ID, "first", "1")
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := s.Notes().Create(ctx, owner.ID, "second", "2")
	require.NoError(t, err)
	clock.Advance(time.Second)
	third, err := s.Notes().Create(ctx, owner.ID, "third", "3")
	require.NoError(t, err)

	list, err := s.Notes().List(ctx, owner.ID, "")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, ids(list))

	clock.Advance(time.Second)
	content := "touched"
	_, err = s.Notes().Update(ctx, first.ID, owner.ID, model.NotePatch{Content: &content})
	require.NoError(t, err)

	list, err = s.Notes().List(ctx, owner.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, third.ID, second.ID}, ids(list))
}

func testNoteSearch(t *testing.T, newStore Factory) {
	s, _ := setup(t, newStore)
	ctx := context.Background()
	owner := mustUser(t, s, "search@x.com")
	other := mustUser(t, s, "other@x.com")

	mustNote := func(ownerID, title, content string) *model.Note {
		t.Helper()
		n, err := s.Notes().Create(ctx, ownerID, title, content)
		require.NoError(t, err)
		return n
	}
	hyper := mustNote(owner.ID, "Hyperdrive", "needs a new motivator")
	droid := mustNote(owner.ID, "Droids", "R2 and the HYPERDRIVE fix")
	regex := mustNote(owner.ID, "Regex", "match a.*b literally")
	mustNote(other.ID, "Hyperdrive", "not yours")

	cases := []struct {
		search string
		want   []string
	}{
		{"hyperdrive", []string{droid.ID, hyper.ID}},
		{"MOTIVATOR", []string{hyper.ID}},
		{"a.*b", []string{regex.ID}},
		{".*", nil},
		{"(", nil},
		{"nothing-matches", nil},
	}
	for _, tc := range cases {
		t.Run(tc.search, func(t *testing.T) {
			list, err := s.Notes().List(ctx, owner.ID, tc.search)
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.want, ids(list))
		})
	}
}

func testNoteEmptyPatch(t *testing.T, newStore Factory) {
	s, clock := setup(t, newStore)
	ctx := context.Background()
	owner := mustUser(t, s, "patch@x.com")

	note, err := s.Notes().Create(ctx, owner.ID, "Keep", "me")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = s.Notes().Update(ctx, note.ID, owner.ID, model.NotePatch{})
	assert.True(t, errors.Is(err, store.ErrEmptyPatch), "got %v", err)

	got, err := s.Notes().Get(ctx, note.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.UpdatedAt.Equal(note.UpdatedAt), "empty patch must not touch the note")
}

func testProducts(t *testing.T, newStore Factory) {
	s, _ := setup(t, newStore)
	ctx := context.Background()

	list, err := s.Products().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	pro := model.Product{
		Name:      "Pro",
		PriceID:   "price_old",
		LookupKey: "pro_monthly",
		Amount:    900,
		Currency:  "usd",
		Interval:  "month",
	}
	require.NoError(t, s.Products().Upsert(ctx, pro))

	pro.PriceID = "price_new"
	pro.Description = "Unlimited notes"
	require.NoError(t, s.Products().Upsert(ctx, pro))

	require.NoError(t, s.Products().Upsert(ctx, model.Product{
		Name:      "Pro+",
		PriceID:   "price_plus",
		LookupKey: "pro_plus_monthly",
		Amount:    1900,
		Currency:  "usd",
		Interval:  "month",
	}))

	got, err := s.Products().GetByLookupKey(ctx, "pro_monthly")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pro, *got)

	missing, err := s.Products().GetByLookupKey(ctx, "enterprise")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err = s.Products().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pro_monthly", list[0].LookupKey)
	assert.Equal(t, "pro_plus_monthly", list[1].LookupKey)
}

func testPing(t *testing.T, newStore Factory) {
	s, _ := setup(t, newStore)
	require.NoError(t, s.Ping(context.Background()))
}

func ids(notes []model.Note) []string {
	var out []string
	for _, n := range notes {
		out = append(out, n.ID)
	}
	return out
}
