package database

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadflow/internal/entity"
)

func newSQLiteRepo(t *testing.T) *SQLiteLeadRepository {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(t.Context(), db, DriverSQLite))
	return NewSQLiteLeadRepository(db)
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func createLead(t *testing.T, repo *SQLiteLeadRepository, externalID, phone string, created time.Time) *entity.Lead {
	t.Helper()
	lead, err := entity.NewLead(externalID, phone, "Dana", created, entity.Schedule{FollowupDelay: 24 * time.Hour})
	require.NoError(t, err)
	require.NoError(t, repo.Create(t.Context(), lead))
	return lead
}

func TestSQLiteCreateAndFind(t *testing.T) {
	repo := newSQLiteRepo(t)
	lead := createLead(t, repo, "123", "+972501111111", base)

	got, err := repo.FindByExternalID(t.Context(), "123")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, got.ID)
	assert.Equal(t, entity.StatusNewLead, got.Status)
	assert.True(t, lead.FirstMessageDueAt.Equal(*got.FirstMessageDueAt))
	assert.True(t, lead.FollowupDueAt.Equal(*got.FollowupDueAt))
	assert.False(t, got.IsDone)

	_, err = repo.FindByExternalID(t.Context(), "missing")
	assert.ErrorIs(t, err, entity.ErrLeadNotFound)
}

func TestSQLiteCreate_Duplicate(t *testing.T) {
	repo := newSQLiteRepo(t)
	createLead(t, repo, "123", "+972501111111", base)

	dup, err := entity.NewLead("123", "+972509999999", "Other", base, entity.Schedule{})
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(t.Context(), dup), entity.ErrLeadAlreadyExists)
}

func TestSQLiteListDue(t *testing.T) {
	repo := newSQLiteRepo(t)
	due := createLead(t, repo, "1", "+972501111111", base)
	createLead(t, repo, "2", "+972502222222", base.Add(2*time.Hour))

	leads, err := repo.ListDue(t.Context(), entity.DueInitialMessage, base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, due.ID, leads[0].ID)

	// Follow-up is never due before the initial message went out.
	leads, err = repo.ListDue(t.Context(), entity.DueFollowup, base.Add(48*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, leads)

	ok, err := repo.MarkInitialSent(t.Context(), due.ID, entity.StatusMessageSent, base)
	require.NoError(t, err)
	require.True(t, ok)

	leads, err = repo.ListDue(t.Context(), entity.DueFollowup, base.Add(23*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, leads)

	leads, err = repo.ListDue(t.Context(), entity.DueFollowup, base.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.True(t, leads[0].FirstMessageSent)
	assert.Equal(t, entity.StatusMessageSent, leads[0].Status)
}

func TestSQLiteListDue_Limit(t *testing.T) {
	repo := newSQLiteRepo(t)
	for i := range 5 {
		createLead(t, repo, fmt.Sprint(i), fmt.Sprintf("+97250000000%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	leads, err := repo.ListDue(t.Context(), entity.DueInitialMessage, base.Add(time.Hour), 3)
	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, "0", leads[0].ExternalID)
	assert.Equal(t, "2", leads[2].ExternalID)
}

func TestSQLiteMarkInitialSent_OnlyOnce(t *testing.T) {
	repo := newSQLiteRepo(t)
	lead := createLead(t, repo, "123", "+972501111111", base)

	ok, err := repo.MarkInitialSent(t.Context(), lead.ID, entity.StatusMessageSent, base)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkInitialSent(t.Context(), lead.ID, entity.StatusMessageSent, base)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteMarkDone_IsMonotonic(t *testing.T) {
	repo := newSQLiteRepo(t)
	lead := createLead(t, repo, "123", "+972501111111", base)

	ok, err := repo.MarkDone(t.Context(), lead.ID, "", base)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByExternalID(t.Context(), "123")
	require.NoError(t, err)
	assert.True(t, got.IsDone)
	assert.Equal(t, entity.StatusNewLead, got.Status)

	ok, err = repo.MarkDone(t.Context(), lead.ID, entity.StatusNoAnswer1, base)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkInitialSent(t.Context(), lead.ID, entity.StatusMessageSent, base)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = repo.FindByExternalID(t.Context(), "123")
	require.NoError(t, err)
	assert.True(t, got.IsDone)
	assert.Equal(t, entity.StatusNewLead, got.Status)

	leads, err := repo.ListDue(t.Context(), entity.DueInitialMessage, base.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestSQLiteMarkRepliedByPhones(t *testing.T) {
	repo := newSQLiteRepo(t)
	createLead(t, repo, "old", "+972501111111", base)
	newest := createLead(t, repo, "new", "+972501111111", base.Add(time.Hour))
	createLead(t, repo, "other", "+972502222222", base)

	got, err := repo.MarkRepliedByPhones(t.Context(), []string{"972501111111", "+972501111111"}, entity.StatusCustomerReplied, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newest.ID, got.ID)
	assert.True(t, got.IsDone)
	assert.Equal(t, entity.StatusCustomerReplied, got.Status)

	// Substrings never match.
	got, err = repo.MarkRepliedByPhones(t.Context(), []string{"501111111"}, entity.StatusCustomerReplied, base)
	require.NoError(t, err)
	assert.Nil(t, got)

	old, err := repo.FindByExternalID(t.Context(), "old")
	require.NoError(t, err)
	assert.False(t, old.IsDone)
}

func TestSQLiteClaim_HidesLeadUntilExpiry(t *testing.T) {
	repo := newSQLiteRepo(t)
	lead := createLead(t, repo, "123", "+972501111111", base)
	now := base.Add(time.Minute)

	ok, err := repo.Claim(t.Context(), lead.ID, entity.DueInitialMessage, now, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(t.Context(), lead.ID, entity.DueInitialMessage, now, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "a live claim cannot be taken twice")

	leads, err := repo.ListDue(t.Context(), entity.DueInitialMessage, now, 10)
	require.NoError(t, err)
	assert.Empty(t, leads)

	// Expired claims are reclaimable.
	later := now.Add(5 * time.Minute)
	leads, err = repo.ListDue(t.Context(), entity.DueInitialMessage, later, 10)
	require.NoError(t, err)
	require.Len(t, leads, 1)

	ok, err = repo.Claim(t.Context(), lead.ID, entity.DueInitialMessage, later, later.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkInitialSent(t.Context(), lead.ID, entity.StatusMessageSent, later)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.FindByExternalID(t.Context(), "123")
	require.NoError(t, err)
	assert.Nil(t, got.ClaimedUntil)

	// Wrong kind for the row's stage.
	ok, err = repo.Claim(t.Context(), lead.ID, entity.DueInitialMessage, later, later.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteClaim_DoneLeadIsNeverClaimed(t *testing.T) {
	repo := newSQLiteRepo(t)
	lead := createLead(t, repo, "123", "+972501111111", base)

	_, err := repo.MarkRepliedByPhones(t.Context(), []string{"+972501111111"}, entity.StatusCustomerReplied, base)
	require.NoError(t, err)

	ok, err := repo.Claim(t.Context(), lead.ID, entity.DueInitialMessage, base, base.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteReschedule_MovesLeadBehindHealthyOnes(t *testing.T) {
	repo := newSQLiteRepo(t)
	failing := createLead(t, repo, "1", "+972501111111", base)
	healthy := createLead(t, repo, "2", "+972502222222", base.Add(time.Minute))
	now := base.Add(2 * time.Minute)

	ok, err := repo.Claim(t.Context(), failing.ID, entity.DueInitialMessage, now, now.Add(5*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Reschedule(t.Context(), failing.ID, entity.DueInitialMessage, now.Add(10*time.Minute), now)
	require.NoError(t, err)
	assert.True(t, ok)

	leads, err := repo.ListDue(t.Context(), entity.DueInitialMessage, now, 1)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, healthy.ID, leads[0].ID)

	got, err := repo.FindByExternalID(t.Context(), "1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.Nil(t, got.ClaimedUntil)
	assert.True(t, now.Add(10*time.Minute).Equal(*got.FirstMessageDueAt))

	ok, err = repo.MarkDone(t.Context(), failing.ID, "", now)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.Reschedule(t.Context(), failing.ID, entity.DueInitialMessage, now.Add(time.Hour), now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteMigrationVersion(t *testing.T) {
	repo := newSQLiteRepo(t)
	v, err := MigrationVersion(t.Context(), repo.db, DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.NoError(t, repo.Ping(t.Context()))
}
