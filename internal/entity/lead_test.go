package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeadSchedulesBothMessages(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	lead, err := NewLead("123", "+972501111111", "Dana", now, Schedule{
		InitialDelay:  6 * time.Minute,
		FollowupDelay: 24 * time.Hour,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, StatusNewLead, lead.Status)
	assert.False(t, lead.FirstMessageSent)
	assert.False(t, lead.IsDone)
	assert.Equal(t, now.Add(6*time.Minute), *lead.FirstMessageDueAt)
	assert.Equal(t, now.Add(6*time.Minute+24*time.Hour), *lead.FollowupDueAt)
}

func TestNewLeadFallsBackToUnknownName(t *testing.T) {
	lead, err := NewLead("123", "+972501111111", "  ", time.Now(), Schedule{})
	require.NoError(t, err)
	assert.Equal(t, "Unknown", lead.Name)
}

func TestNewLeadRequiresPhoneAndExternalID(t *testing.T) {
	_, err := NewLead("123", "", "Dana", time.Now(), Schedule{})
	assert.EqualError(t, err, "phone is required")

	_, err = NewLead("", "+972501111111", "Dana", time.Now(), Schedule{})
	assert.EqualError(t, err, "external id is required")
}

func TestInitialMessageDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	lead, err := NewLead("123", "+972501111111", "Dana", now, Schedule{InitialDelay: 10 * time.Minute})
	require.NoError(t, err)

	assert.False(t, lead.InitialMessageDue(now), "not due before the delay elapses")
	assert.True(t, lead.InitialMessageDue(now.Add(10*time.Minute)))

	lead.FirstMessageSent = true
	assert.False(t, lead.InitialMessageDue(now.Add(time.Hour)))

	lead.FirstMessageSent = false
	lead.IsDone = true
	assert.False(t, lead.InitialMessageDue(now.Add(time.Hour)))
}

func TestFollowupDueRequiresInitialMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	lead, err := NewLead("123", "+972501111111", "Dana", now, Schedule{FollowupDelay: 24 * time.Hour})
	require.NoError(t, err)

	later := now.Add(25 * time.Hour)
	assert.False(t, lead.FollowupDue(later))

	lead.FirstMessageSent = true
	assert.True(t, lead.FollowupDue(later))
	assert.False(t, lead.FollowupDue(now.Add(time.Hour)))

	lead.IsDone = true
	assert.False(t, lead.FollowupDue(later))
}
