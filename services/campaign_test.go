package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/utils"
)

func newDispatcher(db *gorm.DB, mailer utils.Mailer) *CampaignDispatcher {
	d := NewCampaignDispatcher(db, mailer, 0)
	d.Now = func() time.Time { return testNow }
	return d
}

func seedCampaign(t *testing.T, db *gorm.DB, userID uint, status string, scheduledFor *time.Time, contacts ...*models.Contact) *models.EmailCampaign {
	t.Helper()
	campaign := &models.EmailCampaign{
		UserID:       userID,
		Name:         "June news",
		Subject:      "Hello {{contact.firstName}}",
		Body:         "<p>News for {{contact.name}}</p>",
		Status:       status,
		ScheduledFor: scheduledFor,
	}
	for _, c := range contacts {
		campaign.Recipients = append(campaign.Recipients, models.EmailCampaignRecipient{ContactID: c.ID, Status: models.RecipientPending})
	}
	require.NoError(t, db.Create(campaign).Error)
	return campaign
}

func recipientStatuses(t *testing.T, db *gorm.DB, campaignID uint) map[uint]string {
	t.Helper()
	var recipients []models.EmailCampaignRecipient
	require.NoError(t, db.Where("campaign_id = ?", campaignID).Find(&recipients).Error)
	out := map[uint]string{}
	for _, r := range recipients {
		out[r.ContactID] = r.Status
	}
	return out
}

func TestDispatchNowSendsAndBounces(t *testing.T) {
	db := newTestDB(t)
	mailer := newRecordingMailer()
	u := seedUser(t, db, "owner@example.com")
	ada := seedContact(t, db, u.ID, "Ada Lovelace", utils.Pointer("ada@example.com"))
	nomail := seedContact(t, db, u.ID, "No Mail", nil)
	campaign := seedCampaign(t, db, u.ID, models.CampaignSending, nil, ada, nomail)

	result, err := newDispatcher(db, mailer).DispatchNow(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, CampaignResult{Sent: 1, Bounced: 1}, result)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@example.com", sent[0].To)
	assert.Equal(t, "Hello Ada", sent[0].Subject)
	assert.Contains(t, sent[0].HTML, "News for Ada Lovelace")
	assert.Contains(t, sent[0].HTML, "June news")

	statuses := recipientStatuses(t, db, campaign.ID)
	assert.Equal(t, models.RecipientSent, statuses[ada.ID])
	assert.Equal(t, models.RecipientBounced, statuses[nomail.ID])

	var stored models.EmailCampaign
	require.NoError(t, db.First(&stored, campaign.ID).Error)
	assert.Equal(t, models.CampaignSent, stored.Status)
}

func TestDispatchNowLeavesFailedRecipientsPending(t *testing.T) {
	db := newTestDB(t)
	mailer := newRecordingMailer()
	mailer.fail["bad@example.com"] = true
	u := seedUser(t, db, "owner@example.com")
	bad := seedContact(t, db, u.ID, "Bad", utils.Pointer("bad@example.com"))
	good := seedContact(t, db, u.ID, "Good", utils.Pointer("good@example.com"))
	campaign := seedCampaign(t, db, u.ID, models.CampaignSending, nil, bad, good)

	result, err := newDispatcher(db, mailer).DispatchNow(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, CampaignResult{Sent: 1, Failed: 1}, result)

	statuses := recipientStatuses(t, db, campaign.ID)
	assert.Equal(t, models.RecipientPending, statuses[bad.ID])
	assert.Equal(t, models.RecipientSent, statuses[good.ID])
}

func TestDispatchNowUnknownCampaign(t *testing.T) {
	db := newTestDB(t)
	result, err := newDispatcher(db, newRecordingMailer()).DispatchNow(context.Background(), 404)
	require.NoError(t, err)
	assert.Zero(t, result)
}

func TestProcessScheduledOnlyDispatchesDueCampaigns(t *testing.T) {
	db := newTestDB(t)
	mailer := newRecordingMailer()
	u := seedUser(t, db, "owner@example.com")
	ada := seedContact(t, db, u.ID, "Ada", utils.Pointer("ada@example.com"))

	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)
	due := seedCampaign(t, db, u.ID, models.CampaignScheduled, &past, ada)
	later := seedCampaign(t, db, u.ID, models.CampaignScheduled, &future, ada)
	draft := seedCampaign(t, db, u.ID, models.CampaignDraft, &past, ada)

	d := newDispatcher(db, mailer)
	n, err := d.ProcessScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, mailer.Sent(), 1)

	statusOf := func(id uint) string {
		var c models.EmailCampaign
		require.NoError(t, db.First(&c, id).Error)
		return c.Status
	}
	assert.Equal(t, models.CampaignSent, statusOf(due.ID))
	assert.Equal(t, models.CampaignScheduled, statusOf(later.ID))
	assert.Equal(t, models.CampaignDraft, statusOf(draft.ID))

	// a second pass finds nothing left to send
	n, err = d.ProcessScheduled(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, mailer.Sent(), 1)
}

func TestDispatchNowHonoursCancellation(t *testing.T) {
	db := newTestDB(t)
	u := seedUser(t, db, "owner@example.com")
	ada := seedContact(t, db, u.ID, "Ada", utils.Pointer("ada@example.com"))
	campaign := seedCampaign(t, db, u.ID, models.CampaignSending, nil, ada)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newDispatcher(db, newRecordingMailer()).DispatchNow(ctx, campaign.ID)
	assert.Error(t, err)

	var stored models.EmailCampaign
	require.NoError(t, db.First(&stored, campaign.ID).Error)
	assert.Equal(t, models.CampaignScheduled, stored.Status)
	require.NotNil(t, stored.ScheduledFor)
	assert.True(t, stored.ScheduledFor.Equal(testNow))
}

// cancellingMailer records like recordingMailer and cancels the sweep
// context right after the first successful send
type cancellingMailer struct {
	*recordingMailer
	cancel context.CancelFunc
	once   sync.Once
}

func (m *cancellingMailer) Send(ctx context.Context, email utils.Email) error {
	if err := m.recordingMailer.Send(ctx, email); err != nil {
		return err
	}
	m.once.Do(m.cancel)
	return nil
}

func TestInterruptedScheduledCampaignResumes(t *testing.T) {
	db := newTestDB(t)
	u := seedUser(t, db, "owner@example.com")
	ada := seedContact(t, db, u.ID, "Ada", utils.Pointer("ada@example.com"))
	bob := seedContact(t, db, u.ID, "Bob", utils.Pointer("bob@example.com"))
	past := testNow.Add(-time.Minute)
	campaign := seedCampaign(t, db, u.ID, models.CampaignScheduled, &past, ada, bob)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &cancellingMailer{recordingMailer: newRecordingMailer(), cancel: cancel}
	n, err := newDispatcher(db, first).ProcessScheduled(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	require.Len(t, first.Sent(), 1)

	// the mailed recipient is recorded and the campaign is due again
	statuses := recipientStatuses(t, db, campaign.ID)
	assert.Equal(t, models.RecipientSent, statuses[ada.ID])
	assert.Equal(t, models.RecipientPending, statuses[bob.ID])
	var stored models.EmailCampaign
	require.NoError(t, db.First(&stored, campaign.ID).Error)
	assert.Equal(t, models.CampaignScheduled, stored.Status)

	second := newRecordingMailer()
	n, err = newDispatcher(db, second).ProcessScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	sent := second.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "bob@example.com", sent[0].To)

	statuses = recipientStatuses(t, db, campaign.ID)
	assert.Equal(t, models.RecipientSent, statuses[bob.ID])
	require.NoError(t, db.First(&stored, campaign.ID).Error)
	assert.Equal(t, models.CampaignSent, stored.Status)
}
