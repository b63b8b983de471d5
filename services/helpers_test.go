package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"simpleautomate/config"
	"simpleautomate/models"
	"simpleautomate/utils"
)

var testNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.MigrateDB(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, PasswordHash: "x", SubscriptionStatus: models.SubscriptionTrialing}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedContact(t *testing.T, db *gorm.DB, userID uint, name string, email *string) *models.Contact {
	t.Helper()
	c := &models.Contact{UserID: userID, Name: name, Email: email}
	require.NoError(t, db.Create(c).Error)
	return c
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []utils.Email
	// fail makes every send to this address return an error
	fail map[string]bool
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{fail: map[string]bool{}}
}

func (m *recordingMailer) Send(_ context.Context, email utils.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[email.To] {
		return &utils.DeliveryError{Err: errors.New("mailbox unavailable")}
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *recordingMailer) Sent() []utils.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]utils.Email(nil), m.sent...)
}
