package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/civicconnect/civic-backend/internal/users"
	"github.com/civicconnect/civic-backend/pkg/db/dbtest"
	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/email"
	"github.com/civicconnect/civic-backend/pkg/enums"
	"github.com/civicconnect/civic-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type publishCall struct {
	Room    string
	Event   string
	Payload any
}

// fakePublisher reports a fixed subscriber count per room.
type fakePublisher struct {
	mu          sync.Mutex
	calls       []publishCall
	subscribers map[string]int
}

func (f *fakePublisher) Publish(room, event string, payload any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{Room: room, Event: event, Payload: payload})
	return f.subscribers[room]
}

func (f *fakePublisher) callsTo(room string) []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishCall
	for _, c := range f.calls {
		if c.Room == room {
			out = append(out, c)
		}
	}
	return out
}

type fakeSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type dispatchFixture struct {
	conn *gorm.DB
	repo Repository
	pub  *fakePublisher
	mail *fakeSender
	d    *Dispatcher
	now  time.Time
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &dispatchFixture{
		conn: conn,
		repo: NewRepository(conn),
		pub:  &fakePublisher{subscribers: map[string]int{}},
		mail: &fakeSender{},
		now:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	d, err := NewDispatcher(DispatcherParams{
		Repo:         f.repo,
		Users:        users.NewRepository(conn),
		Publisher:    f.pub,
		Email:        f.mail,
		EmailEnabled: true,
		LinkBase:     "https://civic.example",
		Logger:       logger.Nop(),
		Now:          func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.d = d
	return f
}

func (f *dispatchFixture) user(t *testing.T, role enums.UserRole) *models.User {
	t.Helper()
	return dbtest.SeedUser(t, f.conn, role)
}

func (f *dispatchFixture) deactivate(t *testing.T, u *models.User) {
	t.Helper()
	require.NoError(t, f.conn.Model(&models.User{}).Where("id = ?", u.ID).Update("is_active", false).Error)
}

func (f *dispatchFixture) recordsFor(t *testing.T, recipient uuid.UUID) []models.Notification {
	t.Helper()
	var rows []models.Notification
	require.NoError(t, f.conn.Where("recipient_id = ?", recipient).Order("created_at ASC, id ASC").Find(&rows).Error)
	return rows
}

func (f *dispatchFixture) recordsOfKind(t *testing.T, recipient uuid.UUID, kind enums.NotificationKind) []models.Notification {
	t.Helper()
	var rows []models.Notification
	require.NoError(t, f.conn.Where("recipient_id = ? AND kind = ?", recipient, kind).Order("created_at ASC, id ASC").Find(&rows).Error)
	return rows
}

// advance moves the fixture clock so records from successive events sort by
// creation time.
func (f *dispatchFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *dispatchFixture) total(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.Notification{}).Count(&n).Error)
	return n
}

func newIssue(reporter uuid.UUID) *models.Issue {
	return &models.Issue{
		ID:           uuid.New(),
		Title:        "Broken traffic signal",
		Description:  "Signal stuck on red at the junction",
		Category:     enums.IssueCategoryRoadTraffic,
		Status:       enums.IssueStatusReported,
		Priority:     enums.PriorityMedium,
		ReportedBy:   reporter,
		LocationName: "MG Road junction",
		Latitude:     12.9716,
		Longitude:    77.5946,
	}
}

func seedRecords(t *testing.T, repo Repository, recipient uuid.UUID, base time.Time, n int) []models.Notification {
	t.Helper()
	records := make([]models.Notification, n)
	for i := range records {
		records[i] = models.Notification{
			ID:          uuid.New(),
			RecipientID: recipient,
			Kind:        enums.NotificationKindCommentAdded,
			Title:       "New Comment on Your Issue",
			Message:     "someone commented",
			Priority:    enums.PriorityMedium,
			Active:      true,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
	}
	require.NoError(t, repo.CreateBatch(context.Background(), records))
	return records
}
