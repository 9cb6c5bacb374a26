package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/atelier/internal/models"
)

// JobListOptions - filtering and paging for job listings
type JobListOptions struct {
	UserID string
	Status models.JobStatus
	Kind   models.JobKind

	// CompletedAfter and CompletedBefore bound CompletedAt (inclusive lower,
	// exclusive upper). Zero values disable a bound; jobs without a
	// completion stamp never match a bounded query.
	CompletedAfter  time.Time
	CompletedBefore time.Time

	Limit  int
	Offset int
}

// JobStorage - interface for generation job persistence
type JobStorage interface {
	// InsertJob assigns a monotonic id and persists the row.
	InsertJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uint64) (*models.Job, error)
	// UpdateJob re-reads the row and applies mutate under the store lock.
	// mutate returning an error aborts the write and surfaces that error.
	UpdateJob(ctx context.Context, id uint64, mutate func(*models.Job) error) (*models.Job, error)
	ListJobs(ctx context.Context, opts JobListOptions) ([]*models.Job, error)
	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)
	DeleteJob(ctx context.Context, id uint64) error
}

// ContentStorage - interface for artifact catalog persistence
type ContentStorage interface {
	InsertContent(ctx context.Context, content *models.Content) error
	GetContent(ctx context.Context, id uint64) (*models.Content, error)
	ListContentByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Content, error)
	DeleteContent(ctx context.Context, id uint64) error
}

// UserStorage - interface for user lookups
type UserStorage interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	StoreUser(ctx context.Context, user *models.User) error
}

// NotificationStorage - interface for per-user notification persistence
type NotificationStorage interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id uint64) error
}

// AnalyticsStorage - interface for raw analytics rows and hourly rollups
type AnalyticsStorage interface {
	// Raw rows (transfer target)
	InsertRouteRows(ctx context.Context, rows []*models.RouteAnalyticsRow) error
	InsertGenerationRows(ctx context.Context, rows []*models.GenerationEventRow) error
	RouteRowsInWindow(ctx context.Context, from, to time.Time) ([]*models.RouteAnalyticsRow, error)
	GenerationRowsInWindow(ctx context.Context, from, to time.Time) ([]*models.GenerationEventRow, error)

	// Rollups (idempotent on natural keys)
	UpsertRouteHourly(ctx context.Context, row *models.RouteAnalyticsHourly) error
	UpsertGenerationHourly(ctx context.Context, row *models.GenerationMetricsHourly) error
	RouteHourliesInWindow(ctx context.Context, from, to time.Time) ([]*models.RouteAnalyticsHourly, error)
	GenerationHourliesInWindow(ctx context.Context, from, to time.Time) ([]*models.GenerationMetricsHourly, error)

	// Model cardinality (daily refresh)
	UpsertModelUsage(ctx context.Context, usage *models.ModelUsage) error
	ListModelUsage(ctx context.Context) ([]*models.ModelUsage, error)
}

// StorageManager - owns the embedded database and typed stores
type StorageManager interface {
	Jobs() JobStorage
	Content() ContentStorage
	Users() UserStorage
	Notifications() NotificationStorage
	Analytics() AnalyticsStorage
	Close() error
}
