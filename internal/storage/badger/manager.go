package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
)

// Manager owns the Badger connection and the typed stores built on it
type Manager struct {
	db            *BadgerDB
	jobs          interfaces.JobStorage
	content       interfaces.ContentStorage
	users         interfaces.UserStorage
	notifications interfaces.NotificationStorage
	analytics     interfaces.AnalyticsStorage
	logger        arbor.ILogger
}

// NewManager opens the database and wires all typed stores
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:            db,
		jobs:          NewJobStorage(db, logger),
		content:       NewContentStorage(db, logger),
		users:         NewUserStorage(db, logger),
		notifications: NewNotificationStorage(db, logger),
		analytics:     NewAnalyticsStorage(db, logger),
		logger:        logger,
	}, nil
}

func (m *Manager) Jobs() interfaces.JobStorage                   { return m.jobs }
func (m *Manager) Content() interfaces.ContentStorage            { return m.content }
func (m *Manager) Users() interfaces.UserStorage                 { return m.users }
func (m *Manager) Notifications() interfaces.NotificationStorage { return m.notifications }
func (m *Manager) Analytics() interfaces.AnalyticsStorage        { return m.analytics }

// DB exposes the connection for components that need raw Badger access.
func (m *Manager) DB() *BadgerDB { return m.db }

func (m *Manager) Close() error {
	return m.db.Close()
}
