package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db      *BadgerDB
	cache   *CacheStorage
	queue   *QueueStorage
	logs    *LogStorage
	kv      *KVStorage
	content *ContentStorage
	lease   *LeaseStorage
	logger  arbor.ILogger
}

// NewManager opens the database and builds every storage on it
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	queue, err := NewQueueStorage(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	manager := &Manager{
		db:      db,
		cache:   NewCacheStorage(db, logger),
		queue:   queue,
		logs:    NewLogStorage(db, logger),
		kv:      NewKVStorage(db, logger),
		content: NewContentStorage(db, logger),
		lease:   NewLeaseStorage(db, "pipeline", logger),
		logger:  logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func (m *Manager) CacheStorage() interfaces.DetailCache {
	return m.cache
}

func (m *Manager) QueueStorage() interfaces.QueueStorage {
	return m.queue
}

func (m *Manager) LogStorage() interfaces.LogStorage {
	return m.logs
}

func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

func (m *Manager) ContentStorage() interfaces.ContentStore {
	return m.content
}

func (m *Manager) LeaseStorage() interfaces.Lease {
	return m.lease
}

// ReclaimSpace runs value log GC on the shared database
func (m *Manager) ReclaimSpace() (int, error) {
	return m.db.ReclaimSpace()
}

// Close releases the queue sequence and closes the database
func (m *Manager) Close() error {
	m.queue.Close()
	return m.db.Close()
}
