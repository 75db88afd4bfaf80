package memory

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/domain/interfaces"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = goerr.New("not found")

// Memory is the in-memory repository backend. It serves environments
// without a configured backing store and the test suite. State lives for
// the process lifetime only.
type Memory struct {
	record       *recordRepository
	run          *runRepository
	lock         *lockRepository
	alert        *alertRepository
	sheet        *outboxRepository
	notification *outboxRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		record:       newRecordRepository(),
		run:          newRunRepository(),
		lock:         newLockRepository(),
		alert:        newAlertRepository(),
		sheet:        newOutboxRepository(),
		notification: newOutboxRepository(),
	}
}

func (m *Memory) Record() interfaces.RecordRepository {
	return m.record
}

func (m *Memory) Run() interfaces.RunRepository {
	return m.run
}

func (m *Memory) Lock() interfaces.LockRepository {
	return m.lock
}

func (m *Memory) Alert() interfaces.AlertRepository {
	return m.alert
}

func (m *Memory) SheetOutbox() interfaces.OutboxRepository {
	return m.sheet
}

func (m *Memory) NotificationOutbox() interfaces.OutboxRepository {
	return m.notification
}

func (m *Memory) Close() error {
	return nil
}
