package interfaces

// Repository defines the storage capability set for the sync engine.
// Two implementations exist: an in-memory backend for environments without
// a configured backing store, and a Supabase (PostgREST) backend.
type Repository interface {
	Record() RecordRepository
	Run() RunRepository
	Lock() LockRepository
	Alert() AlertRepository
	SheetOutbox() OutboxRepository
	NotificationOutbox() OutboxRepository

	Close() error
}
