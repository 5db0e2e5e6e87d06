package builder

// Maintenance is the contract the external watcher and scheduler drive.
// It is agnostic to OS-event debouncing policy: the watcher maps
// debounced create/modify/rename/delete events onto these calls.
type Maintenance interface {
	Create(fi FileInfo) (Result, error)
	Update(fi FileInfo, cancel *CancelToken) (Result, error)
	Delete(path string) (Result, error)
	RenameFile(oldPath, newPath string) (Result, error)
	RenameFolder(oldPrefix, newPrefix string, cancel *CancelToken) (Result, error)
	Commit() error
	DeleteAll() error
	GetAllIndexed() ([]IndexedFile, error)
	BuildByBatch(files []FileInfo, commit, triggerMerge, applyDeletes bool, cancel *CancelToken, batchSize int) ([]string, error)
}

var _ Maintenance = (*Builder)(nil)
