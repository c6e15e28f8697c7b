package communication

// Message type constants for the file coordination protocol.
const (
	// Worker -> coordinator
	MessageTypeFileRequest      = "file_request"
	MessageTypeFileRelease      = "file_release"
	MessageTypeRegisterWorker   = "register_worker"
	MessageTypeWorkerHeartbeat  = "worker_heartbeat"
	MessageTypeDeregisterWorker = "deregister_worker"
	MessageTypeTrackedFiles     = "tracked_files"
	MessageTypeListWorkers      = "list_workers"

	// Coordinator -> worker
	MessageTypeFileGrant = "file_grant"
)

// Grant actions. All three are exclusive holds on the resolved file; the
// distinction exists so hooks can tell read-triggered from write-triggered
// resolution apart.
const (
	ActionLock   = "lock"
	ActionAccess = "access"
	ActionUnlink = "unlink"
)

// File scope controls how explicit names resolve to paths.
const (
	ScopeGlobal = "global"
	ScopeWorker = "worker"
)

// FileMetadata describes the file a worker wants a grant for.
type FileMetadata struct {
	Extension string `json:"extension"`
	Name      string `json:"name,omitempty"`
	Scope     string `json:"scope,omitempty"`
}

type FileRequest struct {
	Action   string       `json:"action"`
	OwnerID  string       `json:"ownerId"`
	Metadata FileMetadata `json:"metadata"`
}

// FileRequestResponse is the synchronous reply to a FileRequest. The grant
// itself arrives later as a FileGrant push.
type FileRequestResponse struct {
	RequestID string `json:"requestId"`
}

type FileGrant struct {
	RequestID string `json:"requestId"`
	Path      string `json:"path"`
}

type FileRelease struct {
	RequestID string `json:"requestId"`
}

type RegisterWorkerRequest struct {
	WorkerID string `json:"workerId"`
	Address  string `json:"address"`
}

type WorkerHeartbeat struct {
	WorkerID string `json:"workerId"`
}

type DeregisterWorkerRequest struct {
	WorkerID string `json:"workerId"`
}

type TrackedFilesRequest struct{}

// TrackedFile mirrors the coordinator's view of one coordinated path.
type TrackedFile struct {
	Path        string `json:"path"`
	HolderID    string `json:"holderId,omitempty"`
	HolderOwner string `json:"holderOwner,omitempty"`
	QueuedCount int    `json:"queuedCount"`
}

type TrackedFilesResponse struct {
	Files []TrackedFile `json:"files"`
}

type ListWorkersRequest struct{}

type WorkerInfo struct {
	WorkerID string `json:"workerId"`
	Address  string `json:"address"`
	Status   string `json:"status"`
}

type ListWorkersResponse struct {
	Workers []WorkerInfo `json:"workers"`
}
