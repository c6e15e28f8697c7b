package log_service

// NoOpLogService discards all events. Used in tests and as the fallback
// when no logger is configured.
type NoOpLogService struct{}

func NewNoOpLogService() *NoOpLogService { return &NoOpLogService{} }

func (ls *NoOpLogService) Debug(event LogEvent) {}
func (ls *NoOpLogService) Info(event LogEvent)  {}
func (ls *NoOpLogService) Warn(event LogEvent)  {}
func (ls *NoOpLogService) Error(event LogEvent) {}

var _ LogService = (*NoOpLogService)(nil)
