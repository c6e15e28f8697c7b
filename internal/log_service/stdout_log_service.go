package log_service

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type StdoutLogService struct {
	nodeID   string
	mu       sync.Mutex
	logger   *log.Logger
	minLevel int
}

func NewStdoutLogService(nodeID string, minLogLevel ...string) *StdoutLogService {
	service := &StdoutLogService{
		nodeID:   nodeID,
		logger:   log.New(os.Stdout, "", 0),
		minLevel: InfoLevelValue,
	}

	if len(minLogLevel) > 0 && minLogLevel[0] != "" {
		service.SetMinLogLevel(minLogLevel[0])
	}

	return service
}

func (ls *StdoutLogService) SetMinLogLevel(level string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.minLevel = GetLevelValue(strings.ToUpper(strings.TrimSpace(level)))
}

func formatLog(level string, event LogEvent) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	meta := ""
	for k, v := range event.Metadata {
		meta += fmt.Sprintf("%s=%v ", k, v)
	}

	return fmt.Sprintf("%s [%s] %s: %s %s", ts.Format(time.RFC3339), event.NodeID, level, event.Message, meta)
}

func (ls *StdoutLogService) log(level string, event LogEvent) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if GetLevelValue(level) < ls.minLevel {
		return
	}

	event.NodeID = ls.nodeID
	ls.logger.Print(formatLog(level, event))
}

func (ls *StdoutLogService) Debug(event LogEvent) { ls.log(DebugLevel, event) }
func (ls *StdoutLogService) Info(event LogEvent)  { ls.log(InfoLevel, event) }
func (ls *StdoutLogService) Warn(event LogEvent)  { ls.log(WarnLevel, event) }
func (ls *StdoutLogService) Error(event LogEvent) { ls.log(ErrorLevel, event) }

var _ LogService = (*StdoutLogService)(nil)
