// Package observability aggregates relay counters and process self-stats.
package observability

import (
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/shirou/gopsutil/process"
)

// Stats is one consistent snapshot of the relay counters plus the
// process metrics gopsutil could collect at snapshot time.
type Stats struct {
	SessionsOpened   uint64
	SessionsClosed   uint64
	MessagesRelayed  uint64
	PrivateMessages  uint64
	FilesStored      uint64
	FilesServed      uint64
	TransferErrors   uint64
	BytesTransferred uint64

	RSSBytes   uint64
	CPUPercent float64
}

// Monitor is safe for concurrent use; counters are atomics.
type Monitor struct {
	log  *slog.Logger
	proc *process.Process

	sessionsOpened   uint64
	sessionsClosed   uint64
	messagesRelayed  uint64
	privateMessages  uint64
	filesStored      uint64
	filesServed      uint64
	transferErrors   uint64
	bytesTransferred uint64
}

func NewMonitor(log *slog.Logger) (*Monitor, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Monitor{log: log, proc: p}, nil
}

func (m *Monitor) IncrSessionsOpened()  { atomic.AddUint64(&m.sessionsOpened, 1) }
func (m *Monitor) IncrSessionsClosed()  { atomic.AddUint64(&m.sessionsClosed, 1) }
func (m *Monitor) IncrMessagesRelayed() { atomic.AddUint64(&m.messagesRelayed, 1) }
func (m *Monitor) IncrPrivateMessages() { atomic.AddUint64(&m.privateMessages, 1) }
func (m *Monitor) IncrFilesStored()     { atomic.AddUint64(&m.filesStored, 1) }
func (m *Monitor) IncrFilesServed()     { atomic.AddUint64(&m.filesServed, 1) }
func (m *Monitor) IncrTransferErrors()  { atomic.AddUint64(&m.transferErrors, 1) }

func (m *Monitor) AddBytesTransferred(n uint64) {
	atomic.AddUint64(&m.bytesTransferred, n)
}

// Snapshot collects the counters and best-effort process stats. A gopsutil
// failure leaves the corresponding fields at zero; it is logged at debug
// level only since snapshots run on a timer.
func (m *Monitor) Snapshot() Stats {
	s := Stats{
		SessionsOpened:   atomic.LoadUint64(&m.sessionsOpened),
		SessionsClosed:   atomic.LoadUint64(&m.sessionsClosed),
		MessagesRelayed:  atomic.LoadUint64(&m.messagesRelayed),
		PrivateMessages:  atomic.LoadUint64(&m.privateMessages),
		FilesStored:      atomic.LoadUint64(&m.filesStored),
		FilesServed:      atomic.LoadUint64(&m.filesServed),
		TransferErrors:   atomic.LoadUint64(&m.transferErrors),
		BytesTransferred: atomic.LoadUint64(&m.bytesTransferred),
	}

	if memInfo, err := m.proc.MemoryInfo(); err == nil {
		s.RSSBytes = memInfo.RSS
	} else {
		m.log.Debug("Failed to collect memory info", "error", err)
	}
	if cpu, err := m.proc.CPUPercent(); err == nil {
		s.CPUPercent = cpu
	} else {
		m.log.Debug("Failed to collect cpu percent", "error", err)
	}
	return s
}
