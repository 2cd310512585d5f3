package eventlog

import (
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is the number of lines retained when no capacity is configured.
const DefaultCapacity = 50

// timeLayout is the wall-clock prefix rendered in front of every line.
const timeLayout = "15:04:05"

// Logger defines the structured logging interface used to mirror log lines.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Entry is a single timestamped log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String renders the entry as "[HH:MM:SS] message".
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format(timeLayout), e.Message)
}

// Listener is called for every appended entry, in the order entries enter
// the ring. Listeners run one at a time and must not call Append.
type Listener func(Entry)

// Log is a fixed-capacity ring of entries, oldest evicted first.
type Log struct {
	// dispatchMu is held from insertion until listeners return, so listeners
	// observe entries in ring order. It is always taken before mu.
	dispatchMu sync.Mutex

	mu       sync.Mutex
	entries  []Entry // ring storage, len == capacity once full
	start    int     // index of the oldest entry
	count    int
	capacity int

	listenersMu sync.RWMutex
	listeners   []Listener

	logger Logger
	now    func() time.Time
}

// New creates a Log holding at most capacity entries.
// A capacity below one falls back to DefaultCapacity.
func New(capacity int) *Log {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries:  make([]Entry, capacity),
		capacity: capacity,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger mirrors every appended line to the given structured logger.
func (l *Log) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.logger = logger
}

// Subscribe registers a listener for appended entries.
func (l *Log) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	l.listenersMu.Lock()
	l.listeners = append(l.listeners, fn)
	l.listenersMu.Unlock()
}

// Append records one line. When the log is full the oldest line is evicted
// in the same critical section.
func (l *Log) Append(message string) Entry {
	l.dispatchMu.Lock()
	defer l.dispatchMu.Unlock()

	l.mu.Lock()
	e := Entry{Time: l.now(), Message: message}
	if l.count < l.capacity {
		l.entries[(l.start+l.count)%l.capacity] = e
		l.count++
	} else {
		l.entries[l.start] = e
		l.start = (l.start + 1) % l.capacity
	}
	l.mu.Unlock()

	l.logger.Info("event log", "message", message)

	l.listenersMu.RLock()
	listeners := l.listeners
	l.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(e)
	}
	return e
}

// Appendf formats according to a format specifier and appends the result.
func (l *Log) Appendf(format string, args ...any) Entry {
	return l.Append(fmt.Sprintf(format, args...))
}

// Recent returns a snapshot of the retained entries, oldest first.
func (l *Log) Recent() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.entries[(l.start+i)%l.capacity]
	}
	return out
}

// Lines returns the retained entries rendered as strings, oldest first.
func (l *Log) Lines() []string {
	recent := l.Recent()
	lines := make([]string, len(recent))
	for i, e := range recent {
		lines[i] = e.String()
	}
	return lines
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Capacity returns the maximum number of retained entries.
func (l *Log) Capacity() int {
	return l.capacity
}
