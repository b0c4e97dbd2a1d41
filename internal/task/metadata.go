package task

import (
	"sync"
	"time"

	"github.com/Vampouille/georchestra/internal/idgen"
)

// NowFunc returns the current time. Override in tests for determinism.
var NowFunc = time.Now

// Metadata is the mutable execution record of one task instance.
//
// The uuid is assigned once and shared by every clone of the same logical
// task. Everything else belongs to this instance only.
type Metadata struct {
	uuid string
	name string

	mu              sync.RWMutex
	priority        Priority
	state           State
	stateChangeTime time.Time
	seq             uint64
	handle          Handle
	lastErr         string
}

// NewMetadata creates a WAITING record with a fresh uuid.
func NewMetadata(name string, p Priority) *Metadata {
	if !p.Valid() {
		p = DefaultPriority
	}
	return &Metadata{
		uuid:            idgen.New(),
		name:            name,
		priority:        p,
		state:           StateWaiting,
		stateChangeTime: NowFunc(),
	}
}

func (m *Metadata) UUID() string { return m.uuid }
func (m *Metadata) Name() string { return m.name }

func (m *Metadata) Priority() Priority {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.priority
}

func (m *Metadata) SetPriority(p Priority) {
	m.mu.Lock()
	m.priority = p
	m.mu.Unlock()
}

func (m *Metadata) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Metadata) StateChangeTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateChangeTime
}

func (m *Metadata) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.stateChangeTime = NowFunc()
	m.mu.Unlock()
}

func (m *Metadata) SetWaiting()   { m.setState(StateWaiting) }
func (m *Metadata) SetRunning()   { m.setState(StateRunning) }
func (m *Metadata) SetPaused()    { m.setState(StatePaused) }
func (m *Metadata) SetCancelled() { m.setState(StateCancelled) }

// SetCompleted marks natural completion. A non-nil err is kept for diagnostics;
// the task is still COMPLETED.
func (m *Metadata) SetCompleted(err error) {
	m.mu.Lock()
	m.state = StateCompleted
	m.stateChangeTime = NowFunc()
	if err != nil {
		m.lastErr = err.Error()
	} else {
		m.lastErr = ""
	}
	m.mu.Unlock()
}

func (m *Metadata) IsWaiting() bool   { return m.State() == StateWaiting }
func (m *Metadata) IsPaused() bool    { return m.State() == StatePaused }
func (m *Metadata) IsCompleted() bool { return m.State() == StateCompleted }

// Seq is the submission sequence used to break priority ties.
func (m *Metadata) Seq() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq
}

func (m *Metadata) SetSeq(seq uint64) {
	m.mu.Lock()
	m.seq = seq
	m.mu.Unlock()
}

// Handle returns the execution handle, nil until the instance is submitted.
func (m *Metadata) Handle() Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handle
}

func (m *Metadata) SetHandle(h Handle) {
	m.mu.Lock()
	m.handle = h
	m.mu.Unlock()
}

// Live reports whether the instance has a handle that is neither done nor cancelled.
func (m *Metadata) Live() bool {
	h := m.Handle()
	return h != nil && !h.Done() && !h.Cancelled()
}

func (m *Metadata) Err() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Copy returns an independent record for the same logical task. The handle is
// not copied: a copy has never been submitted.
func (m *Metadata) Copy() *Metadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Metadata{
		uuid:            m.uuid,
		name:            m.name,
		priority:        m.priority,
		state:           m.state,
		stateChangeTime: m.stateChangeTime,
		seq:             m.seq,
		lastErr:         m.lastErr,
	}
}

// Info is an immutable snapshot of a metadata record for observability.
type Info struct {
	UUID            string    `json:"uuid"`
	Name            string    `json:"name,omitempty"`
	Priority        Priority  `json:"priority"`
	State           State     `json:"state"`
	StateChangeTime time.Time `json:"state_change_time"`
	Seq             uint64    `json:"seq"`
	Submitted       bool      `json:"submitted"`
	Done            bool      `json:"done"`
	Cancelled       bool      `json:"cancelled"`
	Error           string    `json:"error,omitempty"`
}

func (m *Metadata) Info() Info {
	m.mu.RLock()
	h := m.handle
	info := Info{
		UUID:            m.uuid,
		Name:            m.name,
		Priority:        m.priority,
		State:           m.state,
		StateChangeTime: m.stateChangeTime,
		Seq:             m.seq,
		Error:           m.lastErr,
	}
	m.mu.RUnlock()

	if h != nil {
		info.Submitted = true
		info.Done = h.Done()
		info.Cancelled = h.Cancelled()
	}
	return info
}
