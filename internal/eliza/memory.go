package eliza

// MemoryStack holds replies saved for later turns. It is bounded; pushing
// onto a full stack drops the oldest entry, and entries come back out oldest
// first.
type MemoryStack struct {
	entries  []string
	capacity int
}

// NewMemoryStack returns a stack holding at most capacity entries. A
// capacity of zero or less disables memory.
func NewMemoryStack(capacity int) *MemoryStack {
	if capacity < 0 {
		capacity = 0
	}
	return &MemoryStack{capacity: capacity}
}

// Push stores entry, evicting the oldest entry when full.
func (m *MemoryStack) Push(entry string) {
	if m.capacity == 0 {
		return
	}
	if len(m.entries) == m.capacity {
		copy(m.entries, m.entries[1:])
		m.entries = m.entries[:len(m.entries)-1]
	}
	m.entries = append(m.entries, entry)
}

// PopIfAny removes and returns the oldest entry.
func (m *MemoryStack) PopIfAny() (string, bool) {
	if len(m.entries) == 0 {
		return "", false
	}
	entry := m.entries[0]
	m.entries = m.entries[1:]
	return entry, true
}

func (m *MemoryStack) Len() int { return len(m.entries) }

func (m *MemoryStack) Cap() int { return m.capacity }

// Reset drops every entry.
func (m *MemoryStack) Reset() {
	m.entries = nil
}
