package ledger

import "sync"

// Memory remembers the last phone seen in each topic. Last write wins and
// entries live for the whole process.
type Memory struct {
	mu     sync.RWMutex
	phones map[Conversation]PhoneID
}

// NewMemory returns an empty phone memory.
func NewMemory() *Memory {
	return &Memory{phones: make(map[Conversation]PhoneID)}
}

// Remember stores phone as the latest one seen in the topic. Empty phones are ignored.
func (m *Memory) Remember(groupID, topicID int64, phone PhoneID) {
	if phone == "" {
		return
	}
	m.mu.Lock()
	m.phones[Conversation{GroupID: groupID, TopicID: topicID}] = phone
	m.mu.Unlock()
}

// Recall returns the latest phone seen in the topic.
func (m *Memory) Recall(groupID, topicID int64) (PhoneID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	phone, ok := m.phones[Conversation{GroupID: groupID, TopicID: topicID}]
	return phone, ok
}
