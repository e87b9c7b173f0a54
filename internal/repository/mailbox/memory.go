package mailbox

import (
	"context"
	"sort"
	"sync"

	"zax_relay/internal/model"
)

type (
	MemoryStore struct {
		mu    sync.RWMutex
		boxes map[model.HPK]*memoryBox
	}

	// memoryBox keeps messages sorted by ID, which is also insertion order
	// because IDs only grow.
	memoryBox struct {
		messages []model.StoredMessage
		nextID   int64
	}
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		boxes: make(map[model.HPK]*memoryBox),
	}
}

func (s *MemoryStore) Append(_ context.Context, to model.HPK, msg *model.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boxes[to]
	if !ok {
		b = &memoryBox{}
		s.boxes[to] = b
	}
	b.nextID++
	msg.ID = b.nextID
	b.messages = append(b.messages, *msg)
	return nil
}

func (s *MemoryStore) Count(_ context.Context, hpk model.HPK) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.boxes[hpk]; ok {
		return len(b.messages), nil
	}
	return 0, nil
}

func (s *MemoryStore) ReadRange(_ context.Context, hpk model.HPK, start, limit int) ([]model.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []model.StoredMessage
	if b, ok := s.boxes[hpk]; ok {
		messages = b.messages
	}
	if err := checkRange(start, len(messages)); err != nil {
		return nil, err
	}

	end := min(start+limit, len(messages))
	if start >= end {
		return []model.StoredMessage{}, nil
	}
	out := make([]model.StoredMessage, end-start)
	copy(out, messages[start:end])
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, hpk model.HPK, ids ...int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boxes[hpk]
	if !ok {
		return nil
	}
	for _, id := range ids {
		i := sort.Search(len(b.messages), func(i int) bool { return b.messages[i].ID >= id })
		if i < len(b.messages) && b.messages[i].ID == id {
			b.messages = append(b.messages[:i], b.messages[i+1:]...)
		}
	}
	return nil
}
