package space

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"yqhp/task-space/pkg/types"
)

// InMemoryComputerRegistry implements ComputerRegistry using in-memory storage.
type InMemoryComputerRegistry struct {
	computers map[int]*types.ComputerInfo
	status    map[int]*types.ComputerStatus

	// Event subscribers
	subscribers []chan *types.ComputerEvent
	subMu       sync.RWMutex

	mu sync.RWMutex
}

// NewInMemoryComputerRegistry creates a new in-memory computer registry.
func NewInMemoryComputerRegistry() *InMemoryComputerRegistry {
	return &InMemoryComputerRegistry{
		computers:   make(map[int]*types.ComputerInfo),
		status:      make(map[int]*types.ComputerStatus),
		subscribers: make([]chan *types.ComputerEvent, 0),
	}
}

// Register records a new computer.
func (r *InMemoryComputerRegistry) Register(ctx context.Context, info *types.ComputerInfo) error {
	if info == nil {
		return fmt.Errorf("computer cannot be nil")
	}
	if info.ID <= 0 {
		return fmt.Errorf("invalid computer ID: %d", info.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.computers[info.ID]; exists {
		return fmt.Errorf("computer already registered: %d", info.ID)
	}

	r.computers[info.ID] = info
	r.status[info.ID] = &types.ComputerStatus{
		State:    types.ComputerStateOnline,
		LastSeen: time.Now(),
	}

	r.notifyEvent(&types.ComputerEvent{
		Type:       types.ComputerEventRegistered,
		ComputerID: info.ID,
		Computer:   info,
	})

	return nil
}

// Unregister removes a computer.
func (r *InMemoryComputerRegistry) Unregister(ctx context.Context, computerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, exists := r.computers[computerID]
	if !exists {
		return fmt.Errorf("computer not found: %d", computerID)
	}

	delete(r.computers, computerID)
	delete(r.status, computerID)

	r.notifyEvent(&types.ComputerEvent{
		Type:       types.ComputerEventUnregistered,
		ComputerID: computerID,
		Computer:   info,
	})

	return nil
}

// UpdateStatus replaces a computer's status.
func (r *InMemoryComputerRegistry) UpdateStatus(ctx context.Context, computerID int, status *types.ComputerStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.computers[computerID]; !exists {
		return fmt.Errorf("computer not found: %d", computerID)
	}

	old := r.status[computerID]
	r.status[computerID] = status

	if old != nil && old.State != status.State && status.State == types.ComputerStateOffline {
		r.notifyEvent(&types.ComputerEvent{
			Type:       types.ComputerEventOffline,
			ComputerID: computerID,
			Computer:   r.computers[computerID],
		})
	}

	return nil
}

// Touch records a successful contact with the computer.
func (r *InMemoryComputerRegistry) Touch(ctx context.Context, computerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.status[computerID]
	if !exists {
		return fmt.Errorf("computer not found: %d", computerID)
	}

	updated := *status
	updated.LastSeen = time.Now()
	updated.Failures = 0
	r.status[computerID] = &updated
	return nil
}

// GetComputer returns a single computer's information.
func (r *InMemoryComputerRegistry) GetComputer(ctx context.Context, computerID int) (*types.ComputerInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.computers[computerID]
	if !exists {
		return nil, fmt.Errorf("computer not found: %d", computerID)
	}
	return info, nil
}

// GetComputerStatus returns a copy of a computer's current status.
func (r *InMemoryComputerRegistry) GetComputerStatus(ctx context.Context, computerID int) (*types.ComputerStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, exists := r.status[computerID]
	if !exists {
		return nil, fmt.Errorf("computer not found: %d", computerID)
	}
	c := *status
	return &c, nil
}

// ListComputers lists all computers matching the filter, ordered by ID.
func (r *InMemoryComputerRegistry) ListComputers(ctx context.Context, filter *ComputerFilter) ([]*types.ComputerInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*types.ComputerInfo, 0, len(r.computers))
	for id, info := range r.computers {
		if filter != nil && !r.matchesFilter(id, info, filter) {
			continue
		}
		result = append(result, info)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *InMemoryComputerRegistry) matchesFilter(id int, info *types.ComputerInfo, filter *ComputerFilter) bool {
	if len(filter.States) > 0 {
		status := r.status[id]
		if status == nil {
			return false
		}
		found := false
		for _, s := range filter.States {
			if status.State == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for key, value := range filter.Labels {
		if v, ok := info.Labels[key]; !ok || v != value {
			return false
		}
	}

	return true
}

// GetOnlineComputers returns all online computers.
func (r *InMemoryComputerRegistry) GetOnlineComputers(ctx context.Context) ([]*types.ComputerInfo, error) {
	return r.ListComputers(ctx, &ComputerFilter{
		States: []types.ComputerState{types.ComputerStateOnline},
	})
}

// WatchComputers watches for computer events until ctx is done.
func (r *InMemoryComputerRegistry) WatchComputers(ctx context.Context) (<-chan *types.ComputerEvent, error) {
	ch := make(chan *types.ComputerEvent, 100)

	r.subMu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.subMu.Unlock()

	go func() {
		<-ctx.Done()
		r.removeSubscriber(ch)
		close(ch)
	}()

	return ch, nil
}

func (r *InMemoryComputerRegistry) notifyEvent(event *types.ComputerEvent) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	for _, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}

func (r *InMemoryComputerRegistry) removeSubscriber(ch chan *types.ComputerEvent) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for i, sub := range r.subscribers {
		if sub == ch {
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered computers.
func (r *InMemoryComputerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.computers)
}
