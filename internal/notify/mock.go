package notify

import "context"

// MockDispatcher records dispatched events for test assertions.
type MockDispatcher struct {
	// DispatchFunc allows customizing dispatch behavior.
	DispatchFunc func(ctx context.Context, event Event) error

	// Events stores everything dispatched.
	Events []Event
}

// Compile-time check that MockDispatcher implements Dispatcher.
var _ Dispatcher = (*MockDispatcher)(nil)

// NewMockDispatcher creates a new mock dispatcher.
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

// Dispatch records the event.
func (m *MockDispatcher) Dispatch(ctx context.Context, event Event) error {
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, event)
	}
	m.Events = append(m.Events, event)
	return nil
}

// TypesDispatched returns the event types in dispatch order.
func (m *MockDispatcher) TypesDispatched() []EventType {
	types := make([]EventType, len(m.Events))
	for i, e := range m.Events {
		types[i] = e.Type
	}
	return types
}
