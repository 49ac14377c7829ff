package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// PublisherMock stands in for the broker publisher and keeps every published
// event so async publishers can be inspected after the fact.
type PublisherMock struct {
	mock.Mock

	mu        sync.Mutex
	published []Published
}

// Published is one recorded Publish call.
type Published struct {
	RoutingKey string
	Event      any
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	m.mu.Lock()
	m.published = append(m.published, Published{RoutingKey: routingKey, Event: event})
	m.mu.Unlock()

	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// PublishedTo returns the events published under routingKey, oldest first.
func (m *PublisherMock) PublishedTo(routingKey string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, p := range m.published {
		if p.RoutingKey == routingKey {
			out = append(out, p.Event)
		}
	}
	return out
}
