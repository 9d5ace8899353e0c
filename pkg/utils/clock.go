// Package utils provides logging and clock utilities.
package utils

import (
	"sync"
	"time"
)

// Clock provides an interface for time operations, making timing code testable.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since the given time.
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// NewRealClock creates a new RealClock instance.
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now returns the current time.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the duration since the given time.
func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock implements Clock for tests. It only moves when told to and is
// safe to read from many workers at once.
type MockClock struct {
	mu          sync.RWMutex
	currentTime time.Time
	step        time.Duration
}

// NewMockClock creates a new MockClock starting at startTime.
func NewMockClock(startTime time.Time) *MockClock {
	return &MockClock{currentTime: startTime}
}

// NewSteppingMockClock creates a MockClock that advances by step after every
// call to Now, so each start/stop pair observes exactly step elapsed.
func NewSteppingMockClock(startTime time.Time, step time.Duration) *MockClock {
	return &MockClock{currentTime: startTime, step: step}
}

// Now returns the mock current time.
func (c *MockClock) Now() time.Time {
	if c.step == 0 {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.currentTime
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.currentTime
	c.currentTime = c.currentTime.Add(c.step)
	return now
}

// Since returns the duration since the given time using mock time.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance advances the mock clock by the given duration.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = c.currentTime.Add(d)
}

// Set sets the mock clock to the given time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = t
}
