package errutil

import (
	"errors"
	"strings"
	"sync"
)

// Group collects errors, nil errors are ignored
type Group interface {
	Add(e error)
	Err() error
}

// UnsafeGroup a Group for single goroutine use
func UnsafeGroup() Group {
	return &unsafeGroup{}
}

// SafeGroup a Group safe for concurrent use
func SafeGroup() Group {
	return &safeGroup{}
}

type unsafeGroup struct {
	errs []error
}

func (m *unsafeGroup) Add(e error) {
	if e != nil {
		m.errs = append(m.errs, e)
	}
}

// Err returns nil, the only error, or a combined error matching every collected error with errors.Is
func (m *unsafeGroup) Err() error {
	switch len(m.errs) {
	case 0:
		return nil
	case 1:
		return m.errs[0]
	}
	return &combined{errs: append([]error(nil), m.errs...)}
}

type safeGroup struct {
	unsafeGroup
	l sync.Mutex
}

func (m *safeGroup) Add(e error) {
	m.l.Lock()
	defer m.l.Unlock()
	m.unsafeGroup.Add(e)
}

func (m *safeGroup) Err() error {
	m.l.Lock()
	defer m.l.Unlock()
	return m.unsafeGroup.Err()
}

type combined struct {
	errs []error
}

func (c *combined) Error() string {
	msgs := make([]string, 0, len(c.errs))
	for _, err := range c.errs {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (c *combined) Unwrap() []error {
	return c.errs
}

// Is reports whether any collected error matches target
func (c *combined) Is(target error) bool {
	for _, err := range c.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
