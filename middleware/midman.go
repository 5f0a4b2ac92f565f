package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

type namedMid struct {
	name string
	h    gin.HandlerFunc
}

// MiddlewareManager 全局中间件链，按名字增删
type MiddlewareManager struct {
	mu   sync.RWMutex
	mids []namedMid
}

func NewManager() *MiddlewareManager {
	return &MiddlewareManager{}
}

// Default returns a manager preloaded with panic recovery and request logging.
func Default() *MiddlewareManager {
	m := NewManager()
	m.AddNamed("recovery", Recovery())
	m.AddNamed("request_log", RequestLogger())
	return m
}

func (m *MiddlewareManager) Add(h gin.HandlerFunc) {
	m.AddNamed("", h)
}

// AddNamed appends h; a non-empty name replaces an existing entry in place.
func (m *MiddlewareManager) AddNamed(name string, h gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name != "" {
		for i := range m.mids {
			if m.mids[i].name == name {
				m.mids[i].h = h
				return
			}
		}
	}
	m.mids = append(m.mids, namedMid{name: name, h: h})
}

func (m *MiddlewareManager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.mids[:0]
	for _, nm := range m.mids {
		if nm.name != name {
			out = append(out, nm)
		}
	}
	m.mids = out
}

func (m *MiddlewareManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.mids))
	for _, nm := range m.mids {
		names = append(names, nm.name)
	}
	return names
}

// Handlers snapshots the chain for engine.Use. Changes made afterwards
// apply to routers built later.
func (m *MiddlewareManager) Handlers() []gin.HandlerFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]gin.HandlerFunc, len(m.mids))
	for i, nm := range m.mids {
		out[i] = nm.h
	}
	return out
}
