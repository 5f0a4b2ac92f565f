package store

import (
	"context"
	"sync"
	"time"

	"PPAdmin/module/user/model"
	"PPAdmin/tools/errs"
)

type MemStore struct {
	mu      sync.RWMutex
	byToken map[string]*model.UserDevice
}

func NewMemStore() *MemStore {
	return &MemStore{byToken: make(map[string]*model.UserDevice)}
}

func cloneDevice(d *model.UserDevice) *model.UserDevice {
	cp := *d
	if d.LastActive != nil {
		t := *d.LastActive
		cp.LastActive = &t
	}
	return &cp
}

func (s *MemStore) InsertDevice(ctx context.Context, d *model.UserDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byToken[d.AccessToken]; ok {
		return errs.ErrDuplicateKey.WrapMsg("device", "user_id", d.UserID)
	}
	s.byToken[d.AccessToken] = cloneDevice(d)
	return nil
}

func (s *MemStore) SetStatus(ctx context.Context, accessToken, status string, lastActive *time.Time, at time.Time) (*model.UserDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byToken[accessToken]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("device session")
	}
	d.CurrentStatus = status
	d.LastActive = nil
	if lastActive != nil {
		t := *lastActive
		d.LastActive = &t
	}
	d.UpdatedAt = at
	return cloneDevice(d), nil
}

func (s *MemStore) ActiveDevices(ctx context.Context, userIDs []string) ([]*model.UserDevice, error) {
	want := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		want[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.UserDevice
	for _, d := range s.byToken {
		if _, ok := want[d.UserID]; ok && d.Active() {
			out = append(out, cloneDevice(d))
		}
	}
	return out, nil
}

// Expire marks the session owning accessToken as expired.
func (s *MemStore) Expire(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.byToken[accessToken]; ok {
		d.Expired = true
	}
}
