package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"PPAdmin/logger"
	"PPAdmin/module/user/model"
	"PPAdmin/module/user/store"
	"PPAdmin/tools/errs"
	"PPAdmin/tools/security"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const statusRoomPrefix = "user_status_room_"

// StatusRoom 订阅某个用户状态变化的房间名
func StatusRoom(userID string) string {
	return statusRoomPrefix + userID
}

// Mirror copies presence transitions somewhere other processes can read.
type Mirror interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string, lastSeen time.Time) error
}

type PresenceService struct {
	devices store.Devices
	mirror  Mirror
	now     func() time.Time
}

type Option func(*PresenceService)

func WithMirror(m Mirror) Option {
	return func(s *PresenceService) { s.mirror = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *PresenceService) { s.now = now }
}

func NewPresenceService(devices store.Devices, opts ...Option) *PresenceService {
	s := &PresenceService{devices: devices, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RegisterDevice opens a device session for userID and returns it with a
// freshly signed access token.
func (s *PresenceService) RegisterDevice(ctx context.Context, opts security.Options, userID, deviceType string) (*model.UserDevice, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errs.ErrArgs.WrapMsg("user_id required")
	}
	if deviceType == "" {
		deviceType = "web"
	}
	token, _, err := security.Generate(opts, userID, []string{"presence"})
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	d := &model.UserDevice{
		ID:            primitive.NewObjectID().Hex(),
		UserID:        userID,
		DeviceType:    deviceType,
		AccessToken:   token,
		CurrentStatus: model.StatusOffline,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.devices.InsertDevice(ctx, d); err != nil {
		return nil, err
	}
	logger.Info("[Presence] device registered",
		zap.String("user_id", userID),
		zap.String("device_type", deviceType))
	return d, nil
}

// UpdateActivityStatus sets the status of the device session owning
// accessToken. It reports false when no session has that token.
func (s *PresenceService) UpdateActivityStatus(ctx context.Context, accessToken, status string) (bool, error) {
	if !model.ValidStatus(status) {
		return false, errs.ErrArgs.WrapMsg("invalid status", "status", status)
	}
	now := s.now().UTC()
	var lastActive *time.Time
	if status == model.StatusOffline {
		lastActive = &now
	}
	d, err := s.devices.SetStatus(ctx, accessToken, status, lastActive, now)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	s.mirrorStatus(ctx, d.UserID, status, now)
	return true, nil
}

// Touch renews the mirrored online entry of userID.
func (s *PresenceService) Touch(ctx context.Context, userID string) {
	s.mirrorStatus(ctx, userID, model.StatusOnline, s.now().UTC())
}

func (s *PresenceService) mirrorStatus(ctx context.Context, userID, status string, at time.Time) {
	if s.mirror == nil {
		return
	}
	var err error
	if status == model.StatusOnline {
		err = s.mirror.Online(ctx, userID)
	} else {
		err = s.mirror.Offline(ctx, userID, at)
	}
	if err != nil {
		logger.Warn("[Presence] mirror failed", zap.String("user_id", userID), zap.String("status", status), zap.Error(err))
	}
}

// StatusByUserIDs derives presence for each id: online when any active
// device is online, otherwise offline with the latest last_active (or now
// when nothing is known). Every requested id gets an entry.
func (s *PresenceService) StatusByUserIDs(ctx context.Context, userIDs []string) (map[string]model.PresenceStatus, error) {
	uniq := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	devices, err := s.devices.ActiveDevices(ctx, uniq)
	if err != nil {
		return nil, err
	}

	online := make(map[string]bool, len(uniq))
	lastSeen := make(map[string]time.Time, len(uniq))
	for _, d := range devices {
		if d.CurrentStatus == model.StatusOnline {
			online[d.UserID] = true
			continue
		}
		if d.LastActive != nil && d.LastActive.After(lastSeen[d.UserID]) {
			lastSeen[d.UserID] = *d.LastActive
		}
	}

	now := s.now().UTC()
	out := make(map[string]model.PresenceStatus, len(uniq))
	for _, id := range uniq {
		if online[id] {
			out[id] = model.PresenceStatus{UserID: id, Status: model.StatusOnline}
			continue
		}
		ls, ok := lastSeen[id]
		if !ok {
			ls = now
		}
		out[id] = model.PresenceStatus{UserID: id, Status: model.StatusOffline, LastSeen: &ls}
	}
	return out, nil
}
