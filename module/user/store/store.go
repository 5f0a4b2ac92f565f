package store

import (
	"context"
	"time"

	"PPAdmin/module/user/model"
)

type Devices interface {
	InsertDevice(ctx context.Context, d *model.UserDevice) error
	// SetStatus updates the session owning accessToken and returns it;
	// errs.ErrRecordNotFound when no session has that token.
	SetStatus(ctx context.Context, accessToken, status string, lastActive *time.Time, at time.Time) (*model.UserDevice, error)
	// ActiveDevices returns active sessions of the given users.
	ActiveDevices(ctx context.Context, userIDs []string) ([]*model.UserDevice, error)
}
