package notification

import (
	"context"
	"fmt"

	"advisor-backend/pkg/fcm"

	"go.uber.org/zap"
)

// DeviceSender delivers a push notification to device tokens and returns the
// tokens that were rejected.
type DeviceSender interface {
	SendToDevices(ctx context.Context, tokens []string, notification fcm.NotificationData) ([]string, error)
}

type Devices interface {
	DeviceTokens(ownerEmail string) ([]string, error)
	UnregisterDevice(ownerEmail, token string) error
}

// Alerter pushes owner alerts to every registered device
type Alerter struct {
	sender  DeviceSender
	devices Devices
	log     *zap.Logger
}

func NewAlerter(sender DeviceSender, devices Devices, log *zap.Logger) *Alerter {
	return &Alerter{sender: sender, devices: devices, log: log.Named("alerter")}
}

func (a *Alerter) NotifyOwner(ctx context.Context, ownerEmail, title, body string, data map[string]string) error {
	tokens, err := a.devices.DeviceTokens(ownerEmail)
	if err != nil {
		return fmt.Errorf("loading devices for %s: %w", ownerEmail, err)
	}
	if len(tokens) == 0 {
		a.log.Debug("no devices registered", zap.String("owner", ownerEmail))
		return nil
	}

	failed, err := a.sender.SendToDevices(ctx, tokens, fcm.NotificationData{Title: title, Body: body, Data: data})
	if err != nil {
		return err
	}

	// Cleanup failed tokens
	for _, token := range failed {
		if err := a.devices.UnregisterDevice(ownerEmail, token); err != nil {
			a.log.Warn("failed to remove stale device", zap.Error(err))
		}
	}
	a.log.Info("owner alerted", zap.String("owner", ownerEmail), zap.Int("devices", len(tokens)-len(failed)))
	return nil
}
