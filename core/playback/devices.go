package playback

import (
	"context"
	"sync"
	"time"

	"PartyQ/logger"
	"PartyQ/model"
)

// DeviceLister is the slice of the playback adapter the device cache
// needs.
type DeviceLister interface {
	Devices(ctx context.Context) ([]model.Device, error)
}

// DevicePayload is the long-poll payload for the output-device list.
type DevicePayload struct {
	Devices           []model.Device `json:"devices"`
	PreferredDeviceID string         `json:"preferredDeviceId,omitempty"`
	LastError         string         `json:"lastError,omitempty"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// DeviceCache mirrors the available output devices, on the same fan-out
// pattern as the playback cache.
type DeviceCache struct {
	mu        sync.Mutex
	lister    DeviceLister
	devices   []model.Device
	preferred string
	lastError string
	updatedAt time.Time
	deadline  time.Duration
	waiters   fanout[DevicePayload]
}

// NewDeviceCache 创建设备列表缓存
func NewDeviceCache(lister DeviceLister) *DeviceCache {
	return &DeviceCache{lister: lister, deadline: waiterDeadline}
}

func (c *DeviceCache) touchLocked() {
	now := time.Now()
	if !now.After(c.updatedAt) {
		now = c.updatedAt.Add(time.Millisecond)
	}
	c.updatedAt = now
}

func (c *DeviceCache) payloadLocked() DevicePayload {
	devices := append([]model.Device(nil), c.devices...)
	return DevicePayload{
		Devices:           devices,
		PreferredDeviceID: c.preferred,
		LastError:         c.lastError,
		UpdatedAt:         c.updatedAt,
	}
}

// Payload returns the current device payload.
func (c *DeviceCache) Payload() DevicePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payloadLocked()
}

// PreferredDeviceID is the device playback commands should target.
func (c *DeviceCache) PreferredDeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preferred
}

// Refresh re-reads the device list. activeDeviceName is the operator's
// chosen output; when present it wins over whichever device the remote
// service currently marks active.
func (c *DeviceCache) Refresh(ctx context.Context, activeDeviceName string) {
	devices, err := c.lister.Devices(ctx)

	c.mu.Lock()
	if err != nil {
		c.lastError = err.Error()
		c.mu.Unlock()
		logger.Warn("刷新设备列表失败", logger.ErrorField(err))
		return
	}
	c.devices = devices
	c.lastError = ""
	c.preferred = resolvePreferred(devices, activeDeviceName)
	c.touchLocked()
	p := c.payloadLocked()
	c.mu.Unlock()

	c.waiters.broadcast(p)
}

// Subscribe mirrors Cache.Subscribe for the device list.
func (c *DeviceCache) Subscribe(ctx context.Context, since time.Time) (DevicePayload, error) {
	c.mu.Lock()
	if c.updatedAt.After(since) {
		p := c.payloadLocked()
		c.mu.Unlock()
		return p, nil
	}
	ch := c.waiters.add()
	c.mu.Unlock()

	timer := time.NewTimer(c.deadline)
	defer timer.Stop()

	select {
	case p := <-ch:
		return p, nil
	case <-timer.C:
		c.waiters.remove(ch)
		return c.Payload(), nil
	case <-ctx.Done():
		c.waiters.remove(ch)
		return DevicePayload{}, ctx.Err()
	}
}

func resolvePreferred(devices []model.Device, activeDeviceName string) string {
	if activeDeviceName != "" {
		for _, d := range devices {
			if d.Name == activeDeviceName {
				return d.ID
			}
		}
	}
	for _, d := range devices {
		if d.IsActive {
			return d.ID
		}
	}
	return ""
}
