package goble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/bpmon/internal/device"
	"github.com/srg/bpmon/internal/gattdb"
	"github.com/srg/bpmon/internal/groutine"
	"github.com/srg/bpmon/scanner"
)

// Peripheral is a selected cuff backed by the go-ble stack. It implements
// device.Device.
type Peripheral struct {
	cuff           scanner.Cuff
	connectTimeout time.Duration
	logger         *logrus.Logger

	mu           sync.Mutex
	client       blelib.Client
	onDisconnect func()

	// manual suppresses the disconnect handler while a programmatic
	// Disconnect tears the link down.
	manual atomic.Bool
}

func newPeripheral(cuff scanner.Cuff, connectTimeout time.Duration, logger *logrus.Logger) *Peripheral {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Peripheral{
		cuff:           cuff,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

func (p *Peripheral) ID() string { return p.cuff.Address }

func (p *Peripheral) Name() string {
	if p.cuff.Name != "" {
		return p.cuff.Name
	}
	return p.cuff.Address
}

// ConnectGATT dials the cuff and discovers its full GATT profile.
func (p *Peripheral) ConnectGATT(ctx context.Context) (device.GATTServer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return nil, device.ErrAlreadyConnected
	}

	p.logger.WithFields(logrus.Fields{
		"address": p.cuff.Address,
		"timeout": p.connectTimeout,
	}).Info("Connecting to cuff...")

	dialCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	client, err := blelib.Dial(dialCtx, blelib.NewAddr(p.cuff.Address))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", device.ErrConnectionFailed, p.cuff.Address, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			p.logger.WithField("error", cancelErr).Warn("Failed to cancel connection after discovery failure")
		}
		return nil, fmt.Errorf("%w: profile discovery: %v", device.ErrConnectionFailed, err)
	}

	p.client = client
	p.manual.Store(false)
	p.watchDisconnect(client)

	p.logger.WithFields(logrus.Fields{
		"address":  p.cuff.Address,
		"services": len(profile.Services),
	}).Info("Cuff connected")

	return &gattServer{client: client, profile: profile}, nil
}

// watchDisconnect monitors the client's Disconnected channel and fires the
// registered handler on unsolicited link loss. Not every platform client
// exposes the channel.
func (p *Peripheral) watchDisconnect(client blelib.Client) {
	notifier, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		p.logger.Debug("Client does not expose a Disconnected() channel")
		return
	}

	groutine.Go(context.Background(), "cuff-disconnect-watch", func(context.Context) {
		<-notifier.Disconnected()
		if p.manual.Load() {
			return
		}

		p.mu.Lock()
		if p.client != client {
			// Stale watcher from a previous connection
			p.mu.Unlock()
			return
		}
		p.client = nil
		fn := p.onDisconnect
		p.mu.Unlock()

		p.logger.WithField("address", p.cuff.Address).Warn("Cuff link lost")
		if fn != nil {
			fn()
		}
	})
}

// Disconnect tears down the GATT connection. The disconnect handler does not
// fire for this path.
func (p *Peripheral) Disconnect() error {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client == nil {
		return nil
	}

	p.manual.Store(true)
	if err := client.CancelConnection(); err != nil {
		return fmt.Errorf("%w: %v", device.ErrConnectionFailed, NormalizeError(err))
	}
	return nil
}

func (p *Peripheral) SetDisconnectHandler(fn func()) {
	p.mu.Lock()
	p.onDisconnect = fn
	p.mu.Unlock()
}

// gattServer exposes a discovered profile. Implements device.GATTServer.
type gattServer struct {
	client  blelib.Client
	profile *blelib.Profile
}

func (g *gattServer) PrimaryService(uuid string) (device.Service, error) {
	want := gattdb.NormalizeUUID(uuid)
	for _, svc := range g.profile.Services {
		if gattdb.NormalizeUUID(svc.UUID.String()) == want {
			return &gattService{client: g.client, svc: svc, uuid: want}, nil
		}
	}
	return nil, fmt.Errorf("service %s not found", uuid)
}

type gattService struct {
	client blelib.Client
	svc    *blelib.Service
	uuid   string
}

func (s *gattService) UUID() string { return s.uuid }

func (s *gattService) Characteristic(uuid string) (device.Characteristic, error) {
	want := gattdb.NormalizeUUID(uuid)
	for _, char := range s.svc.Characteristics {
		if gattdb.NormalizeUUID(char.UUID.String()) == want {
			return &gattCharacteristic{client: s.client, char: char, uuid: want}, nil
		}
	}
	return nil, fmt.Errorf("characteristic %s not found in service %s", uuid, s.uuid)
}

type gattCharacteristic struct {
	client blelib.Client
	char   *blelib.Characteristic
	uuid   string
}

func (c *gattCharacteristic) UUID() string { return c.uuid }

func (c *gattCharacteristic) Properties() device.Properties {
	return device.Properties{
		Read:     c.char.Property&blelib.CharRead != 0,
		Notify:   c.char.Property&blelib.CharNotify != 0,
		Indicate: c.char.Property&blelib.CharIndicate != 0,
	}
}

func (c *gattCharacteristic) ReadValue(_ context.Context) ([]byte, error) {
	data, err := c.client.ReadCharacteristic(c.char)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return data, nil
}

// StartNotifications subscribes in indicate mode when the characteristic
// supports it; the measurement characteristic on most cuffs is indicate-only.
func (c *gattCharacteristic) StartNotifications(fn func(data []byte)) error {
	indicate := c.char.Property&blelib.CharIndicate != 0
	return NormalizeError(c.client.Subscribe(c.char, indicate, func(data []byte) {
		fn(data)
	}))
}

// StopNotifications attempts both notify and indicate unsubscription; either
// mode succeeding counts as success.
func (c *gattCharacteristic) StopNotifications() error {
	err1 := NormalizeError(c.client.Unsubscribe(c.char, false))
	err2 := NormalizeError(c.client.Unsubscribe(c.char, true))
	if err1 != nil && err2 != nil {
		return fmt.Errorf("unsubscribe failed: notify: %v; indicate: %v", err1, err2)
	}
	return nil
}
