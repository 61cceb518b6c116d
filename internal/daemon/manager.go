package daemon

import (
	"context"
	"fmt"
	"runtime"

	kardianos "github.com/kardianos/service"

	"github.com/The-Promised-Neverland/relay/internal/config"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
)

// DaemonManager runs the relay under the OS service manager and implements
// kardianos.Interface.
type DaemonManager struct {
	cfg       *config.Config
	appCtx    context.Context
	appCancel context.CancelFunc
	done      chan struct{}
}

func NewDaemonManager(cfg *config.Config) *DaemonManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &DaemonManager{
		cfg:       cfg,
		appCtx:    ctx,
		appCancel: cancel,
		done:      make(chan struct{}),
	}
}

func (m *DaemonManager) newService() (kardianos.Service, error) {
	return kardianos.New(m, &kardianos.Config{
		Name:        m.cfg.ServiceName(),
		DisplayName: m.cfg.ServiceDisplayName(),
		Description: m.cfg.ServiceDescription(),
		Arguments:   []string{"serve"},
		Option: kardianos.KeyValue{
			// systemd and launchd
			"Restart":   "on-failure",
			"KeepAlive": true,
			"RunAtLoad": true,
			// windows
			"StartType": "automatic",
			"OnFailure": "restart",
		},
	})
}

func (m *DaemonManager) Start(s kardianos.Service) error {
	logger.Log.Info("Kardianos starting service", "service", s.String(), "platform", s.Platform())
	app, err := NewApplication(m.appCtx, m.cfg)
	if err != nil {
		close(m.done)
		return err
	}
	go func() {
		defer close(m.done)
		if err := app.Run(m.appCtx); err != nil {
			logger.Log.Error("Relay exited", "err", err)
		}
	}()
	return nil
}

func (m *DaemonManager) Stop(s kardianos.Service) error {
	logger.Log.Info("Kardianos stopping service", "service", s.String())
	m.appCancel()
	<-m.done
	return nil
}

// RunDaemon runs in the foreground, or as the service when started by the
// service manager.
func (m *DaemonManager) RunDaemon() error {
	s, err := m.newService()
	if err != nil {
		return err
	}
	return s.Run()
}

func (m *DaemonManager) InstallDaemon() error {
	if err := m.cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create working directories: %w", err)
	}
	s, err := m.newService()
	if err != nil {
		return err
	}
	if err := s.Install(); err != nil {
		if runtime.GOOS == "windows" {
			return fmt.Errorf("failed to install Windows service (requires administrator privileges): %w", err)
		}
		return fmt.Errorf("failed to install service: %w", err)
	}
	return nil
}

func (m *DaemonManager) UninstallDaemon() error {
	s, err := m.newService()
	if err != nil {
		return err
	}
	if err := s.Stop(); err != nil {
		logger.Log.Warn("Service was not running", "err", err)
	}
	return s.Uninstall()
}

func (m *DaemonManager) StartDaemon() error {
	s, err := m.newService()
	if err != nil {
		return err
	}
	return s.Start()
}

func (m *DaemonManager) StopDaemon() error {
	s, err := m.newService()
	if err != nil {
		return err
	}
	return s.Stop()
}

func (m *DaemonManager) RestartDaemon() error {
	s, err := m.newService()
	if err != nil {
		return err
	}
	return s.Restart()
}

// Status reports the service state as seen by the service manager.
func (m *DaemonManager) Status() (string, error) {
	s, err := m.newService()
	if err != nil {
		return "", err
	}
	st, err := s.Status()
	if err != nil {
		return "", err
	}
	switch st {
	case kardianos.StatusRunning:
		return "running", nil
	case kardianos.StatusStopped:
		return "stopped", nil
	default:
		return "unknown", nil
	}
}
