package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/tomiamao/softap/internal/apconfig"
	"github.com/tomiamao/softap/internal/control"
	"github.com/tomiamao/softap/internal/fwpath"
	"github.com/tomiamao/softap/internal/ifctl"
	"github.com/tomiamao/softap/internal/nl80211"
	"github.com/tomiamao/softap/internal/softap"
	"github.com/tomiamao/softap/internal/wext"
)

// Output modes.
const (
	modeHostapd = "hostapd"
	modeLegacy  = "legacy"
)

// Default ownership of the hostapd files, system:wifi on Android.
const (
	defaultConfigUID = 1000
	defaultConfigGID = 1010
)

const lockFileName = "softapd.lock"

// serveConfig is the daemon configuration assembled from the flags.
type serveConfig struct {
	Mode           string
	Interface      string
	Socket         string
	RunDir         string
	Hostapd        softap.HostapdConfig
	Firmware       fwpath.Service
	SyncIfType     bool
	MetricsAddress string
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "mode",
			Value:   modeHostapd,
			Usage:   "How the AP is run: hostapd or legacy (driver private commands)",
			EnvVars: []string{"SOFTAPD_MODE"},
		},
		&cli.StringFlag{
			Name:    "interface",
			Value:   softap.DefaultInterface,
			Usage:   "The AP interface used until a set command names another",
			EnvVars: []string{"SOFTAPD_INTERFACE"},
		},
		&cli.PathFlag{
			Name:    "run-dir",
			Value:   "/data/misc/wifi",
			Usage:   "The directory holding the instance lock",
			EnvVars: []string{"SOFTAPD_RUN_DIR"},
		},
		&cli.PathFlag{
			Name:    "hostapd-bin",
			Value:   softap.DefaultHostapdBinary,
			Usage:   "The hostapd executable",
			EnvVars: []string{"SOFTAPD_HOSTAPD_BIN"},
		},
		&cli.PathFlag{
			Name:    "hostapd-conf",
			Value:   softap.DefaultHostapdConfig,
			Usage:   "The generated hostapd configuration file",
			EnvVars: []string{"SOFTAPD_HOSTAPD_CONF"},
		},
		&cli.PathFlag{
			Name:    "hostapd-ctrl-dir",
			Value:   apconfig.DefaultCtrlInterface,
			Usage:   "The hostapd control interface directory",
			EnvVars: []string{"SOFTAPD_HOSTAPD_CTRL_DIR"},
		},
		&cli.StringFlag{
			Name:    "hostapd-driver",
			Value:   apconfig.DefaultDriver,
			Usage:   "The hostapd driver interface",
			EnvVars: []string{"SOFTAPD_HOSTAPD_DRIVER"},
		},
		&cli.PathFlag{
			Name:    "entropy-file",
			Value:   softap.DefaultEntropyFile,
			Usage:   "The hostapd entropy file; empty to run hostapd without one",
			EnvVars: []string{"SOFTAPD_ENTROPY_FILE"},
		},
		&cli.IntFlag{
			Name:    "config-uid",
			Value:   defaultConfigUID,
			Usage:   "The owner of the generated files; -1 leaves it unchanged",
			EnvVars: []string{"SOFTAPD_CONFIG_UID"},
		},
		&cli.IntFlag{
			Name:    "config-gid",
			Value:   defaultConfigGID,
			Usage:   "The group of the generated files; -1 leaves it unchanged",
			EnvVars: []string{"SOFTAPD_CONFIG_GID"},
		},
		&cli.PathFlag{
			Name:    "fw-path-param",
			Value:   fwpath.DefaultParam,
			Usage:   "The driver parameter the firmware path is written to",
			EnvVars: []string{"SOFTAPD_FW_PATH_PARAM"},
		},
		&cli.PathFlag{
			Name:    "fw-path-ap",
			Usage:   "The AP firmware image",
			EnvVars: []string{"SOFTAPD_FW_PATH_AP"},
		},
		&cli.PathFlag{
			Name:    "fw-path-p2p",
			Usage:   "The P2P firmware image",
			EnvVars: []string{"SOFTAPD_FW_PATH_P2P"},
		},
		&cli.PathFlag{
			Name:    "fw-path-sta",
			Usage:   "The station firmware image",
			EnvVars: []string{"SOFTAPD_FW_PATH_STA"},
		},
		&cli.BoolFlag{
			Name:    "sync-iftype",
			Usage:   "Switch the nl80211 interface type after a firmware reload",
			EnvVars: []string{"SOFTAPD_SYNC_IFTYPE"},
		},
		&cli.StringFlag{
			Name:    "metrics-address",
			Usage:   "The address to serve Prometheus metrics on, e.g. 127.0.0.1:9580; disabled when empty",
			EnvVars: []string{"SOFTAPD_METRICS_ADDRESS"},
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the SoftAP daemon",
		Flags: serveFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := configFromContext(c)
			if err != nil {
				return err
			}
			return runServe(c.Context, cfg)
		},
	}
}

func configFromContext(c *cli.Context) (*serveConfig, error) {
	cfg := &serveConfig{
		Mode:      c.String("mode"),
		Interface: c.String("interface"),
		Socket:    c.String("socket"),
		RunDir:    c.Path("run-dir"),
		Hostapd: softap.HostapdConfig{
			Binary:      c.Path("hostapd-bin"),
			ConfigPath:  c.Path("hostapd-conf"),
			EntropyFile: c.Path("entropy-file"),
			Renderer: apconfig.Hostapd{
				Driver:        c.String("hostapd-driver"),
				CtrlInterface: c.Path("hostapd-ctrl-dir"),
			},
			Owner: apconfig.Owner{UID: c.Int("config-uid"), GID: c.Int("config-gid")},
		},
		Firmware: fwpath.Service{
			Param: c.Path("fw-path-param"),
			Paths: map[fwpath.Mode]string{
				fwpath.ModeAP:  c.Path("fw-path-ap"),
				fwpath.ModeP2P: c.Path("fw-path-p2p"),
				fwpath.ModeSTA: c.Path("fw-path-sta"),
			},
		},
		SyncIfType:     c.Bool("sync-iftype"),
		MetricsAddress: c.String("metrics-address"),
	}

	if cfg.Mode != modeHostapd && cfg.Mode != modeLegacy {
		return nil, errors.Errorf("unknown mode %q, expected %s or %s", cfg.Mode, modeHostapd, modeLegacy)
	}
	if cfg.Interface == "" {
		return nil, errors.New("the AP interface must not be empty")
	}
	return cfg, nil
}

// closers releases resources in reverse order of acquisition.
type closers []io.Closer

func (cs closers) Close() error {
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].Close(); err != nil {
			log.WithError(err).Warn("Cannot release a resource")
		}
	}
	return nil
}

// buildSupervisor wires the backend for cfg.Mode. The returned closers
// must be closed after the supervisor.
func buildSupervisor(cfg *serveConfig, metrics *softap.Metrics) (*softap.Supervisor, closers, error) {
	var cs closers

	// A nil handle makes every operation report a failure, as the daemon
	// keeps serving the control socket without a driver.
	var handle io.Closer
	var ioc wext.Ioctler
	if sock, err := wext.Open(); err != nil {
		log.WithError(err).Error("Cannot open the wireless control socket")
	} else {
		handle, ioc = sock, sock
	}

	d := wext.NewDispatcher(ioc)
	d.SetObserver(metrics.ObservePrivateCommand)

	var typer softap.InterfaceTyper
	if cfg.SyncIfType {
		if c, err := nl80211.New(); err != nil {
			log.WithError(err).Warn("nl80211 is not available, interface types will not be synced")
		} else {
			typer = c
			cs = append(cs, c)
		}
	}

	var backend softap.Backend
	switch cfg.Mode {
	case modeLegacy:
		backend = softap.NewLegacyBackend(d)
	default:
		links, err := ifctl.Dial()
		if err != nil {
			_ = cs.Close()
			if handle != nil {
				_ = handle.Close()
			}
			return nil, nil, err
		}
		cs = append(cs, links)
		backend = softap.NewHostapdBackend(cfg.Hostapd, links, nil, &cfg.Firmware, typer)
	}

	opts := []softap.Option{
		softap.WithMetrics(metrics),
		softap.WithInterface(cfg.Interface),
	}
	if typer != nil {
		opts = append(opts, softap.WithInterfaceTyper(typer))
	}

	log.WithFields(log.Fields{"mode": cfg.Mode, "iface": cfg.Interface}).Info("SoftAP backend ready")
	return softap.NewSupervisor(handle, backend, &cfg.Firmware, opts...), cs, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics endpoint failed")
		}
	}()
	log.WithField("address", addr).Info("Serving metrics")
	return srv
}

func runServe(ctx context.Context, cfg *serveConfig) error {
	log.Infof("Starting softapd, version %s", Version)

	lock, err := softap.AcquireInstanceLock(filepath.Join(cfg.RunDir, lockFileName))
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := softap.NewMetrics(reg)

	sup, cs, err := buildSupervisor(cfg, metrics)
	if err != nil {
		return err
	}
	defer cs.Close()
	defer func() {
		if err := sup.Close(); err != nil {
			log.WithError(err).Warn("Cannot close the wireless control socket")
		}
	}()

	if cfg.MetricsAddress != "" {
		srv := serveMetrics(cfg.MetricsAddress, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ln, err := control.Listen(cfg.Socket)
	if err != nil {
		return err
	}
	defer os.Remove(cfg.Socket)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = control.NewServer(sup).Serve(ctx, ln)
	log.Info("Stopping softapd")
	return err
}
