package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/arzzra/sipcallstats/pkg/callstats"
	"github.com/arzzra/sipcallstats/pkg/config"
	"github.com/arzzra/sipcallstats/pkg/logger"
	"github.com/arzzra/sipcallstats/pkg/sipstats"
	"github.com/arzzra/sipcallstats/pkg/sipua"
)

var version = "dev"

var errNoConfig = errors.New("missing config")

func main() {
	app := &cli.App{
		Name:        "sipcallstats",
		Usage:       "SIP call analytics",
		Version:     version,
		Description: "reports SIP session events to a callstats analytics client",
		Commands: []*cli.Command{
			{
				Name:        "dial",
				Description: "places a call and reports it until hangup",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "target",
						Usage:    "SIP URI to call",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "sdp",
						Usage:    "file with the SDP offer",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "conference",
						Usage: "conference id sent in X-Conference-ID",
					},
					&cli.DurationFlag{
						Name:  "duration",
						Usage: "hang up after this duration",
						Value: 30 * time.Second,
					},
				},
				Action: runDial,
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "sipcallstats yaml config file",
				EnvVars: []string{"SIPCALLSTATS_CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:    "config-body",
				Usage:   "sipcallstats yaml config body",
				EnvVars: []string{"SIPCALLSTATS_CONFIG_BODY"},
			},
		},
		Action: runService,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// service собранные компоненты приложения
type service struct {
	conf    *config.Config
	log     *logger.Logger
	ua      *sipua.UA
	monitor *sipstats.Monitor
	metrics *http.Server
}

func newService(c *cli.Context) (*service, error) {
	conf, err := getConfig(c)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{Level: conf.LogLevel, File: conf.LogFile})
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metricsCfg := callstats.DefaultMetricsConfig()
	metricsCfg.Registerer = reg
	metricsCfg.Logger = log.Component("metrics")
	metricsClient := callstats.NewMetricsClient(metricsCfg)
	logClient := callstats.NewLogClient(log.Component("callstats"))

	sipstats.SetClientFactory(func() callstats.Client {
		return callstats.Multi(metricsClient, logClient)
	})

	ua, err := sipua.NewUA(conf.SIP, sipua.WithLogger(log.Component("sipua")))
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	opts := append(conf.MonitorOptions(), sipstats.WithLogger(log.Component("sipstats")))
	monitor, err := sipstats.Handle(ua, conf.AppID, callstats.StaticSecret(conf.AppSecret), opts...)
	if err != nil {
		_ = ua.Close()
		_ = log.Close()
		return nil, err
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "sessions: %d\n", ua.Sessions())
	}).Methods(http.MethodGet)

	return &service{
		conf:    conf,
		log:     log,
		ua:      ua,
		monitor: monitor,
		metrics: &http.Server{Addr: conf.MetricsAddr, Handler: r},
	}, nil
}

func (s *service) start(ctx context.Context) <-chan error {
	errCh := make(chan error, 2)
	log := s.log.Component("main")

	go func() {
		log.WithField("address", s.conf.MetricsAddr).Info("serving metrics")
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := s.ua.Listen(ctx); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

func (s *service) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.metrics.Shutdown(shutdownCtx)
	s.monitor.Close()
	_ = s.ua.Close()
	_ = s.log.Close()
}

func runService(c *cli.Context) error {
	svc, err := newService(c)
	if err != nil {
		return err
	}
	defer svc.stop()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	errCh := svc.start(ctx)
	select {
	case <-ctx.Done():
		svc.log.Component("main").Info("exit requested, shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func runDial(c *cli.Context) error {
	svc, err := newService(c)
	if err != nil {
		return err
	}
	defer svc.stop()

	offer, err := os.ReadFile(c.String("sdp"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	errCh := svc.start(ctx)

	var opts []sipua.DialOption
	if conf := c.String("conference"); conf != "" {
		opts = append(opts, sipua.WithConferenceID(conf))
	}
	call, err := svc.ua.Dial(ctx, c.String("target"), offer, opts...)
	if err != nil {
		return err
	}

	log := svc.log.Component("main").WithFields(logrus.Fields{"callID": call.CallID()})
	call.OnStateChange(func(st sipua.CallState) {
		log.WithField("state", st).Info("call state")
	})

	timer := time.NewTimer(c.Duration("duration"))
	defer timer.Stop()

	select {
	case <-call.Done():
	case err := <-errCh:
		return err
	case <-timer.C:
	case <-ctx.Done():
	}

	hangupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	switch call.State() {
	case sipua.Calling:
		return call.Cancel(hangupCtx)
	case sipua.InCall:
		return call.Hangup(hangupCtx)
	}
	return nil
}

func getConfig(c *cli.Context) (*config.Config, error) {
	configFile := c.String("config")
	configBody := c.String("config-body")
	if configBody == "" {
		if configFile == "" {
			return nil, errNoConfig
		}
		content, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		configBody = string(content)
	}

	return config.NewConfig(configBody)
}
