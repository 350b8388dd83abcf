package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/config"
	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/device"
	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/events"
	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/helper"
)

var (
	dev    device.Device
	conf   config.Config
	sseHub *events.Hub
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/thresholds", getThresholds)
	router.PUT("/thresholds", setThresholds)
	router.GET("/force-discharge", getForceDischarge)
	router.PUT("/force-discharge", setForceDischarge)
	router.GET("/battery-level", getBatteryLevel)
	router.GET("/health", getHealth)
	router.GET("/capabilities", getCapabilities)
	router.POST("/refresh", postRefresh)
	router.GET("/events", getEvents)
	router.GET("/version", getVersion)

	return router
}

// wireEvents republishes device notifications on the SSE hub. The returned
// unwire function is called before the device is destroyed.
func wireEvents(d device.Device, hub *events.Hub) func() {
	em := d.Events()
	ids := []int{
		em.OnThresholdChanged(func(start, end int) {
			hub.Publish(events.ThresholdChanged, events.ThresholdChangedEvent{
				Start: start,
				End:   end,
				Ts:    time.Now().Unix(),
			})
		}),
		em.OnForceDischargeChanged(func(enabled bool) {
			hub.Publish(events.ForceDischargeChanged, events.ForceDischargeChangedEvent{
				Enabled: enabled,
				Ts:      time.Now().Unix(),
			})
		}),
		em.OnPartialFailure(func(primary, failed string) {
			hub.Publish(events.PartialFailure, events.PartialFailureEvent{
				Primary: primary,
				Failed:  failed,
				Ts:      time.Now().Unix(),
			})
		}),
	}
	return func() {
		for _, id := range ids {
			em.Unsubscribe(id)
		}
	}
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.(*config.File).LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded")
		}
	}()

	ctx := context.Background()
	dev = device.Discover(ctx, device.DiscoverOptions{
		Root:         conf.SysfsRoot(),
		Runner:       helper.NewExecRunner(conf.HelperPath()),
		PollInterval: conf.PollInterval(),
		MockMarker:   device.MockMarkerPath("hhb"),
	})
	if dev == nil {
		return errors.New("no controllable battery found")
	}
	logrus.WithFields(logrus.Fields{
		"device": dev.Name(),
		"kind":   dev.Kind(),
	}).Info("battery device ready")

	sseHub = events.NewHub()
	unwire := wireEvents(dev, sseHub)

	srv := &http.Server{
		Handler: router,
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		dev.Destroy()
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0o777)
		if err != nil {
			dev.Destroy()
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("releasing battery device")
	unwire()
	dev.Destroy()
	sseHub.Close()

	logrus.Info("exiting")
	return nil
}
