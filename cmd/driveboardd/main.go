// Command driveboardd is the driveboard backend process: it opens one
// serial connection to a driveboard-speaking controller and exposes it
// over HTTP, WebSocket and a legacy line-oriented TCP port.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/lasaur/driveboard/pkg/config"
	"github.com/lasaur/driveboard/pkg/engine"
	"github.com/lasaur/driveboard/pkg/gcode"
	"github.com/lasaur/driveboard/pkg/link"
	"github.com/lasaur/driveboard/pkg/transport/httpapi"
	"github.com/lasaur/driveboard/pkg/transport/tcpapi"
	"github.com/lasaur/driveboard/pkg/transport/wsapi"
)

func main() {
	app := cli.NewApp()
	app.Name = "driveboardd"
	app.Usage = "host-side protocol engine for a driveboard laser-cutter controller"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Value: "driveboard.ini", Usage: "path to the INI configuration file"},
	}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "connect to the driveboard and serve HTTP/WS/TCP until interrupted",
			Action: runServe,
		},
		{
			Name:   "scan",
			Usage:  "list candidate serial ports",
			Action: runScan,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.GlobalString("config")
	if _, err := os.Stat(path); err != nil {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runScan(c *cli.Context) error {
	ports, err := link.ScanPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no candidate serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	eng := engine.New(engine.Config{
		Path:            cfg.Driveboard.Port,
		BaudRate:        cfg.Driveboard.Baudrate,
		OpenTimeout:     time.Duration(cfg.Driveboard.OpenTimeoutMs) * time.Millisecond,
		GreetingTimeout: time.Duration(cfg.Driveboard.GreetingTimeoutMs) * time.Millisecond,
	}, nil, log, nil)

	if err := eng.Connect(); err != nil {
		log.Warn("initial connect failed, will retry on resume (~)", zap.Error(err))
	}

	frontend := gcode.NewFrontend(eng)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	httpapi.New(frontend).Register(router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpAddr := fmt.Sprintf("%s:%d", cfg.Backend.ListenAddress, cfg.Backend.HTTPPort)
	httpSrv := &http.Server{Addr: httpAddr, Handler: router}
	go func() {
		log.Info("http listening", zap.String("addr", httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server exited", zap.Error(err))
		}
	}()

	wsAddr := fmt.Sprintf("%s:%d", cfg.Backend.ListenAddress, cfg.Backend.WSPort)
	wsSrv := &http.Server{Addr: wsAddr, Handler: wsapi.New(statusSource{eng: eng})}
	go func() {
		log.Info("websocket listening", zap.String("addr", wsAddr))
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("websocket server exited", zap.Error(err))
		}
	}()

	tcpAddr := fmt.Sprintf("%s:%d", cfg.Backend.ListenAddress, cfg.Backend.TCPPort)
	tcpLn, err := net.Listen("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", tcpAddr, err)
	}
	tcpSrv := tcpapi.New(frontend, log)
	go func() {
		log.Info("tcp listening", zap.String("addr", tcpAddr))
		if err := tcpSrv.Serve(ctx, tcpLn); err != nil {
			log.Error("tcp server exited", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	wsSrv.Shutdown(shutdownCtx)
	eng.Shutdown()
	return nil
}

// statusSource adapts an *engine.Engine to wsapi.StatusSource.
type statusSource struct {
	eng *engine.Engine
}

func (s statusSource) StatusLine() string {
	view, err := s.eng.StatusView("full")
	if err != nil {
		return "error:" + err.Error()
	}
	return view
}
