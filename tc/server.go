// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tc assembles the coordinator daemon: the startup store, the driver
// registry, the coordinator and the HTTP front end.
package tc

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/vtnc/pkg/config"
	"github.com/pingcap/vtnc/pkg/db"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/pkg/fsutil"
	"github.com/pingcap/vtnc/pkg/workerpool"
	"github.com/pingcap/vtnc/tc/api"
	"github.com/pingcap/vtnc/tc/coordinator"
	"github.com/pingcap/vtnc/tc/driver/memory"
	"github.com/pingcap/vtnc/tc/driver/odc"
	"github.com/pingcap/vtnc/tc/framework"
	"github.com/pingcap/vtnc/tc/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

const (
	// maxHTTPConnection is used to limit the max concurrent connections of http server.
	maxHTTPConnection = 1000
	// httpConnectionTimeout is used to limit a connection max alive time of http server.
	httpConnectionTimeout = 10 * time.Minute

	driverRetryBaseDelay = 200 * time.Millisecond
	metricsInterval      = 15 * time.Second
	minDataDirSpaceMB    = 64
)

// Server is the vtnc server.
type Server struct {
	conf         *config.ServerConfig
	store        *store.Store
	coordinator  *coordinator.Coordinator
	registry     *prometheus.Registry
	listener     net.Listener
	statusServer *http.Server
}

// NewServer creates a server instance. The listener is bound at once, so
// Addr is valid as soon as NewServer returns.
func NewServer(conf *config.ServerConfig) (*Server, error) {
	if err := initDataDir(conf.DataDir); err != nil {
		return nil, errors.Trace(err)
	}
	st, err := store.Open(conf.DataDir, conf.DB.Options())
	if err != nil {
		return nil, errors.Trace(err)
	}

	drivers := framework.NewDriverRegistry()
	drivers.MustRegister(memory.NewDriver())
	drivers.MustRegister(odc.NewDriver(odc.Config{
		RequestTimeout: time.Duration(conf.Controller.RequestTimeout),
		MaxRetries:     conf.Controller.MaxRetries,
		RetryBaseDelay: driverRetryBaseDelay,
		TLS:            conf.Security,
	}))

	co, err := coordinator.New(coordinator.Config{
		Workers:           conf.WorkerPool.Workers,
		AuditWorkers:      conf.WorkerPool.AuditWorkers,
		QueueSize:         conf.WorkerPool.QueueSize,
		ReadTimeout:       time.Duration(conf.Session.ReadTimeout),
		AcquireTimeout:    time.Duration(conf.Session.AcquireTimeout),
		RequestTimeout:    time.Duration(conf.Controller.RequestTimeout),
		PingInterval:      time.Duration(conf.Controller.PingInterval),
		EnableDriverAudit: conf.Audit.EnableDriverAudit,
	}, drivers, st)
	if err != nil {
		_ = st.Close()
		return nil, errors.Trace(err)
	}

	lis, err := net.Listen("tcp", conf.Addr)
	if err != nil {
		_ = st.Close()
		return nil, cerrors.WrapError(cerrors.ErrInvalidServerOption, err, "listen on "+conf.Addr)
	}

	s := &Server{
		conf:        conf,
		store:       st,
		coordinator: co,
		registry:    newRegistry(),
		listener:    lis,
	}
	log.Info("vtnc server created",
		zap.String("addr", lis.Addr().String()), zap.Stringer("config", conf))
	return s, nil
}

func initDataDir(dir string) error {
	if err := fsutil.EnsureDir(dir); err != nil {
		return errors.Trace(err)
	}
	avail, err := fsutil.GetDiskAvailableSpace(dir)
	if err != nil {
		return errors.Trace(err)
	}
	available := humanize.IBytes(avail * 1024 * 1024)
	log.Info("data-dir is ready",
		zap.String("dir", dir), zap.String("available", available))
	if avail < minDataDirSpaceMB {
		log.Warn("data-dir is running out of space",
			zap.String("dir", dir), zap.String("available", available))
	}
	return nil
}

func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	workerpool.InitMetrics(registry)
	db.InitMetrics(registry)
	coordinator.InitMetrics(registry)
	return registry
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Coordinator returns the coordinator of the server.
func (s *Server) Coordinator() *coordinator.Coordinator {
	return s.coordinator
}

// Run runs the server until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.startStatusHTTP()

	wg, cctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return s.coordinator.Run(cctx)
	})
	wg.Go(func() error {
		bctx, cancel := context.WithTimeout(cctx, time.Duration(s.conf.Controller.ConnectTimeout))
		defer cancel()
		return s.coordinator.Bootstrap(bctx, s.conf.Controllers)
	})
	wg.Go(func() error {
		return s.collectMetrics(cctx)
	})
	wg.Go(func() error {
		<-cctx.Done()
		s.closeStatusHTTP()
		return nil
	})

	err := wg.Wait()
	if errors.Cause(err) == context.Canceled {
		return nil
	}
	return err
}

func (s *Server) startStatusHTTP() {
	lis := netutil.LimitListener(s.listener, maxHTTPConnection)

	// discard gin log output
	gin.DefaultWriter = io.Discard
	router := gin.New()
	// add gin.Recovery() to handle unexpected panic
	router.Use(gin.Recovery())
	api.RegisterRoutes(router, s.coordinator, s.registry)

	s.statusServer = &http.Server{
		Handler:      router,
		ReadTimeout:  httpConnectionTimeout,
		WriteTimeout: httpConnectionTimeout,
	}

	go func() {
		log.Info("http server is running", zap.String("addr", s.Addr()))
		err := s.statusServer.Serve(lis)
		if err != nil && err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
		}
	}()
}

func (s *Server) closeStatusHTTP() {
	if s.statusServer == nil {
		if err := s.listener.Close(); err != nil {
			log.Warn("close listener", zap.Error(err))
		}
		return
	}
	if err := s.statusServer.Close(); err != nil {
		log.Error("close status server", zap.Error(err))
	}
}

func (s *Server) collectMetrics(ctx context.Context) error {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.store.CollectMetrics()
		}
	}
}

// Close closes the server. It must be called after Run returns.
func (s *Server) Close() {
	s.closeStatusHTTP()
	if err := s.store.Close(); err != nil {
		log.Error("close startup store", zap.Error(err))
	}
}
