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

package server

import (
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/pingcap/log"
	"github.com/pingcap/vtnc/pkg/cmd/util"
	"github.com/pingcap/vtnc/pkg/config"
	"github.com/pingcap/vtnc/pkg/logutil"
	"github.com/pingcap/vtnc/pkg/version"
	"github.com/pingcap/vtnc/tc"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// options defines flags for the `server` command.
type options struct {
	serverConfigFilePath string
	caPath               string
	certPath             string
	keyPath              string
	allowedCertCN        string

	serverConfig *config.ServerConfig
}

// newOptions creates new options for the `server` command.
func newOptions() *options {
	return &options{
		serverConfig: config.GetDefaultServerConfig(),
	}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to template printing to it.
func (o *options) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.serverConfig.Addr, "addr", o.serverConfig.Addr, "Set the listening address")
	cmd.Flags().StringVar(&o.serverConfig.LogFile, "log-file", o.serverConfig.LogFile, "log file path")
	cmd.Flags().StringVar(&o.serverConfig.LogLevel, "log-level", o.serverConfig.LogLevel, "log level (etc: debug|info|warn|error)")
	cmd.Flags().StringVar(&o.serverConfig.DataDir, "data-dir", o.serverConfig.DataDir, "the path to the directory used to store the startup configuration")

	cmd.Flags().IntVar(&o.serverConfig.WorkerPool.Workers, "workers", o.serverConfig.WorkerPool.Workers, "number of workers running requests")
	cmd.Flags().DurationVar((*time.Duration)(&o.serverConfig.Session.ReadTimeout), "read-timeout", time.Duration(o.serverConfig.Session.ReadTimeout), "lifetime of a read session nobody released")
	cmd.Flags().DurationVar((*time.Duration)(&o.serverConfig.Controller.PingInterval), "ping-interval", time.Duration(o.serverConfig.Controller.PingInterval), "interval of controller health checks, 0 disables them")
	cmd.Flags().BoolVar(&o.serverConfig.Audit.EnableDriverAudit, "enable-driver-audit", o.serverConfig.Audit.EnableDriverAudit, "audit a controller when it comes up")

	cmd.Flags().StringVar(&o.caPath, "ca", "", "CA certificate path for TLS connection to controllers")
	cmd.Flags().StringVar(&o.certPath, "cert", "", "Certificate path for TLS connection to controllers")
	cmd.Flags().StringVar(&o.keyPath, "key", "", "Private key path for TLS connection to controllers")
	cmd.Flags().StringVar(&o.allowedCertCN, "cert-allowed-cn", "", "Verify the controller identity (cert Common Name). Use ',' to separate multiple CN")

	cmd.Flags().StringVar(&o.serverConfigFilePath, "config", "", "Path of the configuration file")
}

// complete adapts from the command line args and config file to the data required.
func (o *options) complete(cmd *cobra.Command) error {
	cfg := config.GetDefaultServerConfig()

	if len(o.serverConfigFilePath) > 0 {
		if err := util.StrictDecodeFile(o.serverConfigFilePath, "vtnc server", cfg); err != nil {
			return err
		}
	}

	cmd.Flags().Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "addr":
			cfg.Addr = o.serverConfig.Addr
		case "log-file":
			cfg.LogFile = o.serverConfig.LogFile
		case "log-level":
			cfg.LogLevel = o.serverConfig.LogLevel
		case "data-dir":
			cfg.DataDir = o.serverConfig.DataDir
		case "workers":
			cfg.WorkerPool.Workers = o.serverConfig.WorkerPool.Workers
		case "read-timeout":
			cfg.Session.ReadTimeout = o.serverConfig.Session.ReadTimeout
		case "ping-interval":
			cfg.Controller.PingInterval = o.serverConfig.Controller.PingInterval
		case "enable-driver-audit":
			cfg.Audit.EnableDriverAudit = o.serverConfig.Audit.EnableDriverAudit
		case "ca":
			cfg.Security.CAPath = o.caPath
		case "cert":
			cfg.Security.CertPath = o.certPath
		case "key":
			cfg.Security.KeyPath = o.keyPath
		case "cert-allowed-cn":
			var certAllowedCN []string
			if len(o.allowedCertCN) != 0 {
				certAllowedCN = strings.Split(o.allowedCertCN, ",")
			}
			cfg.Security.CertAllowedCN = certAllowedCN
		case "config":
			// do nothing
		default:
			log.Panic("unknown flag, please report a bug", zap.String("flagName", flag.Name))
		}
	})

	o.serverConfig = cfg
	return nil
}

// validate checks that the provided attach options are specified.
func (o *options) validate(cmd *cobra.Command) error {
	if o.serverConfig.DataDir == "" {
		cmd.Print(color.HiYellowString("[WARN] vtnc server data-dir is not set, "+
			"the startup configuration is stored in %s.\n", config.DefaultDataDir))
	}
	if err := o.serverConfig.ValidateAndAdjust(); err != nil {
		return errors.Trace(err)
	}
	if len(o.serverConfig.Controllers) == 0 {
		cmd.Print(color.HiYellowString("[WARN] no controller is configured, " +
			"add them through the http api.\n"))
	}
	return nil
}

func (o *options) run(cmd *cobra.Command) error {
	conf := o.serverConfig
	ctx, cancel := util.InitCmd(cmd, &logutil.Config{
		File:           conf.LogFile,
		Level:          conf.LogLevel,
		FileMaxSize:    conf.Log.File.MaxSize,
		FileMaxDays:    conf.Log.File.MaxDays,
		FileMaxBackups: conf.Log.File.MaxBackups,
	})
	defer cancel()
	util.InitSignalHandling(cancel)

	version.LogVersionInfo()
	for _, path := range failpoint.List() {
		status, err := failpoint.Status(path)
		if err != nil {
			log.Error("fail to get failpoint status", zap.Error(err))
		}
		log.Info("failpoint enabled", zap.String("path", path), zap.String("status", status))
	}
	util.LogHTTPProxies()

	server, err := tc.NewServer(conf)
	if err != nil {
		return errors.Annotate(err, "new server")
	}
	err = server.Run(ctx)
	server.Close()
	if err != nil {
		log.Error("run server", zap.String("error", errors.ErrorStack(err)))
		return errors.Annotate(err, "run server")
	}
	log.Info("vtnc server exits successfully")
	return nil
}

// NewCmdServer creates the `server` command.
func NewCmdServer() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "server",
		Short: "Start a VTN coordinator server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(cmd); err != nil {
				return err
			}
			if err := o.validate(cmd); err != nil {
				return err
			}
			return o.run(cmd)
		},
	}

	o.addFlags(command)

	return command
}
