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

package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/pkg/security"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

const (
	// DefaultDataDir is used when data-dir is not set.
	DefaultDataDir = "/tmp/vtnc_data"

	defaultAddr = "127.0.0.1:8300"
)

var defaultServerConfig = &ServerConfig{
	Addr:     defaultAddr,
	DataDir:  "",
	LogFile:  "",
	LogLevel: "info",
	Log: &LogConfig{
		File: &LogFileConfig{
			MaxSize:    300,
			MaxDays:    0,
			MaxBackups: 0,
		},
	},
	WorkerPool: &WorkerPoolConfig{
		Workers:      8,
		AuditWorkers: 4,
		QueueSize:    1024,
	},
	Session: &SessionConfig{
		ReadTimeout:    TomlDuration(5 * time.Minute),
		AcquireTimeout: TomlDuration(30 * time.Second),
	},
	Audit: &AuditConfig{
		EnableDriverAudit: true,
	},
	Controller: &ControllerConfig{
		PingInterval:   TomlDuration(10 * time.Second),
		RequestTimeout: TomlDuration(30 * time.Second),
		ConnectTimeout: TomlDuration(10 * time.Second),
		MaxRetries:     3,
	},
	Security: &security.Credential{},
	DB:       NewDefaultDBConfig(),
}

// ServerConfig is the configuration of the vtnc server.
type ServerConfig struct {
	Addr    string `toml:"addr" json:"addr"`
	DataDir string `toml:"data-dir" json:"data-dir"`

	LogFile  string     `toml:"log-file" json:"log-file"`
	LogLevel string     `toml:"log-level" json:"log-level"`
	Log      *LogConfig `toml:"log" json:"log"`

	WorkerPool *WorkerPoolConfig `toml:"worker-pool" json:"worker-pool"`
	Session    *SessionConfig    `toml:"session" json:"session"`
	Audit      *AuditConfig      `toml:"audit" json:"audit"`
	Controller *ControllerConfig `toml:"controller" json:"controller"`

	// Security is the TLS material used to reach https controllers.
	Security *security.Credential `toml:"security" json:"security"`
	DB       *DBConfig            `toml:"db" json:"db"`

	Controllers []model.ControllerInfo `toml:"controllers" json:"controllers"`
}

// LogConfig is the log configuration.
type LogConfig struct {
	File *LogFileConfig `toml:"file" json:"file"`
}

// LogFileConfig is the rotation configuration of the log file.
type LogFileConfig struct {
	MaxSize    int `toml:"max-size" json:"max-size"`
	MaxDays    int `toml:"max-days" json:"max-days"`
	MaxBackups int `toml:"max-backups" json:"max-backups"`
}

// WorkerPoolConfig sizes the request and audit pools.
type WorkerPoolConfig struct {
	Workers      int `toml:"workers" json:"workers"`
	AuditWorkers int `toml:"audit-workers" json:"audit-workers"`
	QueueSize    int `toml:"queue-size" json:"queue-size"`
}

// SessionConfig holds the session timeouts.
type SessionConfig struct {
	// ReadTimeout releases a read session nobody released.
	ReadTimeout TomlDuration `toml:"read-timeout" json:"read-timeout"`
	// AcquireTimeout is used by a timed acquire without timeout.
	AcquireTimeout TomlDuration `toml:"acquire-timeout" json:"acquire-timeout"`
}

// AuditConfig is the audit configuration.
type AuditConfig struct {
	EnableDriverAudit bool `toml:"enable-driver-audit" json:"enable-driver-audit"`
}

// ControllerConfig is shared by every controller connection.
type ControllerConfig struct {
	PingInterval   TomlDuration `toml:"ping-interval" json:"ping-interval"`
	RequestTimeout TomlDuration `toml:"request-timeout" json:"request-timeout"`
	ConnectTimeout TomlDuration `toml:"connect-timeout" json:"connect-timeout"`
	MaxRetries     int          `toml:"max-retries" json:"max-retries"`
}

// Marshal returns the json marshal format of a ServerConfig
func (c *ServerConfig) Marshal() (string, error) {
	cfg, err := json.Marshal(c)
	if err != nil {
		return "", errors.Annotatef(err, "Unmarshal data: %v", c)
	}
	return string(cfg), nil
}

// Unmarshal unmarshals into *ServerConfig from json marshal byte slice
func (c *ServerConfig) Unmarshal(data []byte) error {
	return errors.Trace(json.Unmarshal(data, c))
}

// String implements the Stringer interface
func (c *ServerConfig) String() string {
	s, _ := c.Marshal()
	return s
}

// Clone clones a ServerConfig
func (c *ServerConfig) Clone() *ServerConfig {
	str, err := c.Marshal()
	if err != nil {
		log.Panic("failed to marshal server config", zap.Error(err))
	}
	clone := new(ServerConfig)
	err = clone.Unmarshal([]byte(str))
	if err != nil {
		log.Panic("failed to unmarshal server config", zap.Error(err))
	}
	// password is not marshaled
	if c.Security != nil {
		clone.Security.Password = c.Security.Password
	}
	for i := range c.Controllers {
		clone.Controllers[i].Password = c.Controllers[i].Password
	}
	return clone
}

// ValidateAndAdjust validates and adjusts the server configuration
func (c *ServerConfig) ValidateAndAdjust() error {
	if c.Addr == "" {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("empty address")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return cerrors.WrapError(cerrors.ErrInvalidServerOption, err, "invalid address "+c.Addr)
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	defaultCfg := GetDefaultServerConfig()
	if c.Log == nil {
		c.Log = defaultCfg.Log
	}
	if c.Log.File == nil {
		c.Log.File = defaultCfg.Log.File
	}
	if c.Security == nil {
		c.Security = &security.Credential{}
	}
	if c.DB == nil {
		c.DB = defaultCfg.DB
	}
	if err := c.DB.ValidateAndAdjust(); err != nil {
		return errors.Trace(err)
	}

	if c.WorkerPool == nil {
		c.WorkerPool = defaultCfg.WorkerPool
	}
	if c.WorkerPool.Workers <= 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("worker-pool.workers must be positive")
	}
	if c.WorkerPool.AuditWorkers <= 0 {
		log.Warn("audit-workers is not positive, use the default",
			zap.Int("auditWorkers", c.WorkerPool.AuditWorkers))
		c.WorkerPool.AuditWorkers = defaultCfg.WorkerPool.AuditWorkers
	}
	if c.WorkerPool.QueueSize <= 0 {
		c.WorkerPool.QueueSize = defaultCfg.WorkerPool.QueueSize
	}

	if c.Session == nil {
		c.Session = defaultCfg.Session
	}
	if c.Session.ReadTimeout <= 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("session.read-timeout must be positive")
	}
	if c.Session.AcquireTimeout < 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("session.acquire-timeout must not be negative")
	}
	if c.Audit == nil {
		c.Audit = defaultCfg.Audit
	}

	if c.Controller == nil {
		c.Controller = defaultCfg.Controller
	}
	if c.Controller.PingInterval < 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("controller.ping-interval must not be negative")
	}
	if c.Controller.RequestTimeout <= 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("controller.request-timeout must be positive")
	}
	if c.Controller.ConnectTimeout <= 0 {
		c.Controller.ConnectTimeout = defaultCfg.Controller.ConnectTimeout
	}
	if c.Controller.MaxRetries < 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("controller.max-retries must not be negative")
	}

	names := make(map[string]struct{}, len(c.Controllers))
	for i := range c.Controllers {
		info := &c.Controllers[i]
		if err := info.Validate(); err != nil {
			return cerrors.WrapError(cerrors.ErrInvalidServerOption, err,
				fmt.Sprintf("the %s controller is invalid", humanize.Ordinal(i+1)))
		}
		if _, ok := names[info.Name]; ok {
			return cerrors.ErrInvalidServerOption.GenWithStackByArgs(
				fmt.Sprintf("the %s controller %s is configured twice", humanize.Ordinal(i+1), info.Name))
		}
		names[info.Name] = struct{}{}
	}
	return nil
}

// GetDefaultServerConfig returns the default server config
func GetDefaultServerConfig() *ServerConfig {
	return defaultServerConfig.Clone()
}

// TomlDuration is a duration with a custom json decoder and toml decoder
type TomlDuration time.Duration

// UnmarshalText is the toml decoder
func (d *TomlDuration) UnmarshalText(text []byte) error {
	stdDuration, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Trace(err)
	}
	*d = TomlDuration(stdDuration)
	return nil
}

// MarshalText is the toml encoder
func (d TomlDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalJSON is the json decoder
func (d *TomlDuration) UnmarshalJSON(b []byte) error {
	var stdDuration time.Duration
	if err := json.Unmarshal(b, &stdDuration); err != nil {
		return errors.Trace(err)
	}
	*d = TomlDuration(stdDuration)
	return nil
}

// MarshalJSON is the json encoder
func (d TomlDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d))
}
