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

// Package odc implements the driver of OpenDaylight style controllers, which
// expose the virtual network tree over a REST/JSON API.
package odc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/pkg/httputil"
	"github.com/pingcap/vtnc/pkg/retry"
	"github.com/pingcap/vtnc/pkg/security"
	"github.com/pingcap/vtnc/tc/driver"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

const (
	defaultPort      = 8080
	apiPrefix        = "/controller/nb/v2/vtn"
	defaultContainer = "/default"
)

// Config configures the driver.
type Config struct {
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	// TLS is used for every controller, the account comes from the
	// controller configuration.
	TLS *security.Credential
}

// Option configures the driver.
type Option func(*Driver)

// WithTransport replaces the HTTP transport, for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(d *Driver) { d.transport = rt }
}

// Driver is the driver of odc controllers.
type Driver struct {
	driver.Base
	cfg       Config
	transport http.RoundTripper
}

// NewDriver creates the driver. BOUNDARY is not served by odc controllers.
func NewDriver(cfg Config, opts ...Option) *Driver {
	table := driver.NewCommandTable()
	d := &Driver{cfg: cfg}
	for kt := range resources {
		table.MustRegister(&command{res: resources[kt], drv: d})
	}
	d.Base = driver.NewBase(model.ControllerTypeODC, table)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type conn struct {
	client    *httputil.Client
	root      string
	container string
}

func (c *conn) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// Connect implements driver.Driver. No request is sent.
func (d *Driver) Connect(info model.ControllerInfo) (driver.Conn, error) {
	cred := &security.Credential{Username: info.Username, Password: info.Password}
	scheme := "http"
	if d.cfg.TLS != nil && d.cfg.TLS.CAPath != "" {
		cred.CAPath = d.cfg.TLS.CAPath
		cred.CertPath = d.cfg.TLS.CertPath
		cred.KeyPath = d.cfg.TLS.KeyPath
		cred.CertAllowedCN = d.cfg.TLS.CertAllowedCN
		scheme = "https"
	}
	client, err := httputil.NewClient(cred, d.cfg.RequestTimeout)
	if err != nil {
		return nil, cerrors.WrapError(cerrors.ErrDriverFailure, err, info.Name)
	}
	if d.transport != nil {
		client.Transport = d.transport
	}
	port := info.Port
	if port == 0 {
		port = defaultPort
	}
	root := fmt.Sprintf("%s://%s:%d%s", scheme, info.Address, port, apiPrefix)
	return &conn{client: client, root: root, container: root + defaultContainer}, nil
}

// Ping implements driver.Driver.
func (d *Driver) Ping(ctx context.Context, ctr *driver.Controller) error {
	_, err := d.do(ctx, ctr, http.MethodGet, "/version", nil, true)
	return err
}

func connOf(ctr *driver.Controller) (*conn, error) {
	c, ok := ctr.Conn().(*conn)
	if !ok {
		return nil, cerrors.ErrControllerDisconnected.GenWithStackByArgs(ctr.Name())
	}
	return c, nil
}

// do sends a request and maps its failure to a driver error. Paths starting
// with "/version" are relative to the api root, others to the container.
func (d *Driver) do(
	ctx context.Context, ctr *driver.Controller, method, path string, body interface{}, idempotent bool,
) ([]byte, error) {
	c, err := connOf(ctr)
	if err != nil {
		return nil, err
	}
	url := c.container + path
	if path == "/version" {
		url = c.root + path
	}
	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return nil, cerrors.WrapError(cerrors.ErrDriverFailure, err, ctr.Name())
		}
	}
	headers := http.Header{"Accept": []string{"application/json"}}
	if payload != nil {
		headers.Set("Content-Type", "application/json")
	}

	var resp []byte
	err = retry.Do(ctx, func() error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		var inErr error
		resp, inErr = c.client.DoRequest(ctx, url, method, headers, reqBody)
		return inErr
	},
		retry.WithMaxTries(int64(d.cfg.MaxRetries)+1),
		retry.WithBackoffBaseDelay(d.cfg.RetryBaseDelay.Milliseconds()),
		retry.WithIsRetryableErr(func(err error) bool {
			return isRetryable(err, idempotent)
		}))
	if err != nil {
		log.Warn("controller request failed",
			zap.String("controller", ctr.Name()),
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err))
		return nil, classify(ctr.Name(), err)
	}
	return resp, nil
}

// isRetryable retries an unanswered request only if it is idempotent, and a
// busy answer always.
func isRetryable(err error, idempotent bool) bool {
	if cerrors.IsContextCanceledError(err) || cerrors.IsContextDeadlineExceededError(err) {
		return false
	}
	switch code := httputil.StatusCode(err); {
	case code == http.StatusServiceUnavailable || code == http.StatusTooManyRequests:
		return true
	case code == 0:
		return idempotent
	}
	return false
}

func classify(name string, err error) error {
	code := httputil.StatusCode(err)
	switch {
	case code == http.StatusServiceUnavailable || code == http.StatusTooManyRequests:
		return cerrors.WrapError(cerrors.ErrDriverBusy, err, name)
	case code >= http.StatusBadRequest && code < http.StatusInternalServerError:
		return cerrors.WrapError(cerrors.ErrDriverOperAbort, err, name, http.StatusText(code))
	}
	return cerrors.WrapError(cerrors.ErrDriverFailure, err, name)
}

type command struct {
	res resource
	drv *Driver
}

func (c *command) KeyType() model.KeyType {
	return c.res.keyType
}

func (c *command) Validate(node model.ConfigNode) error {
	return driver.ValidateNode(node)
}

func (c *command) body(node model.ConfigNode) map[string]interface{} {
	body := make(map[string]interface{}, len(node.Attrs)+1)
	for k, v := range node.Attrs {
		body[k] = v
	}
	body[c.res.nameField] = node.Name()
	return body
}

func (c *command) Create(ctx context.Context, ctr *driver.Controller, node model.ConfigNode) error {
	_, err := c.drv.do(ctx, ctr, http.MethodPost, objectPath(node.KeyType, node.Key), c.body(node), false)
	return err
}

func (c *command) Update(ctx context.Context, ctr *driver.Controller, node model.ConfigNode) error {
	_, err := c.drv.do(ctx, ctr, http.MethodPut, objectPath(node.KeyType, node.Key), c.body(node), true)
	return err
}

func (c *command) Delete(ctx context.Context, ctr *driver.Controller, node model.ConfigNode) error {
	_, err := c.drv.do(ctx, ctr, http.MethodDelete, objectPath(node.KeyType, node.Key), nil, true)
	return err
}

func (c *command) FetchChildren(
	ctx context.Context, ctr *driver.Controller, parentKey string,
) ([]model.ConfigNode, error) {
	resp, err := c.drv.do(ctx, ctr, http.MethodGet, collectionPath(c.res.keyType, parentKey), nil, true)
	if err != nil {
		return nil, err
	}
	var list map[string][]map[string]interface{}
	if err := json.Unmarshal(resp, &list); err != nil {
		return nil, cerrors.WrapError(cerrors.ErrDriverFailure, err, ctr.Name())
	}
	elems := list[c.res.element]
	nodes := make([]model.ConfigNode, 0, len(elems))
	for _, elem := range elems {
		name, ok := elem[c.res.nameField].(string)
		if !ok {
			return nil, cerrors.ErrDriverFailure.GenWithStackByArgs(ctr.Name())
		}
		attrs := make(map[string]string, len(elem))
		for k, v := range elem {
			if k == c.res.nameField {
				continue
			}
			switch v.(type) {
			case string, float64, bool:
				attrs[k] = fmt.Sprint(v)
			}
		}
		key := name
		if parentKey != "" {
			key = parentKey + model.KeySeparator + key
		}
		node := model.ConfigNode{KeyType: c.res.keyType, Key: key, Attrs: attrs}
		if err := node.Validate(); err != nil {
			return nil, cerrors.WrapError(cerrors.ErrDriverFailure, err, ctr.Name())
		}
		if err := c.Validate(node); err != nil {
			return nil, cerrors.WrapError(cerrors.ErrDriverFailure, err, ctr.Name())
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

var _ driver.Driver = (*Driver)(nil)
