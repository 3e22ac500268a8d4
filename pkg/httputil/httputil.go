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

package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pingcap/errors"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/pkg/security"
)

// StatusError is the cause of a request answered with a non 2xx status.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("[%d] %s %s: %s", e.Code, e.Method, e.URL, e.Body)
}

// StatusCode returns the HTTP status of a failed request, 0 if the request
// got no answer.
func StatusCode(err error) int {
	if se, ok := errors.Cause(err).(*StatusError); ok {
		return se.Code
	}
	return 0
}

// Client wraps an HTTP client and support TLS requests.
type Client struct {
	http.Client
	credential *security.Credential
}

// NewClient creates an HTTP client with the given Credential. A zero timeout
// means requests only end with their context.
func NewClient(credential *security.Credential, timeout time.Duration) (*Client, error) {
	transport := http.DefaultTransport
	if credential != nil {
		tlsConf, err := credential.ToTLSConfig()
		if err != nil {
			return nil, err
		}
		if tlsConf != nil {
			httpTrans := http.DefaultTransport.(*http.Transport).Clone()
			httpTrans.TLSClientConfig = tlsConf
			transport = httpTrans
		}
	}
	return &Client{
		Client:     http.Client{Transport: transport, Timeout: timeout},
		credential: credential,
	}, nil
}

// DoRequest sends an request and returns an HTTP response content.
// A non 2xx answer is an ErrTransportRequestFailed caused by a *StatusError.
func (c *Client) DoRequest(
	ctx context.Context, url, method string, headers http.Header, body io.Reader,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Trace(err)
	}

	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if c.credential != nil && c.credential.HasBasicAuth() {
		req.SetBasicAuth(c.credential.Username, c.credential.Password)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, cerrors.WrapError(cerrors.ErrTransportRequestFailed,
			&StatusError{Method: method, URL: url, Code: resp.StatusCode, Body: content},
			method, url, resp.StatusCode)
	}
	return content, nil
}
