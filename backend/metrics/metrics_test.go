// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/api/messages/conversations", 200, 5*time.Millisecond)
	m.ObserveRequest("GET", "/api/messages/conversations", 200, 5*time.Millisecond)
	m.ObserveRequest("POST", "/api/messages/send", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/messages/conversations", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/api/messages/send", "404")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.MessagesSent.Inc()
	m.Connections.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "messages_sent_total 1")
	assert.Contains(t, string(body), "ws_active_connections 3")
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.MessagesSent.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.MessagesSent))
}
