package irrigkit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStatusServer(t *testing.T) (*httptest.Server, *StatusServer, *Controller, *rig) {
	r := newRig(t)
	c := newTestController(t, r)
	ss := NewStatusServer("", c, c.metrics.Registry)
	srv := httptest.NewServer(ss.Handler())
	t.Cleanup(srv.Close)
	return srv, ss, c, r
}

func put(t *testing.T, url string, header map[string]string) int {
	req, err := http.NewRequest(http.MethodPut, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestStatusServerErrAfterClose(t *testing.T) {
	r := newRig(t)
	c := newTestController(t, r)
	ss := NewStatusServer("127.0.0.1:0", c, c.metrics.Registry)

	ss.Start()
	require.NoError(t, ss.Close())

	select {
	case err := <-ss.Err():
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(time.Second):
		t.Fatal("server did not report its result")
	}
}

func TestStatusServerChannels(t *testing.T) {
	srv, _, _, _ := newTestStatusServer(t)

	resp, err := http.Get(srv.URL + "/channels")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	statuses := []ChannelStatus{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
	require.Len(t, statuses, ControlChannels)
	assert.Equal(t, ChannelStatus{Channel: 1, Inbound: "led/c1", Outbound: "irrigation/c1", State: true, Label: "OFF"}, statuses[1])
}

func TestStatusServerControl(t *testing.T) {
	srv, _, c, r := newTestStatusServer(t)

	assert.Equal(t, http.StatusAccepted, put(t, srv.URL+"/channels/2/false", nil))
	c.Tick(context.Background())
	assert.False(t, r.store.State(2))

	assert.Equal(t, http.StatusNotFound, put(t, srv.URL+"/channels/9/true", nil))
	assert.Equal(t, http.StatusNotFound, put(t, srv.URL+"/channels/x/true", nil))
	assert.Equal(t, http.StatusBadRequest, put(t, srv.URL+"/channels/1/maybe", nil))
}

func TestStatusServerToken(t *testing.T) {
	srv, ss, _, _ := newTestStatusServer(t)
	ss.Token = "secret"

	assert.Equal(t, http.StatusUnauthorized, put(t, srv.URL+"/channels/0/false", nil))
	assert.Equal(t, http.StatusAccepted, put(t, srv.URL+"/channels/0/false", map[string]string{"X-Token": "secret"}))
}

func TestStatusServerMetrics(t *testing.T) {
	srv, _, c, _ := newTestStatusServer(t)
	c.Tick(context.Background())

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "irrigkit_scans_total 1")
	assert.Contains(t, string(body), "irrigkit_latch_flushes_total 1")
}
