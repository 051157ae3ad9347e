package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string               { return f.name }
func (f *fakePinger) Ping(context.Context) error { return f.err }

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	w := do(t, newTestServer(t), http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
}

func TestHandleReady(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	cases := []struct {
		name      string
		pingers   []Pinger
		wantCode  int
		wantReady bool
		wantOK    []bool
	}{
		{
			name:      "no dependencies",
			wantCode:  http.StatusOK,
			wantReady: true,
			wantOK:    []bool{},
		},
		{
			name:      "all reachable",
			pingers:   []Pinger{&fakePinger{name: "index"}, &fakePinger{name: "model"}, &fakePinger{name: "registry"}},
			wantCode:  http.StatusOK,
			wantReady: true,
			wantOK:    []bool{true, true, true},
		},
		{
			name:      "index down",
			pingers:   []Pinger{&fakePinger{name: "index", err: down}, &fakePinger{name: "model"}},
			wantCode:  http.StatusServiceUnavailable,
			wantOK:    []bool{false, true},
		},
		{
			name:     "everything down",
			pingers:  []Pinger{&fakePinger{name: "index", err: down}, &fakePinger{name: "model", err: down}},
			wantCode: http.StatusServiceUnavailable,
			wantOK:   []bool{false, false},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t)
			s.pingers = tc.pingers

			w := do(t, s, http.MethodGet, "/api/ready", "")
			require.Equal(t, tc.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp readyResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tc.wantReady, resp.Ready)
			require.Len(t, resp.Checks, len(tc.wantOK))
			for i, c := range resp.Checks {
				assert.Equal(t, tc.pingers[i].Name(), c.Name, "checks keep pinger order")
				assert.Equal(t, tc.wantOK[i], c.OK, c.Name)
				if !c.OK {
					assert.Equal(t, down.Error(), c.Error)
				}
			}
		})
	}
}
