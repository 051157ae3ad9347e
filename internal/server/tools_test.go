package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/tools"
)

func newToolServer(t *testing.T) *Server {
	t.Helper()
	calc, err := tools.NewCalculator()
	require.NoError(t, err)
	s, _ := newTestServerWith(t, func(c *Config) {
		c.Tools = []tool.BaseTool{tools.NewCalculatorTool(calc)}
	})
	return s
}

func TestHandleListTools(t *testing.T) {
	t.Parallel()

	w := do(t, newToolServer(t), http.MethodGet, "/api/tools", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Tools []struct {
			Name       string         `json:"name"`
			Parameters map[string]any `json:"parameters"`
		} `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Tools, 1)
	assert.Equal(t, tools.CalculatorName, body.Tools[0].Name)
	assert.Contains(t, body.Tools[0].Parameters, "properties")
}

func TestHandleRunTool(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantKind   apperr.Kind
		wantOutput string
	}{
		{
			name:       "evaluates",
			path:       "/api/tools/calculator",
			body:       `{"expression":"15% of 240"}`,
			wantStatus: http.StatusOK,
			wantOutput: "The result of (15/100) * 240 is 36",
		},
		{
			name:       "division by zero",
			path:       "/api/tools/calculator",
			body:       `{"expression":"divide 5 by 0"}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   apperr.KindDivisionByZero,
		},
		{
			name:       "missing expression",
			path:       "/api/tools/calculator",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   apperr.KindValidation,
		},
		{
			name:       "null arguments",
			path:       "/api/tools/calculator",
			body:       `null`,
			wantStatus: http.StatusBadRequest,
			wantKind:   apperr.KindValidation,
		},
		{
			name:       "unknown tool",
			path:       "/api/tools/weather",
			body:       `{}`,
			wantStatus: http.StatusNotFound,
			wantKind:   apperr.KindNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := do(t, newToolServer(t), http.MethodPost, tc.path, tc.body)
			require.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			if tc.wantKind != "" {
				assert.Equal(t, string(tc.wantKind), decodeError(t, w).Kind)
				return
			}
			var out toolRunResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
			assert.Equal(t, tools.CalculatorName, out.Tool)
			assert.Equal(t, tc.wantOutput, out.Output)
		})
	}
}
