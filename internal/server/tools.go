package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/tool"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/logging"
)

// toolDescriptor is one entry of GET /api/tools.
type toolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters,omitempty"`
}

type toolsResponse struct {
	Tools []toolDescriptor `json:"tools"`
}

// toolRunResponse is the JSON response for POST /api/tools/{name}.
type toolRunResponse struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
}

// invokable keeps the tools that can be run directly, in registration order.
func invokable(ts []tool.BaseTool) []tool.InvokableTool {
	out := make([]tool.InvokableTool, 0, len(ts))
	for _, t := range ts {
		if it, ok := t.(tool.InvokableTool); ok {
			out = append(out, it)
		}
	}
	return out
}

// handleListTools handles GET /api/tools.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := toolsResponse{Tools: make([]toolDescriptor, 0, len(s.tools))}
	for _, t := range s.tools {
		info, err := t.Info(ctx)
		if err != nil {
			writeError(ctx, w, apperr.Wrap(err, apperr.KindInternal, "describe tool"))
			return
		}
		d := toolDescriptor{Name: info.Name, Description: info.Desc}
		if info.ParamsOneOf != nil {
			params, err := info.ParamsOneOf.ToJSONSchema()
			if err != nil {
				writeError(ctx, w, apperr.Wrap(err, apperr.KindInternal, "describe tool parameters"))
				return
			}
			d.Parameters = params
		}
		out.Tools = append(out.Tools, d)
	}
	writeJSON(ctx, w, http.StatusOK, out)
}

// handleRunTool handles POST /api/tools/{name}. The body is the tool's JSON
// arguments object and is passed to InvokableRun unchanged.
func (s *Server) handleRunTool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	var target tool.InvokableTool
	for _, t := range s.tools {
		info, err := t.Info(ctx)
		if err == nil && info.Name == name {
			target = t
			break
		}
	}
	if target == nil {
		writeError(ctx, w, apperr.Newf(apperr.KindNotFound, "no tool named %q", name))
		return
	}

	var args json.RawMessage
	if !decodeJSON(w, r, &args) {
		return
	}
	if strings.TrimSpace(string(args)) == "null" {
		writeError(ctx, w, apperr.New(apperr.KindValidation, "tool arguments must be a JSON object"))
		return
	}

	out, err := target.InvokableRun(ctx, string(args))
	if err != nil {
		writeError(ctx, w, apperr.WithTool(err, name))
		return
	}
	logging.FromContext(ctx).Debug("tool invoked", slog.String("tool", name))
	writeJSON(ctx, w, http.StatusOK, toolRunResponse{Tool: name, Output: out})
}
