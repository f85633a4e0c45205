package dashboard

import (
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-map/internal/catalog"
	"github.com/sells-group/census-map/internal/census"
	"github.com/sells-group/census-map/internal/render"
)

const geoJSONContentType = "application/geo+json"

type stateResponse struct {
	catalog.State
	Counties int `json:"counties"`
}

type variableResponse struct {
	catalog.Variable
	Kind census.ColumnKind `json:"kind,omitempty"`
}

func (h *Handler) handleStates(w http.ResponseWriter, _ *http.Request) {
	states := h.data.Catalog.States()
	out := make([]stateResponse, 0, len(states))
	for _, s := range states {
		resp := stateResponse{State: s}
		if p, err := h.data.Index.Lookup(s.Name); err == nil {
			resp.Counties = p.Len()
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleVariables(w http.ResponseWriter, _ *http.Request) {
	vars := h.data.Catalog.Variables()
	out := make([]variableResponse, 0, len(vars))
	for _, v := range vars {
		kind, _ := h.data.Schema.Kind(v.Name)
		out = append(out, variableResponse{Variable: v, Kind: kind})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMap answers GET /api/map?state=&variable=[&format=spec]. Missing
// parameters fall back to the page defaults.
func (h *Handler) handleMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stateName := q.Get("state")
	if stateName == "" {
		stateName = catalog.DefaultState
	}
	varName := q.Get("variable")
	if varName == "" {
		varName = catalog.DefaultVariable
	}

	st, err := h.data.Catalog.State(stateName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_state", "unknown state "+stateName)
		return
	}
	v, err := h.data.Catalog.Variable(varName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_variable", "unknown variable "+varName)
		return
	}

	build := func() (*render.MapSpec, error) {
		p, err := h.data.Index.Lookup(st.Name)
		if err != nil {
			return nil, err
		}
		return h.renderer.Render(p, v, st, boundaryURL(st.Name))
	}

	if q.Get("format") == "spec" {
		spec, err := build()
		if err != nil {
			h.renderError(w, err, st.Name, v.Name)
			return
		}
		writeJSON(w, http.StatusOK, spec)
		return
	}

	start := time.Now()
	data, hit, err := h.figures.Get(st.Name, v.Name, func() ([]byte, error) {
		spec, err := build()
		if err != nil {
			return nil, err
		}
		return spec.EncodeFigure()
	})
	if err != nil {
		h.renderError(w, err, st.Name, v.Name)
		return
	}
	h.metrics.ObserveRender(hit, time.Since(start))
	writeRaw(w, "application/json", cacheLabel(hit), data)
}

func (h *Handler) renderError(w http.ResponseWriter, err error, state, variable string) {
	if eris.Is(err, render.ErrNonNumericVariable) {
		writeError(w, http.StatusUnprocessableEntity, "non_numeric_variable",
			"variable "+variable+" is categorical and cannot be mapped")
		return
	}
	zap.L().Error("dashboard: render failed",
		zap.String("state", state),
		zap.String("variable", variable),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal", "failed to render map")
}

// handleBoundaries answers GET /api/boundaries[?state=]. Without a state
// the whole collection is returned.
func (h *Handler) handleBoundaries(w http.ResponseWriter, r *http.Request) {
	stateName := r.URL.Query().Get("state")
	prefix := ""
	if stateName != "" {
		st, err := h.data.Catalog.State(stateName)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown_state", "unknown state "+stateName)
			return
		}
		prefix = st.FIPS
	}

	data, hit, err := h.boundaries.Get(stateName, "", func() ([]byte, error) {
		return h.data.Boundaries.Encode(prefix)
	})
	if err != nil {
		zap.L().Error("dashboard: encode boundaries", zap.String("state", stateName), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to encode boundaries")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeRaw(w, geoJSONContentType, cacheLabel(hit), data)
}

func boundaryURL(state string) string {
	return "/api/boundaries?state=" + url.QueryEscape(state)
}

func cacheLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
