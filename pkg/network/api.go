package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes returns the fabric API.
//
//	GET    /api/v1/topology                        leaf and spine cabling
//	GET    /api/v1/devices                         switches with a driver
//	GET    /api/v1/hosts/{host}/vlans              VLANs active on a host
//	POST   /api/v1/networks                        network created
//	DELETE /api/v1/networks/{tenant}/{network}     network deleted
//	POST   /api/v1/ports                           port created
//	PUT    /api/v1/ports                           port updated (migration)
//	DELETE /api/v1/ports                           port deleted
//	POST   /api/v1/sync                            run a full sync now
func (m *Manager) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Heartbeat("/healthz"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/topology", m.handleTopology)
		r.Get("/devices", m.handleDevices)
		r.Get("/hosts/{host}/vlans", m.handleHostVLANs)

		r.Post("/networks", m.handleNetworkCreate)
		r.Delete("/networks/{tenant}/{network}", m.handleNetworkDelete)

		r.Post("/ports", m.handlePort(m.OnPortCreated))
		r.Put("/ports", m.handlePort(m.OnPortUpdated))
		r.Delete("/ports", m.handlePort(m.OnPortDeleted))

		r.Post("/sync", m.handleSync)
	})

	return r
}

func (m *Manager) handleTopology(w http.ResponseWriter, r *http.Request) {
	type leafView struct {
		IP    string      `json:"ip"`
		OEM   string      `json:"oem"`
		Hosts interface{} `json:"hosts"`
	}
	type spineView struct {
		IP     string      `json:"ip"`
		OEM    string      `json:"oem"`
		Leaves interface{} `json:"leaves"`
	}

	out := struct {
		Leaves []leafView  `json:"leaves"`
		Spines []spineView `json:"spines"`
	}{Leaves: []leafView{}, Spines: []spineView{}}

	for _, d := range m.fabric.Devices() {
		if l, ok := m.fabric.Leaf(d.IP); ok {
			out.Leaves = append(out.Leaves, leafView{IP: l.IP, OEM: l.OEM, Hosts: l.Connections})
			continue
		}
		if s, ok := m.fabric.Spine(d.IP); ok {
			out.Spines = append(out.Spines, spineView{IP: s.IP, OEM: s.OEM, Leaves: s.Connections})
		}
	}

	writeJSON(w, http.StatusOK, out)
}

func (m *Manager) handleDevices(w http.ResponseWriter, r *http.Request) {
	type deviceView struct {
		Node
		Backend string        `json:"backend"`
		Status  *DeviceStatus `json:"status,omitempty"`
	}

	nodes := m.registry.List()
	out := make([]deviceView, 0, len(nodes))
	for _, n := range nodes {
		v := deviceView{Node: n, Backend: n.Driver.Backend()}
		if m.watchdog != nil {
			if st, ok := m.watchdog.Status(n.Address); ok {
				v.Status = &st
			}
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (m *Manager) handleHostVLANs(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")

	vlans, err := m.store.ActiveVLANs(host)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if vlans == nil {
		vlans = []int{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"host":   host,
		"leaves": m.fabric.LeavesFor(host),
		"vlans":  vlans,
	})
}

type networkRequest struct {
	TenantID  string    `json:"tenantID"`
	NetworkID string    `json:"networkID"`
	Segments  []Segment `json:"segments"`
}

func (m *Manager) handleNetworkCreate(w http.ResponseWriter, r *http.Request) {
	var req networkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.TenantID == "" || req.NetworkID == "" {
		writeError(w, http.StatusBadRequest, errors.New("tenantID and networkID are required"))
		return
	}

	if err := m.OnNetworkCreated(r.Context(), req.TenantID, req.NetworkID, req.Segments); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (m *Manager) handleNetworkDelete(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	netID := chi.URLParam(r, "network")

	if err := m.OnNetworkDeleted(r.Context(), tenant, netID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (m *Manager) handlePort(fn func(ctx context.Context, ev PortEvent) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev PortEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if ev.NetworkID == "" || ev.PortID == "" || ev.HostID == "" {
			writeError(w, http.StatusBadRequest, errors.New("networkID, portID and hostID are required"))
			return
		}

		if err := fn(r.Context(), ev); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (m *Manager) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := m.Sync(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
