package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"peer-hub/pkg/model"
	"peer-hub/pkg/store"
	"peer-hub/pkg/version"
)

const defaultAuditLimit = 50

// RegisterRoutes wires the broker's read-only status API on mux.
func RegisterRoutes(mux *http.ServeMux, st store.PeerStore, token string) {
	auth := authFunc(token)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"build": version.Build})
	})

	mux.HandleFunc("/api/v1/peers", guard(auth, func(w http.ResponseWriter, _ *http.Request) {
		peers, err := st.ListPeers()
		if err != nil {
			http.Error(w, "failed to list peers", http.StatusInternalServerError)
			return
		}
		out := make([]model.PeerInfo, 0, len(peers))
		for _, p := range peers {
			out = append(out, p.Redacted())
		}
		v, _ := st.Version()
		writeJSON(w, http.StatusOK, PeersResponse{Version: v, Peers: out})
	}))

	mux.HandleFunc("/api/v1/relays", guard(auth, func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		if name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		links, err := st.RelayLinks(name)
		if err != nil {
			http.Error(w, "failed to list relays", http.StatusInternalServerError)
			return
		}
		if links == nil {
			links = []string{}
		}
		writeJSON(w, http.StatusOK, RelaysResponse{Name: name, Relays: links})
	}))

	mux.HandleFunc("/api/v1/audit", guard(auth, func(w http.ResponseWriter, r *http.Request) {
		limit := defaultAuditLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		entries, err := st.ListAudit(limit)
		if err != nil {
			http.Error(w, "failed to list audit", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []model.AuditEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}))
}

// PeersResponse is the body of GET /api/v1/peers.
type PeersResponse struct {
	Version uint64           `json:"version"`
	Peers   []model.PeerInfo `json:"peers"`
}

type RelaysResponse struct {
	Name   string   `json:"name"`
	Relays []string `json:"relays"`
}

// guard rejects unauthenticated and non-GET requests.
func guard(auth func(*http.Request) bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func authFunc(token string) func(r *http.Request) bool {
	if token == "" {
		return func(_ *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		h := r.Header.Get("X-Auth-Token")
		if h == "" {
			authz := r.Header.Get("Authorization")
			if strings.HasPrefix(authz, "Bearer ") {
				h = strings.TrimPrefix(authz, "Bearer ")
			}
		}
		return h == token
	}
}
