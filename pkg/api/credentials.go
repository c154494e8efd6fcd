package api

import (
	"encoding/json"
	"log"
	"net/http"

	"gorm.io/gorm"

	"peer-hub/pkg/auth"
	"peer-hub/pkg/db"
)

// CredentialHandler manages the MySQL credential table that backs the
// broker's auth policy.
type CredentialHandler struct {
	DB    *gorm.DB
	Token string
	// OnChange receives the reloaded policy after every successful write.
	OnChange func(auth.Policy)
	// Policy returns the table credentials are checked against.
	Policy func() auth.Policy
}

type credentialRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *CredentialHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/credentials", c.handle)
	mux.HandleFunc("/api/v1/credentials/verify", c.Verify)
}

// Verify checks a username/password pair against the live policy.
func (c *CredentialHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if !authFunc(c.Token)(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	var policy auth.Policy
	if c.Policy != nil {
		policy = c.Policy()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": policy.Verify(req.Username, req.Password)})
}

func (c *CredentialHandler) handle(w http.ResponseWriter, r *http.Request) {
	if !authFunc(c.Token)(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	switch r.Method {
	case http.MethodGet:
		names, err := db.Usernames(c.DB)
		if err != nil {
			http.Error(w, "failed to list credentials", http.StatusInternalServerError)
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"usernames": names})
	case http.MethodPost:
		var req credentialRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if err := db.AddCredential(c.DB, req.Username, req.Password); err != nil {
			log.Printf("add credential %s failed: %v", req.Username, err)
			http.Error(w, "failed to store credential", http.StatusInternalServerError)
			return
		}
		policy, err := db.LoadPolicy(c.DB)
		if err != nil {
			log.Printf("reload auth policy failed: %v", err)
			http.Error(w, "failed to reload policy", http.StatusInternalServerError)
			return
		}
		if c.OnChange != nil {
			c.OnChange(policy)
		}
		log.Printf("credential stored user=%s users=%d", req.Username, len(policy))
		writeJSON(w, http.StatusOK, map[string]string{"username": req.Username})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
