// Package oauth exposes the authorization-server HTTP endpoints.
package oauth

import (
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/taskhivehq/taskhive/cmd/taskhive/auth"
	"github.com/taskhivehq/taskhive/internal/oauth"
)

// Server wires the protocol components to HTTP.
type Server struct {
	cfg        oauth.Config
	issuer     *oauth.CodeIssuer
	device     *oauth.DeviceFlow
	exchanger  *oauth.Exchanger
	registry   *oauth.Registry
	tokens     *oauth.TokenManager
	principals auth.Resolver
}

// NewServer creates the OAuth HTTP server.
func NewServer(cfg oauth.Config, issuer *oauth.CodeIssuer, device *oauth.DeviceFlow, exchanger *oauth.Exchanger, registry *oauth.Registry, tokens *oauth.TokenManager, principals auth.Resolver) *Server {
	return &Server{
		cfg:        cfg,
		issuer:     issuer,
		device:     device,
		exchanger:  exchanger,
		registry:   registry,
		tokens:     tokens,
		principals: principals,
	}
}

// Routes registers every endpoint on mux. protected wraps the handlers
// that need an authenticated caller.
func (s *Server) Routes(mux *http.ServeMux, protected func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/oauth/authorize", s.HandleAuthorize)
	mux.HandleFunc("/oauth/token", s.HandleToken)
	mux.HandleFunc("/oauth/revoke", s.HandleRevoke)
	mux.HandleFunc("/oauth/device/code", s.HandleDeviceCode)
	mux.HandleFunc("/oauth/device/lookup", protected(s.HandleDeviceLookup))
	mux.HandleFunc("/oauth/device/authorize", protected(s.HandleDeviceAuthorize))
	mux.HandleFunc("/oauth/clients", protected(s.HandleClients))
	mux.HandleFunc("/oauth/clients/", protected(s.HandleClientByID))
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.HandleMetadata)
}

// HandleAuthorize serves the /authorize endpoint: GET validates and renders
// consent, POST applies the decision.
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleAuthorizeBegin(w, r)
	case http.MethodPost:
		s.handleAuthorizeDecision(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAuthorizeBegin(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := oauth.AuthorizeRequest{
		ResponseType:        query.Get("response_type"),
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		Scope:               query.Get("scope"),
		State:               query.Get("state"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
	}

	userID, ok := s.principals.Resolve(r)
	if !ok {
		writeOAuthError(w, http.StatusUnauthorized, oauth.ErrCodeInvalidRequest, "login required")
		return
	}

	consent, err := s.issuer.Begin(r.Context(), req)
	if err != nil {
		s.writeAuthorizeError(w, r, err)
		return
	}

	s.renderConsentPage(w, consent, userID)
}

func (s *Server) handleAuthorizeDecision(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauth.ErrCodeInvalidRequest, "invalid form body")
		return
	}

	userID, ok := s.principals.Resolve(r)
	if !ok {
		writeOAuthError(w, http.StatusUnauthorized, oauth.ErrCodeInvalidRequest, "login required")
		return
	}

	// The POST body is attacker-controlled; Complete re-validates all of
	// it regardless of any earlier GET.
	req := oauth.AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            r.PostFormValue("client_id"),
		RedirectURI:         r.PostFormValue("redirect_uri"),
		Scope:               r.PostFormValue("scope"),
		State:               r.PostFormValue("state"),
		CodeChallenge:       r.PostFormValue("code_challenge"),
		CodeChallengeMethod: r.PostFormValue("code_challenge_method"),
	}
	action := r.PostFormValue("action")

	if requestID := r.PostFormValue("request_id"); requestID != "" {
		defer func() {
			_ = s.issuer.DiscardRequest(r.Context(), requestID)
		}()
	}

	location, err := s.issuer.Complete(r.Context(), action, req, userID)
	if err != nil {
		s.writeAuthorizeError(w, r, err)
		return
	}

	// 303 forces the receiving end back to GET.
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// writeAuthorizeError reports authorize-step failures. Redirectable errors
// go back through the validated redirect URI; everything else is a direct
// response because the redirect URI cannot be trusted yet.
func (s *Server) writeAuthorizeError(w http.ResponseWriter, r *http.Request, err error) {
	var redirect *oauth.RedirectError
	if errors.As(err, &redirect) {
		http.Redirect(w, r, redirect.URL(), http.StatusSeeOther)
		return
	}
	if oe, ok := oauth.AsError(err); ok {
		writeOAuthError(w, http.StatusBadRequest, oe.Code, oe.Description)
		return
	}
	log.Printf("oauth: authorize error: %v", err)
	writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
}

// HandleToken exchanges grants for token pairs.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauth.ErrCodeInvalidRequest, "invalid form body")
		return
	}

	clientID, clientSecret := clientCredentials(r)
	req := oauth.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		DeviceCode:   r.PostFormValue("device_code"),
		Scope:        r.PostFormValue("scope"),
	}

	resp, err := s.exchanger.Exchange(r.Context(), req)
	if err != nil {
		s.writeTokenError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeTokenError(w http.ResponseWriter, err error) {
	if oe, ok := oauth.AsError(err); ok {
		status := http.StatusBadRequest
		if oe.Code == oauth.ErrCodeInvalidClient {
			status = http.StatusUnauthorized
			w.Header().Set("WWW-Authenticate", `Basic realm="taskhive"`)
		}
		writeOAuthError(w, status, oe.Code, oe.Description)
		return
	}
	log.Printf("oauth: token error: %v", err)
	writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
}

// HandleRevoke implements RFC 7009. Unknown tokens still return 200: the
// response must not disclose whether the token existed.
func (s *Server) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauth.ErrCodeInvalidRequest, "invalid form body")
		return
	}

	clientID, clientSecret := clientCredentials(r)
	client, err := s.registry.Authenticate(r.Context(), clientID, clientSecret)
	if err != nil {
		s.writeTokenError(w, err)
		return
	}

	token := r.PostFormValue("token")
	if token == "" {
		writeOAuthError(w, http.StatusBadRequest, oauth.ErrCodeInvalidRequest, "token is required")
		return
	}

	if err := s.tokens.RevokeForClient(r.Context(), token, client.ClientID); err != nil {
		log.Printf("oauth: revoke error: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleDeviceCode begins an RFC 8628 device authorization.
func (s *Server) HandleDeviceCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauth.ErrCodeInvalidRequest, "invalid form body")
		return
	}

	payload, err := s.device.RequestDeviceCode(r.Context(), r.PostFormValue("client_id"), r.PostFormValue("scope"))
	if err != nil {
		s.writeTokenError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// HandleDeviceLookup returns the pending device authorization behind a user
// code, for the verification page.
func (s *Server) HandleDeviceLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userCode := r.URL.Query().Get("user_code")
	if userCode == "" {
		writeOAuthError(w, http.StatusBadRequest, oauth.ErrCodeInvalidRequest, "user_code is required")
		return
	}

	code, err := s.device.LookupByUserCode(r.Context(), userCode)
	if errors.Is(err, oauth.ErrNotFound) {
		writeOAuthError(w, http.StatusNotFound, oauth.ErrCodeInvalidRequest, "unknown user code")
		return
	}
	if err != nil {
		log.Printf("oauth: device lookup error: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	clientName := code.ClientID
	if client, err := s.registry.Get(r.Context(), code.ClientID); err == nil {
		clientName = client.Name
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_code":   code.UserCode,
		"client_name": clientName,
		"scope":       oauth.JoinScope(code.Scopes),
		"expires_in":  int(time.Until(code.ExpiresAt).Seconds()),
	})
}

// HandleDeviceAuthorize applies the user's approve/deny decision.
func (s *Server) HandleDeviceAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauth.ErrCodeInvalidRequest, "invalid form body")
		return
	}

	principal, ok := auth.FromContext(r.Context())
	if !ok || principal.UserID == "" {
		writeOAuthError(w, http.StatusUnauthorized, oauth.ErrCodeInvalidRequest, "login required")
		return
	}

	userCode := r.PostFormValue("user_code")
	action := r.PostFormValue("action")
	err := s.device.Resolve(r.Context(), userCode, action, principal.UserID)
	if errors.Is(err, oauth.ErrNotFound) {
		writeOAuthError(w, http.StatusNotFound, oauth.ErrCodeInvalidRequest, "unknown user code")
		return
	}
	if err != nil {
		if oe, ok := oauth.AsError(err); ok {
			writeOAuthError(w, http.StatusBadRequest, oe.Code, oe.Description)
			return
		}
		log.Printf("oauth: device authorize error: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleClients lists the caller's clients (GET) or registers one (POST).
func (s *Server) HandleClients(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok || principal.UserID == "" {
		writeOAuthError(w, http.StatusUnauthorized, oauth.ErrCodeInvalidRequest, "login required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		clients, err := s.registry.ListByOwner(r.Context(), principal.UserID)
		if err != nil {
			log.Printf("oauth: list clients error: %v", err)
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
			return
		}
		out := make([]map[string]interface{}, 0, len(clients))
		for _, client := range clients {
			out = append(out, clientView(client))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"clients": out})

	case http.MethodPost:
		var body struct {
			Name         string   `json:"name"`
			RedirectURIs []string `json:"redirect_uris"`
			GrantTypes   []string `json:"grant_types"`
			Scopes       []string `json:"scopes"`
			Public       bool     `json:"public"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeOAuthError(w, http.StatusBadRequest, oauth.ErrCodeInvalidRequest, "invalid JSON body")
			return
		}

		client, secret, err := s.registry.Create(r.Context(), principal.UserID, oauth.ClientInput{
			Name:         body.Name,
			RedirectURIs: body.RedirectURIs,
			GrantTypes:   body.GrantTypes,
			Scopes:       body.Scopes,
			IsPublic:     body.Public,
		})
		if err != nil {
			if oe, ok := oauth.AsError(err); ok {
				writeOAuthError(w, http.StatusBadRequest, oe.Code, oe.Description)
				return
			}
			log.Printf("oauth: create client error: %v", err)
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
			return
		}

		// The plaintext secret is shown exactly once, here.
		view := clientView(client)
		if secret != "" {
			view["client_secret"] = secret
		}
		writeJSON(w, http.StatusCreated, view)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleClientByID fetches, updates, or deactivates a single client.
func (s *Server) HandleClientByID(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok || principal.UserID == "" {
		writeOAuthError(w, http.StatusUnauthorized, oauth.ErrCodeInvalidRequest, "login required")
		return
	}

	clientID := strings.TrimPrefix(r.URL.Path, "/oauth/clients/")
	if clientID == "" || strings.Contains(clientID, "/") {
		writeOAuthError(w, http.StatusNotFound, oauth.ErrCodeInvalidRequest, "unknown client")
		return
	}

	switch r.Method {
	case http.MethodGet:
		client, err := s.registry.Get(r.Context(), clientID)
		if errors.Is(err, oauth.ErrNotFound) || (err == nil && client.OwnerID != principal.UserID) {
			writeOAuthError(w, http.StatusNotFound, oauth.ErrCodeInvalidRequest, "unknown client")
			return
		}
		if err != nil {
			log.Printf("oauth: get client error: %v", err)
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
			return
		}
		writeJSON(w, http.StatusOK, clientView(client))

	case http.MethodPut:
		var body struct {
			Name         *string  `json:"name"`
			RedirectURIs []string `json:"redirect_uris"`
			GrantTypes   []string `json:"grant_types"`
			Scopes       []string `json:"scopes"`
			Active       *bool    `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeOAuthError(w, http.StatusBadRequest, oauth.ErrCodeInvalidRequest, "invalid JSON body")
			return
		}

		client, err := s.registry.Update(r.Context(), clientID, principal.UserID, oauth.ClientPatch{
			Name:         body.Name,
			RedirectURIs: body.RedirectURIs,
			GrantTypes:   body.GrantTypes,
			Scopes:       body.Scopes,
			IsActive:     body.Active,
		})
		if err != nil {
			s.writeClientMutationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, clientView(client))

	case http.MethodDelete:
		if err := s.registry.Deactivate(r.Context(), clientID, principal.UserID); err != nil {
			s.writeClientMutationError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeClientMutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, oauth.ErrNotFound):
		writeOAuthError(w, http.StatusNotFound, oauth.ErrCodeInvalidRequest, "unknown client")
	case errors.Is(err, oauth.ErrForbidden):
		writeOAuthError(w, http.StatusForbidden, oauth.ErrCodeInvalidRequest, "not the client owner")
	default:
		if oe, ok := oauth.AsError(err); ok {
			writeOAuthError(w, http.StatusBadRequest, oe.Code, oe.Description)
			return
		}
		log.Printf("oauth: client mutation error: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
	}
}

// HandleMetadata serves RFC 8414 authorization-server metadata.
func (s *Server) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	issuer := s.cfg.Issuer
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                        issuer,
		"authorization_endpoint":        issuer + "/oauth/authorize",
		"token_endpoint":                issuer + "/oauth/token",
		"revocation_endpoint":           issuer + "/oauth/revoke",
		"introspection_endpoint":        issuer + "/oauth/introspect",
		"device_authorization_endpoint": issuer + "/oauth/device/code",
		"response_types_supported":      []string{"code"},
		"grant_types_supported": []string{
			oauth.GrantAuthorizationCode,
			oauth.GrantRefreshToken,
			oauth.GrantClientCredentials,
			"urn:ietf:params:oauth:grant-type:device_code",
		},
		"code_challenge_methods_supported":      []string{"plain", "S256"},
		"token_endpoint_auth_methods_supported": []string{"none", "client_secret_basic", "client_secret_post"},
	})
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <title>Authorize {{.ClientName}}</title>
  <style>
    body { font-family: Arial, sans-serif; background:#0f172a; color:#e2e8f0; display:flex; align-items:center; justify-content:center; height:100vh; margin:0; }
    .card { background:#111827; border:1px solid #1f2937; padding:32px; border-radius:12px; max-width:420px; }
    h1 { margin:0 0 12px; font-size:22px; }
    p { margin:0 0 18px; color:#94a3b8; }
    ul { color:#94a3b8; }
    button { padding:10px 24px; border-radius:8px; border:none; font-size:15px; cursor:pointer; margin-right:8px; }
    .allow { background:#22c55e; color:#052e16; }
    .deny { background:#374151; color:#e2e8f0; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Authorize {{.ClientName}}</h1>
    <p>{{.ClientName}} is requesting access to your TaskHive account:</p>
    <ul>{{range .Scopes}}<li>{{.}}</li>{{end}}</ul>
    <form method="POST" action="/oauth/authorize">
      <input type="hidden" name="request_id" value="{{.RequestID}}" />
      <input type="hidden" name="client_id" value="{{.ClientID}}" />
      <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}" />
      <input type="hidden" name="scope" value="{{.Scope}}" />
      <input type="hidden" name="state" value="{{.State}}" />
      <input type="hidden" name="code_challenge" value="{{.CodeChallenge}}" />
      <input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}" />
      <button class="allow" name="action" value="allow">Allow</button>
      <button class="deny" name="action" value="deny">Deny</button>
    </form>
  </div>
</body>
</html>`))

func (s *Server) renderConsentPage(w http.ResponseWriter, consent *oauth.ConsentContext, userID string) {
	data := struct {
		RequestID           string
		ClientName          string
		ClientID            string
		RedirectURI         string
		Scope               string
		State               string
		CodeChallenge       string
		CodeChallengeMethod string
		Scopes              []string
		UserID              string
	}{
		RequestID:           consent.RequestID,
		ClientName:          consent.Client.Name,
		ClientID:            consent.Request.ClientID,
		RedirectURI:         consent.Request.RedirectURI,
		Scope:               consent.Request.Scope,
		State:               consent.Request.State,
		CodeChallenge:       consent.Request.CodeChallenge,
		CodeChallengeMethod: consent.Request.CodeChallengeMethod,
		Scopes:              consent.Scopes,
		UserID:              userID,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := consentTemplate.Execute(w, data); err != nil {
		log.Printf("oauth: consent render error: %v", err)
	}
}

func clientView(client *oauth.Client) map[string]interface{} {
	return map[string]interface{}{
		"client_id":     client.ClientID,
		"name":          client.Name,
		"redirect_uris": client.RedirectURIs,
		"grant_types":   client.GrantTypes,
		"scopes":        client.Scopes,
		"active":        client.IsActive,
		"public":        client.IsPublic,
		"created_at":    client.CreatedAt.Unix(),
	}
}

// clientCredentials extracts client auth from Basic auth or the form body.
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret")
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	payload := map[string]string{"error": code}
	if description != "" {
		payload["error_description"] = description
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("oauth: write response: %v", err)
	}
}
