package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/identity"
	"meridian-hq/meridian/pkg/policies/oauth2"
)

// handleGateway is the catch-all: it matches the request to an endpoint,
// runs the resolved pipeline, and writes the outcome.
func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	engine := s.engine.Load()

	endpoint, ok := engine.Match(r.Host, r.URL.RequestURI(), r.Method)
	if !ok {
		s.metrics.ObserveRequest("", strconv.Itoa(http.StatusNotFound))
		http.NotFound(w, r)
		return
	}

	ec := gateway.NewContext(endpoint, r)
	out := engine.Run(r.Context(), ec)
	s.writeOutcome(w, endpoint.Name, out)
}

func (s *Server) writeOutcome(w http.ResponseWriter, endpoint string, out gateway.Outcome) {
	status := out.Status
	body := out.Body
	if out.Failed() {
		status = http.StatusInternalServerError
		body = []byte("Internal Server Error")
	}

	for name, values := range out.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	s.metrics.ObserveRequest(endpoint, strconv.Itoa(status))
	w.WriteHeader(status)
	if len(body) > 0 {
		w.Write(body)
	}
}

// handleLogin validates a username/password form and sets the session
// cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	session, err := s.oauth.Login(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, oauth2.ErrInvalidSession) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		s.logger.Error("login failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.OAuth2.SessionCookie,
		Value:    session,
		Path:     "/",
		MaxAge:   int(s.cfg.OAuth2.SessionTTL.Std().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusOK)
}

// sessionUser resolves the authenticated user from the session cookie.
func (s *Server) sessionUser(r *http.Request) (*identity.User, error) {
	cookie, err := r.Cookie(s.cfg.OAuth2.SessionCookie)
	if err != nil {
		return nil, oauth2.ErrInvalidSession
	}
	return s.oauth.SessionUser(r.Context(), cookie.Value)
}

// handleAuthorize opens an authorization transaction for a logged-in user
// and returns the consent page with the transaction id in a header.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	user, err := s.sessionUser(r)
	if err != nil {
		if errors.Is(err, oauth2.ErrInvalidSession) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		s.logger.Error("session lookup failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	req := oauth2.AuthorizeRequest{
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		ResponseType: q.Get("response_type"),
	}
	if scope := strings.TrimSpace(q.Get("scope")); scope != "" {
		req.Scopes = strings.Fields(scope)
	}

	txn, err := s.oauth.Authorize(r.Context(), user, req)
	if err != nil {
		if errors.Is(err, oauth2.ErrAuthorizationDenied) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		s.logger.Error("authorize failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Transaction-Id", txn.ID)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, consentPage, txn.ClientID, strings.Join(txn.Scopes, " "), txn.ID)
}

const consentPage = `<html><body>
<p>Application %s requests access to: %s</p>
<form method="post" action="/oauth2/authorize/decision">
<input type="hidden" name="transaction_id" value="%s">
<input type="submit" name="approve" value="Allow">
<input type="submit" name="deny" value="Deny">
</form>
</body></html>
`

// handleDecision consumes a transaction and, when approved, delivers the
// access token in the redirect fragment.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	user, err := s.sessionUser(r)
	if err != nil {
		if errors.Is(err, oauth2.ErrInvalidSession) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		s.logger.Error("session lookup failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	// Clients may send the transaction id as a query parameter or a form
	// field. A bare POST approves; only an explicit deny or cancel field
	// refuses the grant.
	transactionID := r.Form.Get("transaction_id")
	approved := !r.Form.Has("deny") && !r.Form.Has("cancel")

	grant, err := s.oauth.Decision(r.Context(), user, transactionID, approved)
	if err != nil {
		switch {
		case errors.Is(err, oauth2.ErrUnknownTransaction),
			errors.Is(err, oauth2.ErrAuthorizationDenied):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			s.logger.Error("decision failed", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	fragment := url.Values{}
	fragment.Set("access_token", grant.AccessToken)
	fragment.Set("token_type", grant.TokenType)
	fragment.Set("expires_in", strconv.Itoa(grant.ExpiresIn))
	http.Redirect(w, r, grant.RedirectURI+"#"+fragment.Encode(), http.StatusFound)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
