package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ticketTTL is how long a WebSocket ticket stays redeemable.
const ticketTTL = 60 * time.Second

// defaultTokenTTLMinutes is used when the config leaves the token TTL unset.
const defaultTokenTTLMinutes = 60

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]time.Time
	mu      sync.Mutex
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]time.Time)}
}

// handleLogin checks the operator credential and returns a signed JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !s.credentialsMatch(req.Username, req.Password) {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl == 0 {
		ttl = defaultTokenTTLMinutes
	}

	claims := jwt.MapClaims{
		"sub": req.Username,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Duration(ttl) * time.Minute).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secCfg.JWT.Secret))
	if err != nil {
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60, // seconds
	})
}

// credentialsMatch compares the submitted credential against the configured
// operator in constant time.
func (s *Server) credentialsMatch(username, password string) bool {
	op := s.secCfg.Operator
	if op.Username == "" || op.Password == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(op.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(op.Password)) == 1
	return userOK && passOK
}

// handleWSTicket issues a single-use WebSocket authentication ticket.
// The client redeems the ticket on the WebSocket upgrade so the JWT never
// appears in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, _ *http.Request) {
	ticket := generateTicket()

	s.tickets.mu.Lock()
	s.tickets.tickets[ticket] = time.Now().Add(ticketTTL)
	s.tickets.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// validateTicket checks whether a ticket is valid and consumes it.
func (s *Server) validateTicket(ticket string) bool {
	s.tickets.mu.Lock()
	defer s.tickets.mu.Unlock()

	expiresAt, ok := s.tickets.tickets[ticket]
	if !ok {
		return false
	}

	// Single-use
	delete(s.tickets.tickets, ticket)

	return time.Now().Before(expiresAt)
}

// cleanExpiredTickets drops tickets that were issued but never redeemed.
func (s *Server) cleanExpiredTickets() {
	s.tickets.mu.Lock()
	defer s.tickets.mu.Unlock()

	now := time.Now()
	for ticket, expiresAt := range s.tickets.tickets {
		if now.After(expiresAt) {
			delete(s.tickets.tickets, ticket)
		}
	}
}

// cleanTicketsLoop runs cleanExpiredTickets periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanExpiredTickets()
		}
	}
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}
