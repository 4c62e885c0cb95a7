package oauth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Storage used for development and tests when
// no database is configured. A single mutex makes every check-then-act
// sequence atomic. State does not survive restarts or span instances, so
// production deployments use Store.
type MemoryStore struct {
	mu           sync.Mutex
	clients      map[string]*Client
	authRequests map[string]*AuthRequest
	authCodes    map[string]*AuthorizationCode
	deviceCodes  map[string]*DeviceCode
	userCodes    map[string]string // user code -> device code digest
	tokens       map[string]*Token
	byAccess     map[string]string // access digest -> token id
	byRefresh    map[string]string // refresh digest -> token id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:      make(map[string]*Client),
		authRequests: make(map[string]*AuthRequest),
		authCodes:    make(map[string]*AuthorizationCode),
		deviceCodes:  make(map[string]*DeviceCode),
		userCodes:    make(map[string]string),
		tokens:       make(map[string]*Token),
		byAccess:     make(map[string]string),
		byRefresh:    make(map[string]string),
	}
}

func (s *MemoryStore) SaveClient(_ context.Context, client *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now
	cp := *client
	s.clients[client.ClientID] = &cp
	return nil
}

func (s *MemoryStore) GetClient(_ context.Context, clientID string) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *client
	return &cp, nil
}

func (s *MemoryStore) ListClientsByOwner(_ context.Context, ownerID string) ([]*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Client
	for _, client := range s.clients {
		if client.OwnerID == ownerID {
			cp := *client
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveAuthRequest(_ context.Context, req *AuthRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.authRequests[req.RequestID] = &cp
	return nil
}

func (s *MemoryStore) GetAuthRequest(_ context.Context, requestID string) (*AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.authRequests[requestID]
	if !ok || time.Now().After(req.ExpiresAt) {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *MemoryStore) DeleteAuthRequest(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.authRequests, requestID)
	return nil
}

func (s *MemoryStore) SaveAuthCode(_ context.Context, code *AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *code
	s.authCodes[code.CodeDigest] = &cp
	return nil
}

func (s *MemoryStore) RedeemAuthCode(_ context.Context, codeDigest string) (*AuthorizationCode, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.authCodes[codeDigest]
	if !ok {
		return nil, false, ErrNotFound
	}
	if code.Used {
		cp := *code
		return &cp, true, nil
	}
	code.Used = true
	cp := *code
	return &cp, false, nil
}

func (s *MemoryStore) SaveDeviceCode(_ context.Context, code *DeviceCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *code
	s.deviceCodes[code.DeviceCodeDigest] = &cp
	s.userCodes[code.UserCode] = code.DeviceCodeDigest
	return nil
}

func (s *MemoryStore) GetDeviceCode(_ context.Context, deviceCodeDigest string) (*DeviceCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.deviceCodes[deviceCodeDigest]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *code
	return &cp, nil
}

func (s *MemoryStore) GetPendingDeviceCodeByUserCode(_ context.Context, userCode string, now time.Time) (*DeviceCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := s.deviceCodeByUserCodeLocked(userCode)
	if code == nil || code.Status != DeviceStatusPending || !now.Before(code.ExpiresAt) {
		return nil, ErrNotFound
	}
	cp := *code
	return &cp, nil
}

func (s *MemoryStore) ResolveDeviceCode(_ context.Context, userCode string, status DeviceStatus, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := s.deviceCodeByUserCodeLocked(userCode)
	if code == nil || code.Status != DeviceStatusPending || !now.Before(code.ExpiresAt) {
		return ErrNotFound
	}
	code.Status = status
	code.UserID = userID
	return nil
}

func (s *MemoryStore) TouchDeviceCodePoll(_ context.Context, deviceCodeDigest string, lastPollAt time.Time, interval int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.deviceCodes[deviceCodeDigest]
	if !ok {
		return ErrNotFound
	}
	code.LastPollAt = lastPollAt
	code.Interval = interval
	return nil
}

func (s *MemoryStore) ConsumeDeviceCode(_ context.Context, deviceCodeDigest string) (*DeviceCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.deviceCodes[deviceCodeDigest]
	if !ok || code.Status != DeviceStatusApproved {
		return nil, ErrNotFound
	}
	delete(s.deviceCodes, deviceCodeDigest)
	delete(s.userCodes, code.UserCode)
	return code, nil
}

func (s *MemoryStore) DeleteDeviceCode(_ context.Context, deviceCodeDigest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.deviceCodes[deviceCodeDigest]; ok {
		delete(s.userCodes, code.UserCode)
		delete(s.deviceCodes, deviceCodeDigest)
	}
	return nil
}

func (s *MemoryStore) UserCodeExists(_ context.Context, userCode string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.userCodes[userCode]
	return ok, nil
}

func (s *MemoryStore) deviceCodeByUserCodeLocked(userCode string) *DeviceCode {
	digest, ok := s.userCodes[userCode]
	if !ok {
		return nil
	}
	return s.deviceCodes[digest]
}

func (s *MemoryStore) SaveToken(_ context.Context, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveTokenLocked(token)
	return nil
}

func (s *MemoryStore) saveTokenLocked(token *Token) {
	cp := *token
	s.tokens[token.ID] = &cp
	s.byAccess[token.AccessDigest] = token.ID
	if token.RefreshDigest != "" {
		s.byRefresh[token.RefreshDigest] = token.ID
	}
}

func (s *MemoryStore) GetTokenByAccess(_ context.Context, accessDigest string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenByIndexLocked(s.byAccess, accessDigest)
}

func (s *MemoryStore) GetTokenByRefresh(_ context.Context, refreshDigest string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenByIndexLocked(s.byRefresh, refreshDigest)
}

func (s *MemoryStore) tokenByIndexLocked(index map[string]string, digest string) (*Token, error) {
	id, ok := index[digest]
	if !ok {
		return nil, ErrNotFound
	}
	token, ok := s.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *token
	return &cp, nil
}

func (s *MemoryStore) RevokeToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.tokens[id]; ok {
		token.Revoked = true
	}
	return nil
}

func (s *MemoryStore) RevokeTokensForCode(_ context.Context, codeDigest string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, token := range s.tokens {
		if token.CodeDigest == codeDigest && !token.Revoked {
			token.Revoked = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) RotateToken(_ context.Context, oldRefreshDigest string, next *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRefresh[oldRefreshDigest]
	if !ok {
		return ErrNotFound
	}
	old, ok := s.tokens[id]
	if !ok || old.Revoked {
		return ErrNotFound
	}
	old.Revoked = true
	s.saveTokenLocked(next)
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, req := range s.authRequests {
		if !now.Before(req.ExpiresAt) {
			delete(s.authRequests, id)
		}
	}
	for digest, code := range s.authCodes {
		if !now.Before(code.ExpiresAt) {
			delete(s.authCodes, digest)
		}
	}
	for digest, code := range s.deviceCodes {
		if !now.Before(code.ExpiresAt) {
			delete(s.userCodes, code.UserCode)
			delete(s.deviceCodes, digest)
		}
	}
	for id, token := range s.tokens {
		refreshDone := token.RefreshExpiresAt.IsZero() || !now.Before(token.RefreshExpiresAt)
		if !now.Before(token.ExpiresAt) && refreshDone {
			delete(s.byAccess, token.AccessDigest)
			if token.RefreshDigest != "" {
				delete(s.byRefresh, token.RefreshDigest)
			}
			delete(s.tokens, id)
		}
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ Storage = (*MemoryStore)(nil)
