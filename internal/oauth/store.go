package oauth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Store persists OAuth data in Postgres, with optional Redis for the
// short-TTL consent-page bindings. Single-use and rotation invariants are
// enforced with row locks and conditional updates, never as separate
// read-then-write calls.
type Store struct {
	db    *sql.DB
	redis *redis.Client
}

// NewStore wraps existing connections. redisClient may be nil.
func NewStore(db *sql.DB, redisClient *redis.Client) (*Store, error) {
	store := &Store{db: db, redis: redisClient}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

// NewStoreFromEnv initializes the store using Postgres and optional Redis.
func NewStoreFromEnv() (*Store, error) {
	connString := os.Getenv("TASKHIVE_DATABASE_URL")
	if connString == "" {
		connString = os.Getenv("DATABASE_URL")
	}
	if connString == "" {
		return nil, fmt.Errorf("TASKHIVE_DATABASE_URL or DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(parseEnvInt("TASKHIVE_DB_MAX_OPEN_CONNS", 10))
	db.SetMaxIdleConns(parseEnvInt("TASKHIVE_DB_MAX_IDLE_CONNS", 2))
	db.SetConnMaxLifetime(parseEnvDuration("TASKHIVE_DB_CONN_MAX_LIFETIME", 5*time.Minute))

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	var redisClient *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
	}

	return NewStore(db, redisClient)
}

// Close closes connections.
func (s *Store) Close() error {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies database and Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// SaveClient upserts an OAuth client.
func (s *Store) SaveClient(ctx context.Context, client *Client) error {
	query := `
		INSERT INTO oauth_clients
			(client_id, client_secret_hash, owner_id, client_name, redirect_uris, grant_types, scopes, is_active, is_public, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (client_id)
		DO UPDATE SET
			client_secret_hash = EXCLUDED.client_secret_hash,
			client_name = EXCLUDED.client_name,
			redirect_uris = EXCLUDED.redirect_uris,
			grant_types = EXCLUDED.grant_types,
			scopes = EXCLUDED.scopes,
			is_active = EXCLUDED.is_active,
			is_public = EXCLUDED.is_public,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		client.ClientID,
		nullableString(client.ClientSecretHash),
		nullableString(client.OwnerID),
		client.Name,
		pq.Array(emptyIfNil(client.RedirectURIs)),
		pq.Array(emptyIfNil(client.GrantTypes)),
		pq.Array(emptyIfNil(client.Scopes)),
		client.IsActive,
		client.IsPublic,
		client.CreatedAt,
		client.UpdatedAt,
	)
	return err
}

const clientColumns = `client_id, client_secret_hash, owner_id, client_name, redirect_uris, grant_types, scopes, is_active, is_public, created_at, updated_at`

// GetClient fetches an OAuth client by id.
func (s *Store) GetClient(ctx context.Context, clientID string) (*Client, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM oauth_clients WHERE client_id = $1`, clientID)
	return scanClient(row)
}

// ListClientsByOwner returns all clients registered by a user.
func (s *Store) ListClientsByOwner(ctx context.Context, ownerID string) ([]*Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM oauth_clients WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClient(row rowScanner) (*Client, error) {
	var client Client
	var redirectURIs, grantTypes, scopes []string
	var secretHash, ownerID sql.NullString

	err := row.Scan(
		&client.ClientID,
		&secretHash,
		&ownerID,
		&client.Name,
		pq.Array(&redirectURIs),
		pq.Array(&grantTypes),
		pq.Array(&scopes),
		&client.IsActive,
		&client.IsPublic,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	client.ClientSecretHash = secretHash.String
	client.OwnerID = ownerID.String
	client.RedirectURIs = redirectURIs
	client.GrantTypes = grantTypes
	client.Scopes = scopes
	return &client, nil
}

// SaveAuthRequest stores a consent-page binding in Redis or Postgres.
func (s *Store) SaveAuthRequest(ctx context.Context, req *AuthRequest) error {
	if s.redis != nil {
		payload, err := json.Marshal(req)
		if err != nil {
			return err
		}
		key := "oauth:req:" + req.RequestID
		return s.redis.Set(ctx, key, payload, time.Until(req.ExpiresAt)).Err()
	}

	query := `
		INSERT INTO oauth_auth_requests
			(request_id, client_id, redirect_uri, scope, state, code_challenge, code_challenge_method, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	_, err := s.db.ExecContext(ctx, query,
		req.RequestID,
		req.ClientID,
		req.RedirectURI,
		req.Scope,
		req.State,
		req.CodeChallenge,
		req.CodeChallengeMethod,
		req.CreatedAt,
		req.ExpiresAt,
	)
	return err
}

// GetAuthRequest retrieves a consent-page binding.
func (s *Store) GetAuthRequest(ctx context.Context, requestID string) (*AuthRequest, error) {
	if s.redis != nil {
		val, err := s.redis.Get(ctx, "oauth:req:"+requestID).Result()
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		var req AuthRequest
		if err := json.Unmarshal([]byte(val), &req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	query := `
		SELECT request_id, client_id, redirect_uri, scope, state, code_challenge, code_challenge_method, created_at, expires_at
		FROM oauth_auth_requests
		WHERE request_id = $1 AND expires_at > NOW()
	`
	var req AuthRequest
	err := s.db.QueryRowContext(ctx, query, requestID).Scan(
		&req.RequestID,
		&req.ClientID,
		&req.RedirectURI,
		&req.Scope,
		&req.State,
		&req.CodeChallenge,
		&req.CodeChallengeMethod,
		&req.CreatedAt,
		&req.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// DeleteAuthRequest removes a consent-page binding.
func (s *Store) DeleteAuthRequest(ctx context.Context, requestID string) error {
	if s.redis != nil {
		return s.redis.Del(ctx, "oauth:req:"+requestID).Err()
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM oauth_auth_requests WHERE request_id = $1`, requestID)
	return err
}

// SaveAuthCode stores an authorization code record.
func (s *Store) SaveAuthCode(ctx context.Context, code *AuthorizationCode) error {
	query := `
		INSERT INTO oauth_auth_codes
			(code_digest, client_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method, used, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	_, err := s.db.ExecContext(ctx, query,
		code.CodeDigest,
		code.ClientID,
		code.UserID,
		code.RedirectURI,
		pq.Array(code.Scopes),
		code.CodeChallenge,
		code.CodeChallengeMethod,
		code.Used,
		code.CreatedAt,
		code.ExpiresAt,
	)
	return err
}

// RedeemAuthCode marks a code used inside a row-locked transaction. Exactly
// one of any set of concurrent redemptions observes replayed=false.
func (s *Store) RedeemAuthCode(ctx context.Context, codeDigest string) (*AuthorizationCode, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		SELECT code_digest, client_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method, used, created_at, expires_at
		FROM oauth_auth_codes
		WHERE code_digest = $1
		FOR UPDATE
	`
	var code AuthorizationCode
	var scopes []string
	err = tx.QueryRowContext(ctx, query, codeDigest).Scan(
		&code.CodeDigest,
		&code.ClientID,
		&code.UserID,
		&code.RedirectURI,
		pq.Array(&scopes),
		&code.CodeChallenge,
		&code.CodeChallengeMethod,
		&code.Used,
		&code.CreatedAt,
		&code.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	code.Scopes = scopes

	if code.Used {
		return &code, true, tx.Commit()
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE oauth_auth_codes SET used = TRUE WHERE code_digest = $1`, codeDigest); err != nil {
		return nil, false, err
	}
	if err = tx.Commit(); err != nil {
		return nil, false, err
	}
	code.Used = true
	return &code, false, nil
}

const deviceColumns = `device_code_digest, user_code, client_id, user_id, scopes, status, poll_interval, last_poll_at, created_at, expires_at`

// SaveDeviceCode stores a device authorization record.
func (s *Store) SaveDeviceCode(ctx context.Context, code *DeviceCode) error {
	query := `
		INSERT INTO oauth_device_codes
			(` + deviceColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	_, err := s.db.ExecContext(ctx, query,
		code.DeviceCodeDigest,
		code.UserCode,
		code.ClientID,
		nullableString(code.UserID),
		pq.Array(code.Scopes),
		string(code.Status),
		code.Interval,
		code.LastPollAt,
		code.CreatedAt,
		code.ExpiresAt,
	)
	return err
}

// GetDeviceCode fetches a device code record by digest.
func (s *Store) GetDeviceCode(ctx context.Context, deviceCodeDigest string) (*DeviceCode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM oauth_device_codes WHERE device_code_digest = $1`, deviceCodeDigest)
	return scanDeviceCode(row)
}

// GetPendingDeviceCodeByUserCode fetches a device code by user code, but
// only while it is pending and unexpired. Approved, denied, and expired
// codes look like missing ones, which prevents state probing.
func (s *Store) GetPendingDeviceCodeByUserCode(ctx context.Context, userCode string, now time.Time) (*DeviceCode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM oauth_device_codes WHERE user_code = $1 AND status = 'pending' AND expires_at > $2`,
		userCode, now)
	return scanDeviceCode(row)
}

func scanDeviceCode(row rowScanner) (*DeviceCode, error) {
	var code DeviceCode
	var scopes []string
	var userID sql.NullString
	var status string

	err := row.Scan(
		&code.DeviceCodeDigest,
		&code.UserCode,
		&code.ClientID,
		&userID,
		pq.Array(&scopes),
		&status,
		&code.Interval,
		&code.LastPollAt,
		&code.CreatedAt,
		&code.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	code.UserID = userID.String
	code.Scopes = scopes
	code.Status = DeviceStatus(status)
	return &code, nil
}

// ResolveDeviceCode transitions a pending, unexpired device code to
// approved or denied. The WHERE clause is the atomicity guarantee: a code
// that already left pending is never transitioned again.
func (s *Store) ResolveDeviceCode(ctx context.Context, userCode string, status DeviceStatus, userID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE oauth_device_codes SET status = $1, user_id = $2 WHERE user_code = $3 AND status = 'pending' AND expires_at > $4`,
		string(status), nullableString(userID), userCode, now)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchDeviceCodePoll records a poll and the (possibly increased) interval.
func (s *Store) TouchDeviceCodePoll(ctx context.Context, deviceCodeDigest string, lastPollAt time.Time, interval int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE oauth_device_codes SET last_poll_at = $1, poll_interval = $2 WHERE device_code_digest = $3`,
		lastPollAt, interval, deviceCodeDigest)
	return err
}

// ConsumeDeviceCode deletes an approved device code and returns it. The
// conditional DELETE ... RETURNING makes the first successful poll the only
// one that ever redeems the code.
func (s *Store) ConsumeDeviceCode(ctx context.Context, deviceCodeDigest string) (*DeviceCode, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM oauth_device_codes WHERE device_code_digest = $1 AND status = 'approved' RETURNING `+deviceColumns,
		deviceCodeDigest)
	return scanDeviceCode(row)
}

// DeleteDeviceCode removes a device code record.
func (s *Store) DeleteDeviceCode(ctx context.Context, deviceCodeDigest string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth_device_codes WHERE device_code_digest = $1`, deviceCodeDigest)
	return err
}

// UserCodeExists reports whether a user code is already allocated.
func (s *Store) UserCodeExists(ctx context.Context, userCode string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM oauth_device_codes WHERE user_code = $1)`, userCode).Scan(&exists)
	return exists, err
}

const tokenColumns = `id, access_digest, refresh_digest, client_id, user_id, scopes, code_digest, revoked, created_at, expires_at, refresh_expires_at`

// SaveToken persists a token pair record.
func (s *Store) SaveToken(ctx context.Context, token *Token) error {
	query := `
		INSERT INTO oauth_tokens
			(` + tokenColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`
	_, err := s.db.ExecContext(ctx, query, tokenArgs(token)...)
	return err
}

func tokenArgs(token *Token) []interface{} {
	return []interface{}{
		token.ID,
		token.AccessDigest,
		nullableString(token.RefreshDigest),
		token.ClientID,
		nullableString(token.UserID),
		pq.Array(token.Scopes),
		nullableString(token.CodeDigest),
		token.Revoked,
		token.CreatedAt,
		token.ExpiresAt,
		nullableTime(token.RefreshExpiresAt),
	}
}

// GetTokenByAccess fetches a token record by access-token digest.
func (s *Store) GetTokenByAccess(ctx context.Context, accessDigest string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM oauth_tokens WHERE access_digest = $1`, accessDigest)
	return scanToken(row)
}

// GetTokenByRefresh fetches a token record by refresh-token digest.
func (s *Store) GetTokenByRefresh(ctx context.Context, refreshDigest string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM oauth_tokens WHERE refresh_digest = $1`, refreshDigest)
	return scanToken(row)
}

func scanToken(row rowScanner) (*Token, error) {
	var token Token
	var scopes []string
	var refreshDigest, userID, codeDigest sql.NullString
	var refreshExpires sql.NullTime

	err := row.Scan(
		&token.ID,
		&token.AccessDigest,
		&refreshDigest,
		&token.ClientID,
		&userID,
		pq.Array(&scopes),
		&codeDigest,
		&token.Revoked,
		&token.CreatedAt,
		&token.ExpiresAt,
		&refreshExpires,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	token.RefreshDigest = refreshDigest.String
	token.UserID = userID.String
	token.CodeDigest = codeDigest.String
	token.Scopes = scopes
	if refreshExpires.Valid {
		token.RefreshExpiresAt = refreshExpires.Time
	}
	return &token, nil
}

// RevokeToken marks a token pair revoked. Idempotent.
func (s *Store) RevokeToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE oauth_tokens SET revoked = TRUE WHERE id = $1`, id)
	return err
}

// RevokeTokensForCode revokes every token pair minted from a given
// authorization code. Used when a code replay is detected.
func (s *Store) RevokeTokensForCode(ctx context.Context, codeDigest string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE oauth_tokens SET revoked = TRUE WHERE code_digest = $1 AND revoked = FALSE`, codeDigest)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RotateToken revokes the old pair and inserts the new one in a single
// transaction. On any failure the old pair stays valid; on success the old
// and new pairs are never simultaneously valid.
func (s *Store) RotateToken(ctx context.Context, oldRefreshDigest string, next *Token) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE oauth_tokens SET revoked = TRUE WHERE refresh_digest = $1 AND revoked = FALSE`, oldRefreshDigest)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	query := `
		INSERT INTO oauth_tokens
			(` + tokenColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`
	if _, err = tx.ExecContext(ctx, query, tokenArgs(next)...); err != nil {
		return err
	}
	return tx.Commit()
}

// PurgeExpired removes records that can no longer affect any decision.
// Redeemed auth codes are kept until TTL so replays stay detectable.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) error {
	statements := []string{
		`DELETE FROM oauth_auth_requests WHERE expires_at <= $1`,
		`DELETE FROM oauth_auth_codes WHERE expires_at <= $1`,
		`DELETE FROM oauth_device_codes WHERE expires_at <= $1`,
		`DELETE FROM oauth_tokens WHERE expires_at <= $1 AND (refresh_expires_at IS NULL OR refresh_expires_at <= $1)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS oauth_clients (
		client_id VARCHAR(255) PRIMARY KEY,
		client_secret_hash TEXT,
		owner_id VARCHAR(255),
		client_name TEXT NOT NULL,
		redirect_uris TEXT[] NOT NULL,
		grant_types TEXT[] NOT NULL,
		scopes TEXT[] NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS oauth_auth_requests (
		request_id VARCHAR(255) PRIMARY KEY,
		client_id VARCHAR(255) NOT NULL,
		redirect_uri TEXT NOT NULL,
		scope TEXT,
		state TEXT,
		code_challenge TEXT,
		code_challenge_method TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS oauth_auth_codes (
		code_digest TEXT PRIMARY KEY,
		client_id VARCHAR(255) NOT NULL,
		user_id VARCHAR(255) NOT NULL,
		redirect_uri TEXT NOT NULL,
		scopes TEXT[] NOT NULL,
		code_challenge TEXT,
		code_challenge_method TEXT,
		used BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS oauth_device_codes (
		device_code_digest TEXT PRIMARY KEY,
		user_code VARCHAR(16) NOT NULL UNIQUE,
		client_id VARCHAR(255) NOT NULL,
		user_id VARCHAR(255),
		scopes TEXT[] NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		poll_interval INTEGER NOT NULL,
		last_poll_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS oauth_tokens (
		id VARCHAR(64) PRIMARY KEY,
		access_digest TEXT NOT NULL UNIQUE,
		refresh_digest TEXT UNIQUE,
		client_id VARCHAR(255) NOT NULL,
		user_id VARCHAR(255),
		scopes TEXT[] NOT NULL,
		code_digest TEXT,
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMP NOT NULL,
		refresh_expires_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_oauth_clients_owner ON oauth_clients(owner_id);
	CREATE INDEX IF NOT EXISTS idx_oauth_auth_requests_expires ON oauth_auth_requests(expires_at);
	CREATE INDEX IF NOT EXISTS idx_oauth_auth_codes_expires ON oauth_auth_codes(expires_at);
	CREATE INDEX IF NOT EXISTS idx_oauth_device_codes_expires ON oauth_device_codes(expires_at);
	CREATE INDEX IF NOT EXISTS idx_oauth_tokens_code ON oauth_tokens(code_digest);
	CREATE INDEX IF NOT EXISTS idx_oauth_tokens_user ON oauth_tokens(user_id);
	`

	_, err := s.db.Exec(query)
	return err
}

// emptyIfNil keeps array columns NOT NULL friendly.
func emptyIfNil(vals []string) []string {
	if vals == nil {
		return []string{}
	}
	return vals
}

func nullableString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: val, Valid: true}
}

func nullableTime(val time.Time) sql.NullTime {
	if val.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: val, Valid: true}
}

func parseEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

var _ Storage = (*Store)(nil)
