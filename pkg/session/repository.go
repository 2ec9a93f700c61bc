package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type Repository interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id uuid.UUID) (Session, error)
	UpdateState(ctx context.Context, id uuid.UUID, state string) error
	UpdateToken(ctx context.Context, id uuid.UUID, token oauth2.Token) error
	Extend(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Create(ctx context.Context, s Session) error {
	query := `INSERT INTO session (id, oauth_state, created_at, expires_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(ctx, query, s.Id, nullIfEmpty(s.OAuthState), s.CreatedAt, s.ExpiresAt)
	if err != nil {
		err := fmt.Errorf("could not create session: %w", err)
		log.Error(err)
		return err
	}
	if s.Token != nil {
		return r.UpdateToken(ctx, s.Id, *s.Token)
	}
	return nil
}

func (r *RepositoryImpl) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	query := `SELECT id, oauth_state, access_token, refresh_token, token_type, token_expiry, created_at, expires_at
			  FROM session WHERE id = $1`

	var (
		s            Session
		state        sql.NullString
		accessToken  sql.NullString
		refreshToken sql.NullString
		tokenType    sql.NullString
		tokenExpiry  sql.NullTime
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.Id,
		&state,
		&accessToken,
		&refreshToken,
		&tokenType,
		&tokenExpiry,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Debugf("session %s not found", id)
		return Session{}, ErrSessionNotFound
	} else if err != nil {
		err := fmt.Errorf("could not query session: %w", err)
		log.Error(err)
		return Session{}, err
	}

	s.OAuthState = state.String
	if accessToken.Valid || refreshToken.Valid {
		s.Token = &oauth2.Token{
			AccessToken:  accessToken.String,
			RefreshToken: refreshToken.String,
			TokenType:    tokenType.String,
		}
		if tokenExpiry.Valid {
			s.Token.Expiry = tokenExpiry.Time
		}
	}
	return s, nil
}

func (r *RepositoryImpl) UpdateState(ctx context.Context, id uuid.UUID, state string) error {
	query := `UPDATE session SET oauth_state = $1 WHERE id = $2`
	return r.execSingle(ctx, query, nullIfEmpty(state), id)
}

// UpdateToken stores token. An empty refresh token keeps the stored one, Google only sends
// it on the first consent.
func (r *RepositoryImpl) UpdateToken(ctx context.Context, id uuid.UUID, token oauth2.Token) error {
	query := `UPDATE session SET
				access_token = $1,
				refresh_token = COALESCE($2, refresh_token),
				token_type = $3,
				token_expiry = $4
			  WHERE id = $5`
	var expiry sql.NullTime
	if !token.Expiry.IsZero() {
		expiry = sql.NullTime{Time: token.Expiry, Valid: true}
	}
	return r.execSingle(ctx, query, token.AccessToken, nullIfEmpty(token.RefreshToken), token.TokenType, expiry, id)
}

func (r *RepositoryImpl) Extend(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	query := `UPDATE session SET expires_at = $1 WHERE id = $2`
	return r.execSingle(ctx, query, expiresAt, id)
}

func (r *RepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM session WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	if err != nil {
		err := fmt.Errorf("could not delete session: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM session WHERE expires_at <= $1`
	result, err := r.db.Exec(ctx, query, now)
	if err != nil {
		err := fmt.Errorf("could not delete expired sessions: %w", err)
		log.Error(err)
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *RepositoryImpl) execSingle(ctx context.Context, query string, args ...any) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func nullIfEmpty(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
