package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"timekeeping/apperror"
	"timekeeping/ctxutil"
	"timekeeping/models"
	"timekeeping/rbac"
	"timekeeping/response"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const identityContextKey contextKey = "identity"

var (
	ErrMissingToken = apperror.New(apperror.CodeUnauthorized, "Token not found", http.StatusUnauthorized)
	ErrInvalidToken = apperror.New(apperror.CodeUnauthorized, "Token is invalid or expired", http.StatusUnauthorized)
)

// Claims are issued by the identity service; this service only verifies them.
type Claims struct {
	UserID string      `json:"user_id"`
	OrgID  string      `json:"org_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller.
type Identity struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   models.Role
}

var jwtSecret []byte

func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

func GenerateToken(id Identity, expiration time.Duration) (string, error) {
	claims := &Claims{
		UserID: id.UserID.String(),
		OrgID:  id.OrgID.String(),
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

func (c *Claims) identity() (Identity, error) {
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("user_id: %w", err)
	}
	orgID, err := uuid.Parse(c.OrgID)
	if err != nil {
		return Identity{}, fmt.Errorf("org_id: %w", err)
	}
	if c.Role == "" {
		return Identity{}, fmt.Errorf("role is empty")
	}
	return Identity{UserID: userID, OrgID: orgID, Role: models.Role(strings.ToUpper(string(c.Role)))}, nil
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found {
			tokenString = ""
		}
		if tokenString == "" {
			if cookie, err := r.Cookie("token"); err == nil {
				tokenString = cookie.Value
			}
		}
		if tokenString == "" {
			response.Error(w, ErrMissingToken)
			return
		}

		claims, err := ValidateToken(tokenString)
		if err != nil {
			ctxutil.Logger(r.Context(), nil).Debug("token rejected", zap.Error(err))
			response.Error(w, ErrInvalidToken)
			return
		}
		id, err := claims.identity()
		if err != nil {
			ctxutil.Logger(r.Context(), nil).Debug("token claims rejected", zap.Error(err))
			response.Error(w, ErrInvalidToken)
			return
		}

		ctx := WithIdentity(r.Context(), id)
		log := ctxutil.Logger(ctx, nil).With(
			zap.String("user_id", id.UserID.String()),
			zap.String("org_id", id.OrgID.String()),
		)
		ctx = ctxutil.WithLogger(ctx, log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission lets the request through when the caller's role may do
// act on obj.
func RequirePermission(authz rbac.Authorizer, obj, act string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				response.Error(w, apperror.ErrUnauthorized)
				return
			}
			if authz == nil || !authz.Can(id.Role, obj, act) {
				ctxutil.Logger(r.Context(), nil).Debug("permission denied",
					zap.String("role", string(id.Role)),
					zap.String("action", obj+":"+act),
				)
				response.Error(w, apperror.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}
