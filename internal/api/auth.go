package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"

	"cafehub/internal/models"
)

const actorKey = "actor"

// Claims are the JWT claims issued to café users. Subject holds the user id.
type Claims struct {
	Name string      `json:"name,omitempty"`
	Role models.Role `json:"role"`
	jwt.StandardClaims
}

// IssueToken signs an HS256 token for user valid for ttl.
func IssueToken(secret []byte, user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: user.Name,
		Role: user.Role,
		StandardClaims: jwt.StandardClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates tokenString and returns the actor it names.
func ParseToken(secret []byte, tokenString string) (models.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return models.Actor{}, fmt.Errorf("invalid token")
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return models.Actor{}, fmt.Errorf("invalid token subject")
	}
	switch claims.Role {
	case models.RoleCustomer, models.RoleStaff, models.RoleAdmin:
	default:
		return models.Actor{}, fmt.Errorf("invalid token role")
	}
	return models.Actor{UserID: uint(id), Name: claims.Name, Role: claims.Role}, nil
}

// AuthMiddleware handles JWT authentication from the Authorization header.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required", "kind": "unauthorized"})
			return
		}
		authenticate(c, secret, strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
	}
}

// QueryAuthMiddleware reads the token from ?token=, for websocket clients
// that cannot set headers.
func QueryAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token query parameter required", "kind": "unauthorized"})
			return
		}
		authenticate(c, secret, token)
	}
}

func authenticate(c *gin.Context, secret []byte, token string) {
	actor, err := ParseToken(secret, token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token", "kind": "unauthorized"})
		return
	}
	c.Set(actorKey, actor)
	c.Next()
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role", "kind": "forbidden"})
	}
}

func actorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}
