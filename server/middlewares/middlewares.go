package middlewares

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/playlog/backend/utils"
	Logger "github.com/playlog/backend/utils/log"
	"golang.org/x/time/rate"
)

const (
	// SubjectKey holds the authenticated user id, both in the gin context
	// and in the request header.
	SubjectKey = "sub"
	// RequestIdKey holds the id the access log reports for a request.
	RequestIdKey = "request_id"
)

var ErrInvalidToken = errors.New("invalid token")

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// HMACAuthenticator verifies HS256 tokens signed with a shared secret. The
// user id is the token subject.
type HMACAuthenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewHMACAuthenticator(secret string, issuer string) *HMACAuthenticator {
	return &HMACAuthenticator{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func (a *HMACAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errors.Wrap(ErrInvalidToken, "missing subject")
	}
	return claims.Subject, nil
}

// Sign issues a token for userId valid for ttl.
func (a *HMACAuthenticator) Sign(userId string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userId,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// CognitoAuthenticator validates access tokens against AWS Cognito. The
// client is thread safe.
type CognitoAuthenticator struct {
	client *cognitoidentityprovider.Client
}

// NewCognitoAuthenticator creates a client with the default aws config
// located in ~/.aws/config or the environment.
func NewCognitoAuthenticator(ctx context.Context) (*CognitoAuthenticator, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return &CognitoAuthenticator{client: cognitoidentityprovider.NewFromConfig(cfg)}, nil
}

func (a *CognitoAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	user, err := a.client.GetUser(ctx, &cognitoidentityprovider.GetUserInput{AccessToken: &token})
	if err != nil {
		return "", errors.Wrap(ErrInvalidToken, err.Error())
	}
	if user.Username == nil {
		return "", errors.Wrap(ErrInvalidToken, "cognito user without name")
	}
	return *user.Username, nil
}

// bearerToken reads "Authorization: Bearer <jwt>", falling back to the
// "token" query parameter that browsers use for websocket upgrades.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code": utils.ErrorTokenAuthFail,
		"msg":  msg,
	})
}

// JWT middleware authenticates the request token and stores the user id
// under "sub". It returns 401 on token not provided or token is invalid
// (wrong token or expired).
func JWT(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortUnauthorized(c, "empty jwt token")
			return
		}

		userId, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			Logger.Log.WithError(err).Debug("rejected token")
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		c.Request.Header.Del("token")
		c.Request.Header.Set(SubjectKey, userId)
		c.Set(SubjectKey, userId)
		c.Next()
	}
}

// ByPassAuth trusts the "sub" header as is. Only for local development.
func ByPassAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetHeader(SubjectKey)
		if userId == "" {
			abortUnauthorized(c, "missing sub header")
			return
		}
		c.Set(SubjectKey, userId)
		c.Next()
	}
}

// AccessLog logs every request through logrus.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := uuid.New().String()
		c.Set(RequestIdKey, requestId)

		start := time.Now()
		c.Next()
		Logger.Log.WithFields(map[string]interface{}{
			"request_id":  requestId[:8],
			"method":      c.Request.Method,
			"status":      c.Writer.Status(),
			"remote_addr": c.ClientIP(),
			"user":        c.GetString(SubjectKey),
			"work_time":   time.Since(start).Seconds(),
		}).Info(c.Request.URL.Path)
	}
}

// Recover turns panics into a 500 response.
func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				Logger.Log.WithField("path", c.Request.URL.Path).Errorf("recovered from panic: %v", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code": utils.ErrorInternal,
					"msg":  "Something went wrong on our side. Please try again.",
				})
			}
		}()
		c.Next()
	}
}

// WithLimiter rejects requests beyond the limiter's rate.
func WithLimiter(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			Logger.Log.WithField("path", c.Request.URL.Path).Warn("too many requests")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": utils.ErrorTooManyRequests,
				"msg":  "You are doing that too often. Please slow down.",
			})
			return
		}
		c.Next()
	}
}
