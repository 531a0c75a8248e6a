package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrAuthDisabled = errors.New("authentication is not configured")
)

type ctxKey struct{}

// Verifier проверяет bearer-токены, идентификатор пользователя берётся из sub.
// Ключ либо общий секрет HS256, либо JWKS внешнего сервиса авторизации.
type Verifier struct {
	keyfunc jwt.Keyfunc
	methods []string
}

func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return &Verifier{}
	}
	key := []byte(secret)
	return &Verifier{
		keyfunc: func(*jwt.Token) (interface{}, error) { return key, nil },
		methods: []string{jwt.SigningMethodHS256.Alg()},
	}
}

// NewVerifierWithKeyfunc принимает готовый keyfunc, например из keyfunc.NewJWKSetJSON
func NewVerifierWithKeyfunc(kf keyfunc.Keyfunc) *Verifier {
	return &Verifier{
		keyfunc: kf.Keyfunc,
		methods: []string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()},
	}
}

// NewJWKSVerifier загружает ключи с JWKS endpoint и обновляет их в фоне до отмены ctx.
// Недоступный при старте endpoint не ошибка, ключи подтянутся при следующем обновлении.
func NewJWKSVerifier(ctx context.Context, url string, refresh, timeout time.Duration) (*Verifier, error) {
	storage, err := jwkset.NewStorageFromHTTP(url, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: timeout},
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refresh,
		RefreshErrorHandler: func(_ context.Context, err error) {
			log.Error().Err(err).Str("url", url).Msg("failed to refresh JWKS")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
	}
	return NewVerifierWithKeyfunc(kf), nil
}

// VerifyToken возвращает id пользователя из заголовка Authorization.
// Пустая строка без ошибки означает анонимный запрос.
func (v *Verifier) VerifyToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", nil
	}
	if v.keyfunc == nil {
		return "", ErrAuthDisabled
	}

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: expected bearer scheme", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &jwt.RegisteredClaims{}, v.keyfunc,
		jwt.WithValidMethods(v.methods),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	return sub, nil
}

// Middleware кладёт идентификатор в контекст запроса, невалидный токен отклоняется с 401
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := v.VerifyToken(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID возвращает идентификатор из контекста, "" для анонимного запроса
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
