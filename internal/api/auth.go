package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"parish/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	PermReadResources    = "read:resources"
	PermWriteResources   = "write:resources"
	PermReadAvailability = "read:availability"
	PermReadBookings     = "read:bookings"
	PermWriteBookings    = "write:bookings"
	PermModerateBookings = "moderate:bookings"
	PermReadProgrammes   = "read:programmes"
	PermWriteProgrammes  = "write:programmes"
	PermReadStatistics   = "read:statistics"
	PermReadMembers      = "read:members"
	PermWriteMembers     = "write:members"
)

type clientCtxKey struct{}

// ClientName returns the authenticated API client name, if any.
func ClientName(ctx context.Context) string {
	if c, ok := ctx.Value(clientCtxKey{}).(config.APIClientKey); ok {
		return c.Name
	}
	return ""
}

// authenticator checks api key pairs and permissions. It is shared by the
// HTTP middleware and the gRPC interceptor.
type authenticator struct {
	cfg         config.APIConfig
	keyHeader   string
	extraHeader string
	clients     map[string]config.APIClientKey
	limiter     *rateLimiter
}

func newAuthenticator(cfg config.APIConfig) *authenticator {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	keyHeader := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderAPIKey))
	if keyHeader == "" {
		keyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}

	return &authenticator{
		cfg:         cfg,
		keyHeader:   keyHeader,
		extraHeader: extraHeader,
		clients:     m,
		limiter:     newRateLimiter(cfg.RateLimit),
	}
}

func (a *authenticator) authenticate(apiKey, extra string) (config.APIClientKey, error) {
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingKeys
	}
	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	return client, nil
}

// authorize treats an empty permission list as allow-all.
func authorize(client config.APIClientKey, required string) error {
	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

// Wrap applies auth and rate limiting to HTTP requests.
func (a *authenticator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			client, err := a.authenticate(
				strings.TrimSpace(r.Header.Get(a.keyHeader)),
				strings.TrimSpace(r.Header.Get(a.extraHeader)),
			)
			if err == nil {
				err = authorize(client, requiredPermissionHTTP(r.Method, r.URL.Path))
			}
			if err != nil {
				code := http.StatusUnauthorized
				if err == errPermissionDenied {
					code = http.StatusForbidden
				}
				writeError(w, code, err.Error())
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), clientCtxKey{}, client))
		}

		if !a.limiter.allow(a.httpClientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *authenticator) httpClientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keyHeader)); apiKey != "" {
		return apiKey
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func requiredPermissionHTTP(method, path string) string {
	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return ""
	}
	read := method == http.MethodGet || method == http.MethodHead

	switch {
	case strings.HasPrefix(rest, "resources"):
		if strings.HasSuffix(rest, "/availability") || strings.HasSuffix(rest, "/slots") {
			return PermReadAvailability
		}
		if !read {
			return PermWriteResources
		}
		return PermReadResources
	case strings.HasPrefix(rest, "bookings"):
		switch {
		case read:
			return PermReadBookings
		case strings.Count(rest, "/") >= 2:
			return PermModerateBookings
		default:
			return PermWriteBookings
		}
	case strings.HasPrefix(rest, "programmes"), rest == "calendar.ics":
		if read {
			return PermReadProgrammes
		}
		return PermWriteProgrammes
	case strings.HasPrefix(rest, "statistics"), strings.HasPrefix(rest, "exports"):
		return PermReadStatistics
	case strings.HasPrefix(rest, "members"):
		if read {
			return PermReadMembers
		}
		return PermWriteMembers
	default:
		return ""
	}
}

// Unary is the gRPC counterpart of Wrap.
func (a *authenticator) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isHealthMethod(info.FullMethod) {
			return handler(ctx, req)
		}

		if a.cfg.Auth.Enabled {
			client, err := a.checkGRPCAuth(ctx, info.FullMethod)
			if err != nil {
				return nil, err
			}
			ctx = context.WithValue(ctx, clientCtxKey{}, client)
		}

		if !a.limiter.allow(a.grpcClientKey(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, errRateLimited.Error())
		}
		return handler(ctx, req)
	}
}

func (a *authenticator) checkGRPCAuth(ctx context.Context, fullMethod string) (config.APIClientKey, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return config.APIClientKey{}, status.Error(codes.Unauthenticated, "missing metadata")
	}

	client, err := a.authenticate(first(md.Get(a.keyHeader)), first(md.Get(a.extraHeader)))
	if err != nil {
		return client, status.Error(codes.Unauthenticated, err.Error())
	}
	if err := authorize(client, requiredPermissionGRPC(fullMethod)); err != nil {
		return client, status.Error(codes.PermissionDenied, err.Error())
	}
	return client, nil
}

func requiredPermissionGRPC(fullMethod string) string {
	switch fullMethod {
	case methodCheckAvailability:
		return PermReadAvailability
	case methodGetStatistics:
		return PermReadStatistics
	case methodListResources:
		return PermReadResources
	default:
		return ""
	}
}

func (a *authenticator) grpcClientKey(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if apiKey := first(md.Get(a.keyHeader)); apiKey != "" {
		return apiKey
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func isHealthMethod(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/grpc.health.v1.Health/")
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
