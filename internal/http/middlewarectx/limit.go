package middlewarectx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/glassworks-auth/internal/http/response"
)

const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type peerAddrKey struct{}

// PeerAddr сохраняет адрес TCP-соединения в контексте. Должен стоять до middleware.RealIP,
// который переписывает RemoteAddr по заголовкам клиента.
func PeerAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerAddrKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// IPRateLimiter хранит отдельный token bucket для каждого IP.
type IPRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	trusted   []netip.Prefix
	lastSweep time.Time
	now       func() time.Time
}

// NewIPRateLimiter создаёт ограничитель rps запросов в секунду с запасом burst на IP.
// Адрес из X-Forwarded-For и X-Real-IP учитывается только для соединений из сетей trusted.
func NewIPRateLimiter(rps float64, burst int, trusted ...netip.Prefix) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		trusted:  trusted,
		now:      time.Now,
	}
}

// ClientIP возвращает ключ ограничителя для запроса: адрес соединения, либо адрес,
// переданный доверенным прокси.
func (l *IPRateLimiter) ClientIP(r *http.Request) string {
	peer, ok := r.Context().Value(peerAddrKey{}).(string)
	if !ok {
		return hostOf(r.RemoteAddr)
	}
	peerIP := hostOf(peer)
	if l.fromTrustedProxy(peerIP) {
		return hostOf(r.RemoteAddr)
	}
	return peerIP
}

func (l *IPRateLimiter) fromTrustedProxy(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Allow сообщает, можно ли пропустить запрос с адреса ip.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > visitorTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// RateLimitMiddleware ограничивает частоту запросов с одного IP.
func RateLimitMiddleware(log *slog.Logger, limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := limiter.ClientIP(r)
			if !limiter.Allow(ip) {
				log.Warn("too many requests", slog.String("ip", ip), slog.String("path", r.URL.Path))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.ErrorWithCode("too many requests", response.CodeRateLimited))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
