package httpserver

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	apperrors "github.com/zetsu101/PostPal-sub002/internal/platform/errors"
)

// globalLimiter caps concurrent websocket connections on this instance.
type globalLimiter struct {
	current atomic.Int64
	max     int64
}

func (l *globalLimiter) acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *globalLimiter) release() {
	l.current.Add(-1)
}

// ipLimiter caps concurrent websocket connections per client IP.
type ipLimiter struct {
	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

func (l *ipLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ips[ip] >= l.maxPer {
		return false
	}
	l.ips[ip]++
	return true
}

func (l *ipLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.ips[ip]; count > 1 {
		l.ips[ip] = count - 1
	} else {
		delete(l.ips, ip)
	}
}

func (l *ipLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ips[ip]
}

type connectionLimits struct {
	global *globalLimiter
	perIP  *ipLimiter
}

func newConnectionLimits(max, maxPerIP int) *connectionLimits {
	return &connectionLimits{
		global: &globalLimiter{max: int64(max)},
		perIP:  &ipLimiter{ips: make(map[string]int), maxPer: maxPerIP},
	}
}

// middleware holds a slot for as long as the wrapped handler runs. The
// websocket handler only returns once the connection is gone.
func (l *connectionLimits) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()

			if !l.global.acquire() {
				return c.JSON(http.StatusServiceUnavailable, apperrors.ErrorResponse{
					Error: "server at connection capacity",
					Type:  apperrors.TypeUnavailable,
				})
			}
			if !l.perIP.acquire(ip) {
				l.global.release()
				return c.JSON(http.StatusTooManyRequests, apperrors.ErrorResponse{
					Error: "too many connections from this address",
					Type:  apperrors.TypeUnavailable,
				})
			}
			defer func() {
				l.perIP.release(ip)
				l.global.release()
			}()

			return next(c)
		}
	}
}
