package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker はストアへの疎通確認を行う。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthChecks は名前付きのHealthChecker。
type HealthChecks map[string]HealthChecker

// NewHealthHandler はGET /healthのハンドラーを返す。
// 全てのチェックが成功すれば200、1つでも失敗すれば503を返す。
func NewHealthHandler(checks HealthChecks) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check.PingContext(ctx); err != nil {
				slog.Warn("health check failed",
					slog.String("check", name),
					slog.String("error", err.Error()),
				)
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]any{
			"status": overall,
			"checks": results,
		})
	})
}
