package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"tripbuilder/crmsync/internal/common"
)

type ServiceStatus struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

type HealthCheckResponse struct {
	Status   string                   `json:"status"`
	Uptime   string                   `json:"uptime"`
	Services map[string]ServiceStatus `json:"services"`
}

func serviceStatus(name string, err error) ServiceStatus {
	if err != nil {
		return ServiceStatus{Status: "down", Details: err.Error()}
	}
	return ServiceStatus{Status: "ok", Details: name + " reachable"}
}

// HealthCheckHandler handles GET /healthCheck. rdb may be nil.
func HealthCheckHandler(db *sqlx.DB, rdb *redis.Client, upSince time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		services := map[string]ServiceStatus{
			"database": serviceStatus("database", db.PingContext(ctx)),
		}
		if rdb != nil {
			services["redis"] = serviceStatus("redis", rdb.Ping(ctx).Err())
		}

		resp := HealthCheckResponse{
			Status:   "ok",
			Uptime:   time.Since(upSince).Round(time.Second).String(),
			Services: services,
		}
		for _, svc := range services {
			if svc.Status != "ok" {
				resp.Status = "down"
				common.RespondSuccess(w, start, "Degraded", resp, http.StatusServiceUnavailable)
				return
			}
		}
		common.RespondSuccess(w, start, "Healthy", resp)
	}
}
