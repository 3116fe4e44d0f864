// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package health_check_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/receptionist/api/receptionist-api/config"
	internal_tenant "github.com/rapidaai/receptionist/internal/tenant"
	"github.com/rapidaai/receptionist/pkg/commons"
)

type HealthCheckApi struct {
	cfg     *config.AppConfig
	logger  commons.Logger
	tenants internal_tenant.Resolver
}

func New(cfg *config.AppConfig, logger commons.Logger, tenants internal_tenant.Resolver) *HealthCheckApi {
	return &HealthCheckApi{cfg: cfg, logger: logger, tenants: tenants}
}

// Healthz reports process liveness.
func (api *HealthCheckApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": api.cfg.Name,
		"version": api.cfg.Version,
	})
}

// Readiness reports whether the service can take calls: the tenant registry
// must have loaded with a usable default.
func (api *HealthCheckApi) Readiness(c *gin.Context) {
	if tenant, _ := api.tenants.Resolve(""); tenant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no tenants"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
