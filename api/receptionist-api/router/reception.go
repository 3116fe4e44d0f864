// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package reception_routers

import (
	"github.com/gin-gonic/gin"

	healthCheckApi "github.com/rapidaai/receptionist/api/health-check-api"
	"github.com/rapidaai/receptionist/api/receptionist-api/config"
	internal_bridge "github.com/rapidaai/receptionist/internal/bridge"
	internal_callcontext "github.com/rapidaai/receptionist/internal/callcontext"
	internal_callermemory "github.com/rapidaai/receptionist/internal/callermemory"
	internal_directory "github.com/rapidaai/receptionist/internal/directory"
	internal_notify "github.com/rapidaai/receptionist/internal/notify"
	internal_telephony_twilio "github.com/rapidaai/receptionist/internal/telephony/twilio"
	internal_tenant "github.com/rapidaai/receptionist/internal/tenant"
	receptionApi "github.com/rapidaai/receptionist/api/receptionist-api/reception"
	"github.com/rapidaai/receptionist/pkg/commons"
)

func ReceptionApiRoute(
	cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger,
	tenants internal_tenant.Resolver,
	memory internal_callermemory.Memory,
	contexts internal_callcontext.Store,
	dialer internal_bridge.AgentDialer,
	directory internal_directory.Directory,
	email internal_notify.EmailSender,
	calls internal_telephony_twilio.CallControl,
) {
	apiv1 := engine.Group("v1/reception")
	rcpApi := receptionApi.NewReceptionApi(cfg,
		logger,
		tenants,
		memory,
		contexts,
		dialer,
		directory,
		email,
		calls,
	)
	{
		// inbound call answer + media stream
		apiv1.POST("/voice/:tenantId", rcpApi.Voice)
		apiv1.GET("/stream", rcpApi.Stream)

		// agent tool webhooks
		apiv1.POST("/message", rcpApi.Message)
		apiv1.POST("/transfer", rcpApi.Transfer)
	}
}

func HealthCheckRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, tenants internal_tenant.Resolver) {
	logger.Info("Internal HealthCheckRoutes added to engine.")
	apiv1 := engine.Group("")
	hcApi := healthCheckApi.New(cfg, logger, tenants)
	{
		apiv1.GET("/readiness/", hcApi.Readiness)
		apiv1.GET("/healthz/", hcApi.Healthz)
	}
}
