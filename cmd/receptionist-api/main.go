// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/receptionist/api/receptionist-api/config"
	internal_agent_elevenlabs "github.com/rapidaai/receptionist/internal/agent/elevenlabs"
	internal_bridge "github.com/rapidaai/receptionist/internal/bridge"
	internal_callcontext "github.com/rapidaai/receptionist/internal/callcontext"
	internal_callermemory "github.com/rapidaai/receptionist/internal/callermemory"
	internal_directory "github.com/rapidaai/receptionist/internal/directory"
	internal_notify "github.com/rapidaai/receptionist/internal/notify"
	internal_telephony_twilio "github.com/rapidaai/receptionist/internal/telephony/twilio"
	internal_tenant "github.com/rapidaai/receptionist/internal/tenant"
	receptionRouters "github.com/rapidaai/receptionist/api/receptionist-api/router"
	"github.com/rapidaai/receptionist/pkg/commons"
)

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("failed to initialize config: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("failed to load application config: %v", err)
	}

	logger, err := commons.NewApplicationLoggerWithConfig(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	tenants, err := internal_tenant.NewResolver(logger, cfg.TenantRegistryPath)
	if err != nil {
		logger.Errorf("failed to load tenant registry: %v", err)
		log.Fatal(err)
	}

	memory, err := internal_callermemory.NewMemory(logger, cfg.CallerMemoryPath)
	if err != nil {
		logger.Errorf("failed to open caller memory: %v", err)
		log.Fatal(err)
	}

	directory, err := internal_directory.NewDirectory(logger, cfg.CalleeListPath, cfg.FallbackEmail)
	if err != nil {
		logger.Errorf("failed to load staff directory: %v", err)
		log.Fatal(err)
	}

	contexts := internal_callcontext.NewStore(logger,
		internal_callcontext.DefaultRetention, internal_callcontext.DefaultSweepInterval)
	defer contexts.Close()

	negotiator := internal_agent_elevenlabs.NewNegotiator(logger, cfg.ElevenlabsApiKey)
	dialer := internal_bridge.NewAgentDialer(logger, negotiator)

	email := internal_notify.NewEmailSender(logger, cfg.SendgridApiKey, cfg.EmailFromName, cfg.EmailFromAddr)
	calls := internal_telephony_twilio.NewCallControl(logger,
		cfg.TwilioConfig.AccountSid, cfg.TwilioConfig.AuthToken)

	engine := gin.New()
	engine.Use(gin.Recovery())

	receptionRouters.HealthCheckRoutes(cfg, engine, logger, tenants)
	receptionRouters.ReceptionApiRoute(cfg, engine, logger,
		tenants, memory, contexts, dialer, directory, email, calls)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	logger.Infof("%s %s listening on %s", cfg.Name, cfg.Version, addr)
	if err := engine.Run(addr); err != nil {
		logger.Errorf("server stopped: %v", err)
		log.Fatal(err)
	}
}
