// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_tenant

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/rapidaai/receptionist/pkg/commons"
)

// Script is one pre-authored behavioural script handed to the voice agent at
// session start: the greeting line spoken first and the prompt override that
// shapes the rest of the conversation.
type Script struct {
	Greeting string `mapstructure:"greeting" validate:"required"`
	Prompt   string `mapstructure:"prompt" validate:"required"`
}

// Scripts holds the four deterministic outcomes of prompt selection.
type Scripts struct {
	InHoursRecognized      Script `mapstructure:"in_hours_recognized" validate:"required"`
	InHoursUnrecognized    Script `mapstructure:"in_hours_unrecognized" validate:"required"`
	AfterHoursRecognized   Script `mapstructure:"after_hours_recognized" validate:"required"`
	AfterHoursUnrecognized Script `mapstructure:"after_hours_unrecognized" validate:"required"`
}

// Tenant is one configured business identity sharing the bridging
// infrastructure.
type Tenant struct {
	Id       string `mapstructure:"id" validate:"required"`
	Name     string `mapstructure:"name" validate:"required"`
	AgentId  string `mapstructure:"agent_id" validate:"required"`
	Timezone string `mapstructure:"timezone" validate:"required"`

	// WorkDays are full weekday names ("Monday"); OpensAt/ClosesAt are local
	// wall-clock times in 24h "15:04" form; Holidays are "2006-01-02" dates
	// in the tenant's timezone.
	WorkDays []string `mapstructure:"work_days" validate:"required,min=1"`
	OpensAt  string   `mapstructure:"opens_at" validate:"required"`
	ClosesAt string   `mapstructure:"closes_at" validate:"required"`
	Holidays []string `mapstructure:"holidays"`

	Scripts Scripts `mapstructure:"scripts" validate:"required"`
}

// Resolver looks up tenant configuration by tenant identifier.
type Resolver interface {
	// Resolve returns the tenant for the given id, falling back to the
	// default tenant when the id is unknown or empty.
	Resolve(tenantID string) (*Tenant, bool)
}

type fileResolver struct {
	logger    commons.Logger
	tenants   map[string]*Tenant
	defaultID string
}

// NewResolver loads the tenant registry from a JSON config file of the shape
// {"default": "<id>", "tenants": [ ... ]}. The registry is read once at
// startup; tenants do not change mid-process.
func NewResolver(logger commons.Logger, path string) (Resolver, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read tenant registry %s: %w", path, err)
	}

	var tenants []*Tenant
	if err := v.UnmarshalKey("tenants", &tenants); err != nil {
		return nil, fmt.Errorf("failed to parse tenant registry: %w", err)
	}
	if len(tenants) == 0 {
		return nil, fmt.Errorf("tenant registry %s has no tenants", path)
	}

	validate := validator.New()
	byID := make(map[string]*Tenant, len(tenants))
	for _, t := range tenants {
		if err := validate.Struct(t); err != nil {
			return nil, fmt.Errorf("invalid tenant %q: %w", t.Id, err)
		}
		if _, err := time.LoadLocation(t.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %q for tenant %q: %w", t.Timezone, t.Id, err)
		}
		for _, hhmm := range []string{t.OpensAt, t.ClosesAt} {
			if _, err := time.Parse("15:04", hhmm); err != nil {
				return nil, fmt.Errorf("invalid business hour %q for tenant %q: %w", hhmm, t.Id, err)
			}
		}
		byID[t.Id] = t
	}

	defaultID := v.GetString("default")
	if defaultID == "" {
		defaultID = tenants[0].Id
	}
	if _, ok := byID[defaultID]; !ok {
		return nil, fmt.Errorf("default tenant %q not present in registry", defaultID)
	}

	logger.Infof("loaded %d tenants from %s (default %s)", len(byID), path, defaultID)
	return &fileResolver{logger: logger, tenants: byID, defaultID: defaultID}, nil
}

func (r *fileResolver) Resolve(tenantID string) (*Tenant, bool) {
	if t, ok := r.tenants[strings.TrimSpace(tenantID)]; ok {
		return t, true
	}
	if tenantID != "" {
		r.logger.Warnf("unknown tenant %q, using default %s", tenantID, r.defaultID)
	}
	return r.tenants[r.defaultID], false
}
