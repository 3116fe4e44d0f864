// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callermemory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rapidaai/receptionist/pkg/commons"
)

// CallerIdentity records a learned phone-number → display-name association.
// First identification wins: once a name is stored for a number it is never
// overwritten by a later call claiming a different name for the same number.
type CallerIdentity struct {
	Id          uint64 `gorm:"primaryKey;autoIncrement"`
	PhoneNumber string `gorm:"uniqueIndex;not null"`
	DisplayName string `gorm:"not null"`
	CreatedDate time.Time
}

// Memory provides caller recognition across calls and process restarts.
type Memory interface {
	// Remember stores the display name for a phone number unless one is
	// already recorded. It reports whether this call was the first
	// identification for the number.
	Remember(ctx context.Context, phoneNumber, displayName string) (bool, error)

	// Lookup returns the recorded display name for a phone number.
	Lookup(ctx context.Context, phoneNumber string) (string, bool, error)
}

type sqliteMemory struct {
	db     *gorm.DB
	logger commons.Logger
}

// NewMemory opens (or creates) the caller identity database at path.
func NewMemory(logger commons.Logger, path string) (Memory, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open caller memory at %s: %w", path, err)
	}
	if err := db.AutoMigrate(&CallerIdentity{}); err != nil {
		return nil, fmt.Errorf("failed to migrate caller memory: %w", err)
	}
	return &sqliteMemory{db: db, logger: logger}, nil
}

func (m *sqliteMemory) Remember(ctx context.Context, phoneNumber, displayName string) (bool, error) {
	if phoneNumber == "" || displayName == "" {
		return false, fmt.Errorf("caller memory requires phone number and name")
	}

	// Insert-or-ignore keyed on the phone number keeps the first recorded
	// identity under concurrent writes.
	result := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone_number"}},
			DoNothing: true,
		}).
		Create(&CallerIdentity{
			PhoneNumber: phoneNumber,
			DisplayName: displayName,
			CreatedDate: time.Now(),
		})

	if result.Error != nil {
		return false, fmt.Errorf("failed to remember caller %s: %w", phoneNumber, result.Error)
	}

	learned := result.RowsAffected > 0
	if learned {
		m.logger.Infow("learned caller identity", "phone", phoneNumber, "name", displayName)
	} else {
		m.logger.Debugw("caller identity already recorded, keeping first",
			"phone", phoneNumber, "rejected_name", displayName)
	}
	return learned, nil
}

func (m *sqliteMemory) Lookup(ctx context.Context, phoneNumber string) (string, bool, error) {
	var identity CallerIdentity
	err := m.db.WithContext(ctx).
		Where("phone_number = ?", phoneNumber).
		First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up caller %s: %w", phoneNumber, err)
	}
	return identity.DisplayName, true, nil
}
