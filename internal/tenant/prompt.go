// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_tenant

import (
	"time"
)

// SelectPrompt picks the script for a session from the tenant configuration,
// whether the caller is recognized, and the current server time. Pure function
// of its three inputs: the business-hours determination uses server-side
// trusted time, is computed once at session start, and is never delegated to
// the voice agent or recomputed mid-call.
func SelectPrompt(t *Tenant, recognized bool, now time.Time) Script {
	inHours := InBusinessHours(t, now)

	switch {
	case inHours && recognized:
		return t.Scripts.InHoursRecognized
	case inHours && !recognized:
		return t.Scripts.InHoursUnrecognized
	case !inHours && recognized:
		return t.Scripts.AfterHoursRecognized
	default:
		return t.Scripts.AfterHoursUnrecognized
	}
}

// InBusinessHours reports whether now falls inside the tenant's configured
// work days and open hours, in the tenant's timezone, excluding holidays.
// Config is validated at registry load; a tenant that slipped through with a
// bad timezone or hour string is treated as after-hours rather than guessed at.
func InBusinessHours(t *Tenant, now time.Time) bool {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return false
	}
	local := now.In(loc)

	if !workDay(t, local.Weekday()) {
		return false
	}
	if holiday(t, local) {
		return false
	}

	opens, err := time.Parse("15:04", t.OpensAt)
	if err != nil {
		return false
	}
	closes, err := time.Parse("15:04", t.ClosesAt)
	if err != nil {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	openMin := opens.Hour()*60 + opens.Minute()
	closeMin := closes.Hour()*60 + closes.Minute()

	// Open boundary inclusive, close boundary exclusive.
	return minutes >= openMin && minutes < closeMin
}

func workDay(t *Tenant, day time.Weekday) bool {
	for _, d := range t.WorkDays {
		if d == day.String() {
			return true
		}
	}
	return false
}

func holiday(t *Tenant, local time.Time) bool {
	date := local.Format("2006-01-02")
	for _, h := range t.Holidays {
		if h == date {
			return true
		}
	}
	return false
}
