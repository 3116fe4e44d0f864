// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_directory

import (
	"fmt"
	"os"
	"strings"

	"github.com/rapidaai/receptionist/pkg/commons"
)

// Contact is one staff member a caller can leave a message for.
type Contact struct {
	Name  string
	Email string
	Phone string
	Role  string
}

// Directory resolves staff members by display name. A miss is never fatal:
// callers get the fallback contact so no message is lost.
type Directory interface {
	// Lookup resolves a contact by name, case-insensitively. On a miss it
	// returns the fallback contact and false.
	Lookup(name string) (Contact, bool)
	// Fallback returns the contact that receives unroutable messages.
	Fallback() Contact
}

type fileDirectory struct {
	logger   commons.Logger
	path     string
	fallback Contact
}

// NewDirectory builds a directory over a comma-separated staff file, one
// contact per line: name,email,phone,role. The file is re-read on every
// lookup; it is small and edited out of band without a restart.
func NewDirectory(logger commons.Logger, path, fallbackEmail string) (Directory, error) {
	d := &fileDirectory{
		logger: logger,
		path:   path,
		fallback: Contact{
			Name:  "Reception",
			Email: fallbackEmail,
			Role:  "Unknown",
		},
	}
	// Parse once up front so a broken file fails startup, not a live call.
	if _, err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *fileDirectory) Lookup(name string) (Contact, bool) {
	contacts, err := d.load()
	if err != nil {
		d.logger.Errorw("failed to load staff directory, using fallback",
			"path", d.path, "error", err)
		return d.fallback, false
	}
	contact, ok := contacts[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return d.fallback, false
	}
	return contact, true
}

func (d *fileDirectory) Fallback() Contact {
	return d.fallback
}

func (d *fileDirectory) load() (map[string]Contact, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read staff directory %s: %w", d.path, err)
	}

	contacts := make(map[string]Contact)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			d.logger.Warnw("skipping malformed staff directory line", "line", line)
			continue
		}
		contact := Contact{
			Name:  strings.TrimSpace(fields[0]),
			Email: strings.TrimSpace(fields[1]),
			Phone: strings.TrimSpace(fields[2]),
			Role:  strings.TrimSpace(fields[3]),
		}
		contacts[strings.ToLower(contact.Name)] = contact
	}
	return contacts, nil
}
