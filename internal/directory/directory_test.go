// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/receptionist/pkg/commons"
)

const staffList = `Rod Grant,rod.grant@example.co.nz,+64211111111,Director
Jane Smith,jane.smith@example.co.nz,+64222222222,Accountant

malformed line without commas
Sam Lee,sam.lee@example.co.nz,+64233333333,Receptionist
`

func newTestDirectory(t *testing.T, content string) Directory {
	t.Helper()
	logger, _ := commons.NewApplicationLogger()
	path := filepath.Join(t.TempDir(), "Callee_list.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	d, err := NewDirectory(logger, path, "reception@example.co.nz")
	require.NoError(t, err)
	return d
}

func TestLookup(t *testing.T) {
	d := newTestDirectory(t, staffList)

	contact, ok := d.Lookup("Jane Smith")
	require.True(t, ok)
	assert.Equal(t, "jane.smith@example.co.nz", contact.Email)
	assert.Equal(t, "+64222222222", contact.Phone)
	assert.Equal(t, "Accountant", contact.Role)
}

func TestLookup_CaseInsensitive(t *testing.T) {
	d := newTestDirectory(t, staffList)

	tests := []string{"rod grant", "ROD GRANT", "Rod Grant", "  rod grant  "}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			contact, ok := d.Lookup(name)
			assert.True(t, ok)
			assert.Equal(t, "Rod Grant", contact.Name)
		})
	}
}

func TestLookup_MissReturnsFallback(t *testing.T) {
	d := newTestDirectory(t, staffList)

	contact, ok := d.Lookup("Nobody Known")
	assert.False(t, ok)
	assert.Equal(t, "reception@example.co.nz", contact.Email)
	assert.Equal(t, "Unknown", contact.Role)
}

func TestLookup_SkipsMalformedLines(t *testing.T) {
	d := newTestDirectory(t, staffList)

	_, ok := d.Lookup("malformed line without commas")
	assert.False(t, ok)

	contact, ok := d.Lookup("Sam Lee")
	assert.True(t, ok)
	assert.Equal(t, "Receptionist", contact.Role)
}

func TestNewDirectory_MissingFileFailsStartup(t *testing.T) {
	logger, _ := commons.NewApplicationLogger()
	_, err := NewDirectory(logger, filepath.Join(t.TempDir(), "absent.txt"), "x@y.nz")
	assert.Error(t, err)
}

func TestLookup_PicksUpFileEdits(t *testing.T) {
	logger, _ := commons.NewApplicationLogger()
	path := filepath.Join(t.TempDir(), "Callee_list.txt")
	require.NoError(t, os.WriteFile(path, []byte(staffList), 0o600))

	d, err := NewDirectory(logger, path, "reception@example.co.nz")
	require.NoError(t, err)

	_, ok := d.Lookup("New Hire")
	assert.False(t, ok)

	updated := staffList + "New Hire,new.hire@example.co.nz,+64244444444,Analyst\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	contact, ok := d.Lookup("New Hire")
	assert.True(t, ok)
	assert.Equal(t, "new.hire@example.co.nz", contact.Email)
}
