package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunRulesCheck(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"rules", "check", "--policy", "deny", "--grant", "Driver:read", "/dashboard/drivers", "/dashboard/drivers/new"}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "default policy deny")
	assert.Contains(t, stdout.String(), "unauthorized -> /dashboard")
}

func TestRunUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"rules"}, &bytes.Buffer{}, &stderr))
	assert.Equal(t, 2, run([]string{"vehicles", "list"}, &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), "Usage:")
}
