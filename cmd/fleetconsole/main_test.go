package main

import (
	"testing"

	_ "github.com/leofleet/fleet-console/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	main()
}
