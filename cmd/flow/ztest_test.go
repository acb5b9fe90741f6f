package main

import (
	"testing"

	"github.com/brimdata/flow/ztest"
)

func TestZTest(t *testing.T) {
	ztest.Run(t, "ztests")
}
