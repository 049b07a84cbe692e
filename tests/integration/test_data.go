package integration

import (
	"fmt"
	"sync/atomic"
	"time"
)

var seq atomic.Int64

// TestTenant generates a unique tenant id so tests never share order history
func TestTenant(suffix string) string {
	return fmt.Sprintf("tenant-%d-%d-%s", time.Now().Unix(), seq.Add(1), suffix)
}

// TestIP returns a distinct public address per call
func TestIP() string {
	n := seq.Add(1)
	return fmt.Sprintf("8.%d.%d.%d", (n>>16)&0xff, (n>>8)&0xff, n&0xff)
}
