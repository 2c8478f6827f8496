package config

import "time"

type Config struct {
	// tick interval of the scan-and-idle cycle
	Interval time.Duration
	// base address of the payment completed endpoint (self-call)
	CompletedAddr string
}
