package script

import "time"

// DefaultLimits provides safe default constraints for script execution
var DefaultLimits = Limits{
	MaxExecutionTime: 5 * time.Second,
	MaxMemoryBytes:   32 * 1024 * 1024, // 32MB
	MaxStackBytes:    1024 * 1024,      // 1MB
}

// GetDefaultLimits returns a copy of the default limits
func GetDefaultLimits() Limits {
	return DefaultLimits
}
