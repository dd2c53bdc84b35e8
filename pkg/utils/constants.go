package utils

import "time"

const (
	Version             = "v1.2.0"
	CliName             = "Vero"
	RoutineFlushTimeout = time.Duration(1 * time.Second)
)
