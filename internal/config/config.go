// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the session service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
	}
}

// WorkerConfig describes how external worker processes are launched.
// A session of kind "train" runs as: <interpreter> <script_dir>/train.py -c <params-file>
type WorkerConfig struct {
	Interpreter string // worker interpreter binary (default: python3)
	ScriptDir   string // directory containing per-kind worker scripts
	WorkDir     string // working directory for spawned workers
}

// LoadWorkerConfig loads worker launch configuration from environment variables.
func LoadWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Interpreter: GetEnv("WORKER_INTERPRETER", "python3"),
		ScriptDir:   GetEnv("WORKER_SCRIPT_DIR", "./workers"),
		WorkDir:     GetEnv("WORKER_WORK_DIR", "."),
	}
}
