// Package config provides configuration loading from environment variables.
package config

import (
	"strings"
	"time"

	"coordinator/internal/model"
)

// ServiceConfig holds configuration for the coordinator's HTTP surface.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
}

// LoadServiceConfig loads HTTP-surface configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
	}
}

// CoordinatorConfig holds the coordinator process's own configuration: the
// scheduling intervals for its three loops, and the addresses of every
// external collaborator it wires.
type CoordinatorConfig struct {
	PollInterval      time.Duration
	PropagateInterval time.Duration
	JobUpdateTimeout  time.Duration

	KafkaBrokers []string
	SpecTopic    string
	AckTopic     string

	PostgresDSN string

	RegistryGRPCAddr string

	DockerImages     map[model.Runner]string
	DockerExtraHosts []string
}

// LoadCoordinatorConfig loads CoordinatorConfig from environment variables,
// matching the defaults documented in the external interfaces section of
// the coordinator's design.
func LoadCoordinatorConfig() *CoordinatorConfig {
	return &CoordinatorConfig{
		PollInterval:      GetDurationEnv("POLL_INTERVAL", 30*time.Second),
		PropagateInterval: GetDurationEnv("PROPAGATE_INTERVAL", 10*time.Second),
		JobUpdateTimeout:  time.Duration(GetIntEnv("JOB_UPDATE_TIMEOUT_SECONDS", 5)) * time.Second,

		KafkaBrokers: splitCSV(GetEnv("KAFKA_BROKERS", "localhost:9092")),
		SpecTopic:    GetEnv("SPEC_TOPIC", "featureset-specs"),
		AckTopic:     GetEnv("ACK_TOPIC", "featureset-spec-acks"),

		PostgresDSN: GetEnv("POSTGRES_DSN", ""),

		RegistryGRPCAddr: GetEnv("REGISTRY_GRPC_ADDR", "localhost:7070"),

		DockerImages: map[model.Runner]string{
			model.RunnerDocker: GetEnv("DOCKER_RUNNER_IMAGE", "feature-ingestion-runner:latest"),
		},
		DockerExtraHosts: splitCSV(GetEnv("DOCKER_EXTRA_HOSTS", "")),
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
