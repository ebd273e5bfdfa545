package pubsub

// TracingSettings is the configuration TracingConfigFrom reads.
// config.Provider satisfies it.
type TracingSettings interface {
	GetTracingEnabled() bool
	GetTracingServiceName() string
	GetTracingZipkinURL() string
}

// TracingConfigFrom builds a TracingConfig, keeping defaults for empty values.
func TracingConfigFrom(s TracingSettings) TracingConfig {
	config := DefaultTracingConfig()
	config.Enabled = s.GetTracingEnabled()
	if name := s.GetTracingServiceName(); name != "" {
		config.ServiceName = name
	}
	if url := s.GetTracingZipkinURL(); url != "" {
		config.ZipkinURL = url
	}
	return config
}
