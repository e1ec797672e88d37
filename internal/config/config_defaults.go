package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// AI
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.timeout", 120*time.Second)
	v.SetDefault("ai.maxRetries", 2)
	v.SetDefault("ai.temperature", 0.4)
	v.SetDefault("ai.maxOutputTokens", 8192)
	v.SetDefault("ai.maxToolSteps", 6)
	v.SetDefault("ai.circuitBreaker.enabled", true)
	v.SetDefault("ai.circuitBreaker.maxRequests", 3)
	v.SetDefault("ai.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("ai.circuitBreaker.timeout", 60*time.Second)
	v.SetDefault("ai.circuitBreaker.minRequests", 3)
	v.SetDefault("ai.circuitBreaker.failureThreshold", 0.6)

	// Crew
	v.SetDefault("crew.definitionFile", "")
	v.SetDefault("crew.watchDefinition", true)
	v.SetDefault("crew.searchEndpoint", "https://google.serper.dev/search")
	v.SetDefault("crew.searchResults", 5)
	v.SetDefault("crew.credentials.geminiApiKey", "")
	v.SetDefault("crew.credentials.serperApiKey", "")

	// Fetch
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.userAgent", "Mozilla/5.0 (compatible; ResumeCrew/1.0)")
	v.SetDefault("fetch.maxBodyBytes", 5*1024*1024)
	v.SetDefault("fetch.browserFallback", false)
	v.SetDefault("fetch.browserTimeout", 45*time.Second)
	v.SetDefault("fetch.minTextLength", 500)

	// Server
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 60*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Minute) // a crew run takes minutes
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.tls.mode", "disabled")
	v.SetDefault("server.tls.certFile", "")
	v.SetDefault("server.tls.keyFile", "")
	v.SetDefault("server.tls.caFile", "")
	v.SetDefault("server.tls.minVersion", "1.2")
	v.SetDefault("server.tls.clientAuthPolicy", "require")
	v.SetDefault("server.apiKeys", []string{})
	v.SetDefault("server.rateLimit.enabled", false)
	v.SetDefault("server.rateLimit.requestsPerMin", 10)
	v.SetDefault("server.rateLimit.burstCapacity", 2)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byAPIKey", false)
	v.SetDefault("server.rateLimit.window", time.Minute)

	// App
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.workDir", "")
	v.SetDefault("app.maxUploadSize", 10*1024*1024)

	// Vault
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.secrets.apiKeys", "")
	v.SetDefault("vault.secrets.geminiKey", "")
	v.SetDefault("vault.secrets.serperKey", "")
	v.SetDefault("vault.secrets.tlsCerts", "")

	// Notify
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.url", "")
	v.SetDefault("notify.exchange", "request_updates")
	v.SetDefault("notify.routingKeyPrefix", "request")
	v.SetDefault("notify.publishTimeout", 5*time.Second)

	// Observability
	v.SetDefault("observability.enabled", true)
	v.SetDefault("observability.serviceName", "resumecrew")
	v.SetDefault("observability.serviceVersion", "")
	v.SetDefault("observability.serviceInstance", "")
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)
	v.SetDefault("observability.prometheus.enabled", true)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
}
