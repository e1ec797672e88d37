package server

import "fmt"

// displayServerInfo shows server configuration information
func (s *Server) displayServerInfo() {
	s.displayAddress()
	s.displayEndpoints()
	s.displayAuthInfo()
	s.displayRequestLimitInfo()
	s.displayRateLimitInfo()
}

func (s *Server) displayAddress() {
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	switch s.TLSConfig.Mode {
	case "server":
		fmt.Printf("Starting server with HTTPS (server-only TLS) on https://%s\n", addr)
	case "mutual":
		fmt.Printf("Starting server with mTLS (mutual TLS) on https://%s\n", addr)
	default:
		fmt.Printf("Starting server on http://%s\n", addr)
		fmt.Println("TLS mode: Disabled (HTTP only)")
	}
}

// displayEndpoints shows available endpoints
func (s *Server) displayEndpoints() {
	fmt.Println("Available endpoints:")
	fmt.Println("  GET  /          - Customization form")
	fmt.Println("  POST /customize - Tailor resume and build interview materials (zip)")
	fmt.Println("  GET  /health    - Health check")
	fmt.Println("  GET  /stats     - Server statistics")
	if s.Observability.MetricsHandler() != nil {
		fmt.Printf("  GET  %-9s - Prometheus metrics\n", s.Observability.MetricsEndpoint())
	}
}

// displayAuthInfo shows authentication configuration
func (s *Server) displayAuthInfo() {
	if len(s.APIKeys) > 0 {
		fmt.Printf("API authentication: ENABLED (%d keys configured)\n", len(s.APIKeys))
		fmt.Println("Include 'X-API-Key: <your-key>' header in requests to /customize")
	} else {
		fmt.Println("API authentication: DISABLED (no API keys configured)")
	}
	if s.HasDefaultGeminiKey || s.HasDefaultSerperKey {
		fmt.Println("Default credentials: configured (form key fields are optional)")
	}
}

// displayRequestLimitInfo shows request size limit configuration
func (s *Server) displayRequestLimitInfo() {
	if s.MaxRequestSize > 0 {
		fmt.Printf("Upload size limit: %d bytes (%.1f MB)\n", s.MaxUploadSize, float64(s.MaxUploadSize)/(1024*1024))
	} else {
		fmt.Println("Request size limit: DISABLED")
		fmt.Println("WARNING: No request size limits configured!")
	}
}

// displayRateLimitInfo shows rate limiting configuration
func (s *Server) displayRateLimitInfo() {
	if s.RateLimit != nil && s.RateLimit.Enabled {
		fmt.Printf("Rate limiting: ENABLED (%d requests/min, burst: %d)\n",
			s.RateLimit.RequestsPerMin, s.RateLimit.BurstCapacity)
		if s.RateLimit.ByAPIKey {
			fmt.Println("  - Per API key rate limiting enabled")
		}
		if s.RateLimit.ByIP {
			fmt.Println("  - Per IP address rate limiting enabled")
		}
	} else {
		fmt.Println("Rate limiting: DISABLED")
	}
}
