package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
)

// configureTLS sets up TLS configuration based on the mode
func (s *Server) configureTLS(httpServer *http.Server) error {
	switch s.TLSConfig.Mode {
	case "", "disabled":
		return nil
	case "server", "mutual":
		tlsConfig, err := s.buildTLSConfig()
		if err != nil {
			return fmt.Errorf("failed to set up TLS: %w", err)
		}
		httpServer.TLSConfig = tlsConfig
		return nil
	default:
		return fmt.Errorf("invalid TLS mode: %s (must be 'disabled', 'server', or 'mutual')", s.TLSConfig.Mode)
	}
}

// buildTLSConfig creates the TLS configuration from static certificates
func (s *Server) buildTLSConfig() (*tls.Config, error) {
	cert, err := s.loadServerCertificate()
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.NoClientCert,
	}
	if s.TLSConfig.MinVersion == "1.3" {
		tlsConfig.MinVersion = tls.VersionTLS13
	}

	if s.TLSConfig.Mode == "mutual" {
		caCertPool, err := s.loadCACertificatePool()
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = caCertPool
		tlsConfig.ClientAuth = s.getClientAuthPolicy()
	}

	return tlsConfig, nil
}

// loadServerCertificate loads the server certificate from content or files
func (s *Server) loadServerCertificate() (tls.Certificate, error) {
	if s.TLSConfig.CertContent != "" && s.TLSConfig.KeyContent != "" {
		cert, err := tls.X509KeyPair([]byte(s.TLSConfig.CertContent), []byte(s.TLSConfig.KeyContent))
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load server cert/key from content: %w", err)
		}
		return cert, nil
	}

	if s.TLSConfig.CertFile != "" && s.TLSConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.TLSConfig.CertFile, s.TLSConfig.KeyFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load server cert/key from files: %w", err)
		}
		return cert, nil
	}

	return tls.Certificate{}, fmt.Errorf("TLS certificate and key are required (provide either files or content)")
}

func (s *Server) loadCACertificatePool() (*x509.CertPool, error) {
	var caCert []byte
	switch {
	case s.TLSConfig.CAContent != "":
		caCert = []byte(s.TLSConfig.CAContent)
	case s.TLSConfig.CAFile != "":
		data, err := os.ReadFile(s.TLSConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		caCert = data
	default:
		return nil, fmt.Errorf("CA certificate is required for mutual TLS mode (provide either caFile or caContent)")
	}

	caCertPool := x509.NewCertPool()
	if ok := caCertPool.AppendCertsFromPEM(caCert); !ok {
		return nil, fmt.Errorf("failed to append CA cert")
	}
	return caCertPool, nil
}

// getClientAuthPolicy returns the appropriate client authentication policy
func (s *Server) getClientAuthPolicy() tls.ClientAuthType {
	switch s.TLSConfig.ClientAuthPolicy {
	case "request":
		return tls.RequestClientCert
	case "verify":
		return tls.VerifyClientCertIfGiven
	default:
		return tls.RequireAndVerifyClientCert
	}
}
