package console

import "time"

// Config configures the console server and its backend connection.
type Config struct {
	ListenAddr            string
	APIBaseURL            string
	CredentialDatabaseURL string
	RequestTimeout        time.Duration
	EnableCORS            bool
	CORSAllowedOrigins    []string
}
