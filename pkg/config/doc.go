// Package config loads casedesk configuration.
//
// Values come from built-in defaults, then an optional YAML file named by
// CASEDESK_CONFIG_FILE, then environment variables. The result is checked
// by Validate before use.
//
// Server settings:
//
//	CASEDESK_ENV="production"          # development or production
//	CASEDESK_HOST="0.0.0.0"
//	CASEDESK_PORT="8080"
//	CASEDESK_HEALTH_PORT="9090"
//	CASEDESK_TRUSTED_PROXY_HOPS="1"    # proxies appending X-Forwarded-For; 0 ignores it
//
// Session settings:
//
//	CASEDESK_SESSION_SECRET="..."      # at least 32 bytes
//	CASEDESK_SESSION_COOKIE_NAME="session"
//	CASEDESK_SESSION_MAX_AGE="120h"    # clamped to 336h
//	CASEDESK_SESSION_COOKIE_SECURE="true"
//	CASEDESK_SESSION_REVOKE_ALL_ON_LOGOUT="false"
//
// Identity issuer:
//
//	CASEDESK_OIDC_ISSUER_URL="https://id.example.org"
//	CASEDESK_OIDC_CLIENT_ID="casedesk"
//	CASEDESK_OIDC_CLIENT_SECRET="..."
//	CASEDESK_OIDC_REDIRECT_URL="https://casedesk.example.org/auth/oidc/callback"
//
// Storage settings:
//
//	CASEDESK_STORAGE_TYPE="postgres"   # memory or postgres
//	CASEDESK_POSTGRES_URL="postgres://localhost/casedesk"
//	CASEDESK_REDIS_URL="redis://localhost:6379"
//	CASEDESK_S3_BUCKET="casedesk-files"
//	CASEDESK_FILESYSTEM_ROOT="/var/lib/casedesk"
//
// Observability settings:
//
//	CASEDESK_LOG_LEVEL="info"
//	CASEDESK_OTEL_ENABLED="true"
//	CASEDESK_OTEL_ENDPOINT="otel-collector:4317"
//
// The same keys in YAML form:
//
//	environment: production
//	session:
//	  cookie_name: session
//	  max_age: 120h
//	storage:
//	  type: postgres
//	  postgres_url: postgres://localhost/casedesk
package config
