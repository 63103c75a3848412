package app

import (
	"net"
	"net/url"
	"strings"

	"quiz-checkout-service/internal/domain"
)

// EnvironmentResolver decides between test and production mode.
//
// Precedence, first conclusive signal wins:
//  1. DeploymentEnv (APP_ENV), the least spoofable signal.
//  2. BaseURL, the configured public base URL.
//  3. The request hostname; only a local hostname is conclusive.
//  4. Test mode.
type EnvironmentResolver struct {
	DeploymentEnv   string
	BaseURL         string
	FallbackBaseURL string
	Products        domain.ProductTable
}

// Resolve returns the environment for a request served under hostname.
// hostname may be empty and may include a port.
func (r EnvironmentResolver) Resolve(hostname string) domain.Environment {
	isTest := r.isTest(hostname)
	return domain.Environment{
		IsTest:    isTest,
		ProductID: r.Products.For(isTest),
		BaseURL:   r.baseURL(hostname, isTest),
	}
}

func (r EnvironmentResolver) isTest(hostname string) bool {
	if isTest, ok := deploymentSignal(r.DeploymentEnv); ok {
		return isTest
	}
	if u, ok := absoluteBaseURL(r.BaseURL); ok {
		return isLocalHost(u.Hostname())
	}
	if hostname != "" && isLocalHost(stripPort(hostname)) {
		return true
	}
	// undetermined: never charge production prices
	return true
}

// baseURL never trusts the request host outside test mode.
func (r EnvironmentResolver) baseURL(hostname string, isTest bool) string {
	if _, ok := absoluteBaseURL(r.BaseURL); ok {
		return strings.TrimRight(strings.TrimSpace(r.BaseURL), "/")
	}
	if isTest && hostname != "" {
		scheme := "https"
		if isLocalHost(stripPort(hostname)) {
			scheme = "http"
		}
		return scheme + "://" + hostname
	}
	if r.FallbackBaseURL != "" {
		return strings.TrimRight(r.FallbackBaseURL, "/")
	}
	return "http://localhost"
}

// Validate checks the configured public base URL. Production deployments must
// name one, since redirect targets are never built from the request host there.
func (r EnvironmentResolver) Validate() error {
	if strings.TrimSpace(r.BaseURL) == "" {
		if isTest, ok := deploymentSignal(r.DeploymentEnv); ok && !isTest {
			return &domain.ConfigurationError{
				Setting: "PUBLIC_BASE_URL",
				Reason:  domain.ConfigMissing,
				Detail:  "required when APP_ENV is production",
			}
		}
		return nil
	}
	if _, ok := absoluteBaseURL(r.BaseURL); !ok {
		return &domain.ConfigurationError{
			Setting: "PUBLIC_BASE_URL",
			Reason:  domain.ConfigMalformed,
			Detail:  "must be an absolute http or https URL",
		}
	}
	return nil
}

func absoluteBaseURL(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, false
	}
	return u, true
}

func deploymentSignal(raw string) (isTest bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return false, true
	case "development", "dev", "test", "preview", "staging", "local":
		return true, true
	default:
		return false, false
	}
}

func isLocalHost(host string) bool {
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsUnspecified()
	}
	return false
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}
