package app_test

import (
	"errors"
	"testing"

	"quiz-checkout-service/internal/app"
	"quiz-checkout-service/internal/domain"
)

func TestEnvironmentResolverPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		resolver app.EnvironmentResolver
		host     string
		isTest   bool
		baseURL  string
	}{
		{"localhost request", app.EnvironmentResolver{}, "localhost:3000", true, "http://localhost:3000"},
		{"loopback request", app.EnvironmentResolver{}, "127.0.0.1:8080", true, "http://127.0.0.1:8080"},
		{"unknown public host defaults to test", app.EnvironmentResolver{}, "quiz.example.com", true, "https://quiz.example.com"},
		{"deployment signal beats local host", app.EnvironmentResolver{DeploymentEnv: "production"}, "localhost", false, "http://localhost"},
		{"preview deployment is test", app.EnvironmentResolver{DeploymentEnv: "preview", BaseURL: "https://quiz.example.com"}, "quiz.example.com", true, "https://quiz.example.com"},
		{"public base url means production", app.EnvironmentResolver{BaseURL: "https://quiz.example.com/"}, "localhost", false, "https://quiz.example.com"},
		{"local base url means test", app.EnvironmentResolver{BaseURL: "http://localhost:5173"}, "quiz.example.com", true, "http://localhost:5173"},
		{"unrecognized deployment falls through", app.EnvironmentResolver{DeploymentEnv: "blue"}, "localhost", true, "http://localhost"},
		{"no signals", app.EnvironmentResolver{FallbackBaseURL: "http://localhost:8080"}, "", true, "http://localhost:8080"},
		{"production ignores request host", app.EnvironmentResolver{DeploymentEnv: "production", FallbackBaseURL: "http://localhost:8080"}, "attacker.test", false, "http://localhost:8080"},
		{"schemeless base url is not used", app.EnvironmentResolver{BaseURL: "quiz.example.com"}, "localhost:3000", true, "http://localhost:3000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.resolver.Products = domain.DefaultProducts
			env := tc.resolver.Resolve(tc.host)
			if env.IsTest != tc.isTest {
				t.Fatalf("IsTest = %v, want %v", env.IsTest, tc.isTest)
			}
			if env.ProductID != domain.DefaultProducts.For(tc.isTest) {
				t.Fatalf("product %s does not match mode", env.ProductID)
			}
			if env.BaseURL != tc.baseURL {
				t.Fatalf("BaseURL = %q, want %q", env.BaseURL, tc.baseURL)
			}
		})
	}
}

func TestEnvironmentName(t *testing.T) {
	if (domain.Environment{IsTest: true}).Name() != "test" || (domain.Environment{}).Name() != "production" {
		t.Fatalf("unexpected environment names")
	}
}

func TestEnvironmentResolverValidate(t *testing.T) {
	cases := []struct {
		name     string
		resolver app.EnvironmentResolver
		reason   domain.ConfigReason
	}{
		{"no base url in development", app.EnvironmentResolver{}, ""},
		{"absolute base url", app.EnvironmentResolver{DeploymentEnv: "production", BaseURL: "https://quiz.example.com"}, ""},
		{"production without base url", app.EnvironmentResolver{DeploymentEnv: "production"}, domain.ConfigMissing},
		{"base url without scheme", app.EnvironmentResolver{BaseURL: "quiz.example.com"}, domain.ConfigMalformed},
		{"base url with other scheme", app.EnvironmentResolver{BaseURL: "ftp://quiz.example.com"}, domain.ConfigMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.resolver.Validate()
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *domain.ConfigurationError
			if !errors.As(err, &cfgErr) || cfgErr.Setting != "PUBLIC_BASE_URL" || cfgErr.Reason != tc.reason {
				t.Fatalf("expected %s PUBLIC_BASE_URL error, got %v", tc.reason, err)
			}
		})
	}
}
