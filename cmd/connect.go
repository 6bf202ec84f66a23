package cmd

import (
	"fmt"
	"os"

	"github.com/s0up4200/alclient/assemblyline"
	"github.com/s0up4200/alclient/config"
)

// credentialFromConfig picks the credential matching auth.method
func credentialFromConfig(auth config.AuthConfig) (assemblyline.Credential, error) {
	switch auth.Method {
	case config.AuthPassword:
		return assemblyline.PasswordCredential{Username: auth.Username, Password: auth.Password}, nil
	case config.AuthAPIKey:
		return assemblyline.APIKeyCredential{Username: auth.Username, Key: auth.APIKey}, nil
	case config.AuthOAuth:
		return assemblyline.OAuthCredential{Provider: auth.OAuthProvider, Token: auth.OAuthToken}, nil
	default:
		return nil, fmt.Errorf("unsupported auth method: %s", auth.Method)
	}
}

// connectionOptions translates the server section into connection options
func connectionOptions(server config.ServerConfig) ([]assemblyline.Option, error) {
	var opts []assemblyline.Option

	if server.MaxRetries >= 0 {
		opts = append(opts, assemblyline.WithMaxRetries(server.MaxRetries))
	}
	if server.Timeout > 0 {
		opts = append(opts, assemblyline.WithTimeout(server.Timeout))
	}
	if !server.VerifyTLS {
		opts = append(opts, assemblyline.WithInsecureSkipVerify())
	}
	if server.Certificate != "" {
		pem, err := os.ReadFile(server.Certificate)
		if err != nil {
			return nil, fmt.Errorf("failed to read server.certificate: %w", err)
		}
		opts = append(opts, assemblyline.WithCertificate(string(pem)))
	}
	if len(server.Headers) > 0 {
		opts = append(opts, assemblyline.WithHeaders(server.Headers))
	}
	if server.UserAgent != "" {
		opts = append(opts, assemblyline.WithUserAgent(server.UserAgent))
	}

	return opts, nil
}
