package model

import "fmt"

type SecurityScheme struct {
	Name        string
	Description string
	// Value is one of APIKeyScheme, HTTPScheme, OAuth2Scheme,
	// OpenIDConnectScheme or MutualTLSScheme.
	Value SecuritySchemeValue
}

type SecuritySchemeValue interface {
	securityScheme()
}

type APIKeyScheme struct {
	ParamName string
	In        ParameterLocation
}

type HTTPScheme struct {
	Scheme       string
	BearerFormat string
}

type OAuth2Scheme struct {
	Flows []OAuthFlow
}

type OAuthFlow struct {
	Kind             string // implicit, password, clientCredentials, authorizationCode
	AuthorizationURL string
	TokenURL         string
	RefreshURL       string
	Scopes           map[string]string
}

type OpenIDConnectScheme struct {
	URL string
}

type MutualTLSScheme struct{}

func (APIKeyScheme) securityScheme()        {}
func (HTTPScheme) securityScheme()          {}
func (OAuth2Scheme) securityScheme()        {}
func (OpenIDConnectScheme) securityScheme() {}
func (MutualTLSScheme) securityScheme()     {}

// Type returns the OpenAPI type keyword of the scheme.
func (s *SecurityScheme) Type() string {
	switch s.Value.(type) {
	case APIKeyScheme:
		return "apiKey"
	case HTTPScheme:
		return "http"
	case OAuth2Scheme:
		return "oauth2"
	case OpenIDConnectScheme:
		return "openIdConnect"
	case MutualTLSScheme:
		return "mutualTLS"
	default:
		panic(fmt.Sprintf("unknown security scheme %T", s.Value))
	}
}

// SecurityRequirement lists schemes that must all be satisfied together.
type SecurityRequirement struct {
	Schemes []RequiredScheme
}

type RequiredScheme struct {
	Name   string
	Scopes []string
}
