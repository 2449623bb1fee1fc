// Package authprovider declares the two credential-resolution
// collaborators an outbound PBS request is authenticated through, and
// a thin Authenticator that attaches their result to a request's
// headers. Both collaborators are interfaces only: no concrete
// AWS STS or GCP IAM implementation lives in this core, matching the
// client's scope boundary (an authorization-token *issuer* is out of
// scope; consuming one to authenticate outbound calls is in scope).
package authprovider

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
)

const (
	// HeaderClaimedIdentity carries the identity the request claims to
	// be acting as, set from whichever credential path resolved.
	HeaderClaimedIdentity = "x-gscp-claimed-identity"
	// HeaderActivityID carries the originating AsyncContext's activity
	// id, the same value Connection.sendRequest force-overwrites.
	HeaderActivityID = "x-gscp-client-activity-id"
)

// RoleCredentialsProvider resolves temporary AWS credentials for
// roleArn, used to SigV4-sign the outbound request.
type RoleCredentialsProvider interface {
	GetCredentials(ctx context.Context, roleArn string) (aws.Credentials, error)
}

// AuthTokenProviderCache resolves (and caches) a GCP bearer token
// scoped to audience.
type AuthTokenProviderCache interface {
	GetToken(ctx context.Context, audience string) (string, error)
}

// Provider selects which credential path an Authenticator uses,
// mirroring config.AuthConfig.Provider.
type Provider string

const (
	ProviderNone Provider = "none"
	ProviderAWS  Provider = "aws-sigv4"
	ProviderGCP  Provider = "gcp-bearer"
)

// ErrNoCredentialSource is returned when Authenticate is asked to use
// a Provider whose backing collaborator was never configured.
var ErrNoCredentialSource = errors.New("authprovider: no credential source configured for selected provider")

// Authenticator attaches the Authorization, claimed-identity, and
// activity-id headers to an outbound request before Connection.Execute
// hands it to the wire.
type Authenticator struct {
	provider Provider
	aws      RoleCredentialsProvider
	gcp      AuthTokenProviderCache
	roleArn  string
	audience string
}

// New constructs an Authenticator for provider, backed by aws and/or
// gcp — only the one matching provider needs to be non-nil.
func New(provider Provider, aws RoleCredentialsProvider, gcp AuthTokenProviderCache, roleArn, audience string) *Authenticator {
	return &Authenticator{provider: provider, aws: aws, gcp: gcp, roleArn: roleArn, audience: audience}
}

// Authenticate sets headers on an outbound request. activityID is
// always set; the Authorization/claimed-identity pair is only set when
// provider is not ProviderNone.
func (a *Authenticator) Authenticate(ctx context.Context, headers http.Header, activityID string) error {
	headers.Set(HeaderActivityID, activityID)

	switch a.provider {
	case ProviderNone, "":
		return nil

	case ProviderAWS:
		if a.aws == nil {
			return ErrNoCredentialSource
		}
		creds, err := a.aws.GetCredentials(ctx, a.roleArn)
		if err != nil {
			return err
		}
		headers.Set(HeaderClaimedIdentity, creds.AccessKeyID)
		headers.Set("Authorization", "AWS4-HMAC-SHA256 Credential="+creds.AccessKeyID)
		return nil

	case ProviderGCP:
		if a.gcp == nil {
			return ErrNoCredentialSource
		}
		token, err := a.gcp.GetToken(ctx, a.audience)
		if err != nil {
			return err
		}
		headers.Set(HeaderClaimedIdentity, a.audience)
		headers.Set("Authorization", "Bearer "+token)
		return nil

	default:
		return ErrNoCredentialSource
	}
}
