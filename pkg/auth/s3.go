package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Client is the subset of *s3.Client this package depends on, so tests
// can substitute a fake without an AWS account.
type s3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// policyDoc is the JSON shape S3PolicyProvider expects at its object key:
// a realm -> user -> configuration policy document.
type policyDoc struct {
	Realms map[string]struct {
		Users map[string]struct {
			Mode    string   `json:"mode"`
			Methods []string `json:"methods"`
			Secret  string   `json:"secret"`
			Salt    *struct {
				Salt       string `json:"salt"`
				KeyLen     int    `json:"keylen"`
				Iterations int    `json:"iterations"`
			} `json:"salt"`
		} `json:"users"`
	} `json:"realms"`
}

// S3PolicyProvider loads a realm auth-policy document from an S3-compatible
// bucket, so operators can host WAMP-CRA secrets and policy centrally
// without running a database. It loads once at construction and again on
// every Reload call; it holds auth configuration only, never session,
// subscription, or registration state.
type S3PolicyProvider struct {
	client       s3Client
	bucket, key  string
	providerName string

	current atomic.Pointer[StaticProvider]
	loadMu  sync.Mutex
}

// NewS3PolicyProvider builds a provider that reads its policy document from
// bucket/key using client, advertising providerName in CHALLENGE messages.
// It performs an initial load before returning.
func NewS3PolicyProvider(ctx context.Context, client *s3.Client, bucket, key, providerName string) (*S3PolicyProvider, error) {
	p := &S3PolicyProvider{client: client, bucket: bucket, key: key, providerName: providerName}
	if err := p.Reload(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-fetches and re-parses the policy document, atomically swapping
// it in. Concurrent authentications in flight continue to see the
// previous document until Reload completes.
func (p *S3PolicyProvider) Reload(ctx context.Context) error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &p.bucket, Key: &p.key})
	if err != nil {
		return fmt.Errorf("auth: fetch policy object s3://%s/%s: %w", p.bucket, p.key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("auth: read policy object: %w", err)
	}

	var doc policyDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("auth: parse policy document: %w", err)
	}

	sp := NewStaticProvider(p.providerName)
	for realm, realmDoc := range doc.Realms {
		for user, userDoc := range realmDoc.Users {
			cfg := UserConfig{
				Policy: Policy{Mode: parseMode(userDoc.Mode), Methods: parseMethods(userDoc.Methods)},
				Secret: userDoc.Secret,
			}
			if userDoc.Salt != nil {
				cfg.Salt = &Salt{Salt: userDoc.Salt.Salt, KeyLen: userDoc.Salt.KeyLen, Iterations: userDoc.Salt.Iterations}
			}
			sp.SetUser(realm, user, cfg)
		}
	}
	p.current.Store(sp)
	return nil
}

func parseMode(s string) Mode {
	switch s {
	case "open":
		return ModeOpen
	case "authenticate":
		return ModeAuthenticate
	default:
		return ModeDeny
	}
}

func parseMethods(ss []string) []Method {
	out := make([]Method, len(ss))
	for i, s := range ss {
		out[i] = Method(s)
	}
	return out
}

func (p *S3PolicyProvider) snapshot() *StaticProvider { return p.current.Load() }

func (p *S3PolicyProvider) ProviderName(realm string) string {
	return p.snapshot().ProviderName(realm)
}

func (p *S3PolicyProvider) Policy(user, realm string) (Policy, error) {
	return p.snapshot().Policy(user, realm)
}

func (p *S3PolicyProvider) UserSecret(user, realm string) (string, error) {
	return p.snapshot().UserSecret(user, realm)
}

func (p *S3PolicyProvider) CRASalt(user, realm string) (Salt, bool, error) {
	return p.snapshot().CRASalt(user, realm)
}
