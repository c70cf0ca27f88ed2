package auth

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3Client struct {
	body string
	err  error
}

func (f *fakeS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

const fakePolicyDoc = `{
  "realms": {
    "default": {
      "users": {
        "alice": {
          "mode": "authenticate",
          "methods": ["wampcra"],
          "secret": "secret2",
          "salt": {"salt": "saltxx", "keylen": 32, "iterations": 1500}
        }
      }
    }
  }
}`

func TestS3PolicyProviderLoadAndReload(t *testing.T) {
	client := &fakeS3Client{body: fakePolicyDoc}
	p := &S3PolicyProvider{client: client, bucket: "b", key: "k", providerName: "s3"}
	if err := p.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	policy, err := p.Policy("alice", "default")
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if policy.Mode != ModeAuthenticate {
		t.Errorf("expected ModeAuthenticate, got %v", policy.Mode)
	}

	secret, err := p.UserSecret("alice", "default")
	if err != nil || secret != "secret2" {
		t.Errorf("UserSecret = (%q, %v)", secret, err)
	}

	salt, ok, err := p.CRASalt("alice", "default")
	if err != nil || !ok || salt.Iterations != 1500 {
		t.Errorf("CRASalt = (%+v, %t, %v)", salt, ok, err)
	}

	// Reload again with an empty policy; the stale snapshot is fully
	// replaced, not merged.
	client.body = `{"realms":{}}`
	if err := p.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	policy, _ = p.Policy("alice", "default")
	if policy.Mode != ModeDeny {
		t.Errorf("expected ModeDeny after reload to empty document, got %v", policy.Mode)
	}
}
