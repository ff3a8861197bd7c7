// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package oidc

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/go-jose/go-jose/v4/jwt"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return NewSigner(key, "pipeline-runner")
}

func TestIssueProducesVerifiableClaims(t *testing.T) {
	t.Parallel()

	signer := testSigner(t)
	token, err := signer.Issue(IssueOptions{
		RepositorySlug: "acme/widgets",
		PipelineUUID:   "pipeline-123",
		StepID:         "step-1",
		Audience:       "ci",
	})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	parsed, err := jwt.ParseSigned(token, []jwt.SignatureAlgorithm{jwt.RS256})
	if err != nil {
		t.Fatalf("ParseSigned() error = %v", err)
	}

	var claims Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		t.Fatalf("UnsafeClaimsWithoutVerification() error = %v", err)
	}

	if claims.Issuer != "pipeline-runner" {
		t.Errorf("Issuer = %q, want pipeline-runner", claims.Issuer)
	}
	if claims.PipelineUUID != "pipeline-123" {
		t.Errorf("PipelineUUID = %q, want pipeline-123", claims.PipelineUUID)
	}
	if claims.StepUUID != "step-1" {
		t.Errorf("StepUUID = %q, want step-1", claims.StepUUID)
	}
	if claims.Audience != "ci" {
		t.Errorf("Audience = %q, want ci", claims.Audience)
	}
}

func TestIssueVerifiesAgainstSignerKey(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	signer := NewSigner(key, "pipeline-runner")

	token, err := signer.Issue(IssueOptions{RepositorySlug: "acme/widgets", PipelineUUID: "p", StepID: "s", Audience: "ci"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	parsed, err := jwt.ParseSigned(token, []jwt.SignatureAlgorithm{jwt.RS256})
	if err != nil {
		t.Fatalf("ParseSigned() error = %v", err)
	}

	var claims Claims
	if err := parsed.Claims(&key.PublicKey, &claims); err != nil {
		t.Fatalf("Claims() with correct key failed verification: %v", err)
	}

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	if err := parsed.Claims(&other.PublicKey, &claims); err == nil {
		t.Error("expected verification to fail against a different key")
	}
}

func TestIssueUniqueJTIPerToken(t *testing.T) {
	t.Parallel()

	signer := testSigner(t)
	opts := IssueOptions{RepositorySlug: "acme/widgets", PipelineUUID: "p", StepID: "s", Audience: "ci"}

	first, err := signer.Issue(opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := signer.Issue(opts)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("expected distinct tokens (distinct jti/iat) across calls with the same options")
	}
}
