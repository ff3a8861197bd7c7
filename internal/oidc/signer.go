// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package oidc issues the short-lived signed JWT a step with oidc:
// true receives as BITBUCKET_STEP_OIDC_TOKEN (spec.md §4.4, §6). The
// hosted product backs this with its own federated identity provider;
// locally there is no such provider to federate with, so this module
// signs tokens with a locally held RSA key and documents the token as
// locally-verifiable only (DESIGN.md, "OIDC signing key lifetime").
// go-jose/v4 is used rather than a hand-rolled JWT encoder — it
// appears as a dependency across the example pack (felixgeelhaar-specular,
// tektoncd-pipeline, grewanderer-animus-golang) even though none of
// those repos exercise it directly; this is the first concrete use of
// it end to end.
package oidc

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// TokenTTL is how long an issued token remains valid. The hosted
// product documents its OIDC tokens as valid for the lifetime of the
// step; this module instead pins a fixed conservative window since a
// local run has no step-boundary notification channel to revoke early.
const TokenTTL = 10 * time.Minute

// Claims is the subset of the hosted product's OIDC claim set this
// module can populate without a real identity federation backend
// (spec.md §6 names BITBUCKET_STEP_OIDC_TOKEN as an env var; it does
// not mandate a specific claim set, so this follows the original
// implementation's claim naming).
type Claims struct {
	Issuer         string `json:"iss"`
	Subject        string `json:"sub"`
	Audience       string `json:"aud"`
	WorkspaceUUID  string `json:"workspaceUuid"`
	RepositoryUUID string `json:"repositoryUuid"`
	PipelineUUID   string `json:"pipelineUuid"`
	StepUUID       string `json:"stepUuid"`
	jwt.Claims
}

// Signer issues OIDC tokens using a held RSA private key.
type Signer struct {
	key    *rsa.PrivateKey
	issuer string
}

// NewSigner creates a Signer. issuer is embedded as the "iss" claim
// and would, on the hosted product, identify the workspace's OIDC
// discovery document URL.
func NewSigner(key *rsa.PrivateKey, issuer string) *Signer {
	return &Signer{key: key, issuer: issuer}
}

// IssueOptions names the run/step identity baked into an issued
// token's claims.
type IssueOptions struct {
	RepositorySlug string
	PipelineUUID   string
	StepID         string
	Audience       string
}

// Issue signs and serializes a token for one step.
func (s *Signer) Issue(opts IssueOptions) (string, error) {
	signerKey := jose.SigningKey{Algorithm: jose.RS256, Key: s.key}
	joseSigner, err := jose.NewSigner(signerKey, &jose.SignerOptions{})
	if err != nil {
		return "", fmt.Errorf("constructing oidc signer: %w", err)
	}

	now := time.Now()
	claims := Claims{
		Issuer:         s.issuer,
		Subject:        fmt.Sprintf("repository:%s:pipeline:%s", opts.RepositorySlug, opts.PipelineUUID),
		Audience:       opts.Audience,
		RepositoryUUID: opts.RepositorySlug,
		PipelineUUID:   opts.PipelineUUID,
		StepUUID:       opts.StepID,
		Claims: jwt.Claims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(TokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.Signed(joseSigner).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("serializing oidc token: %w", err)
	}
	return token, nil
}
