package models

import (
	"errors"
	"testing"
)

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload(`{"type":"domain-login","xExtensionAuthOne":"tok","targetId":42,"isNew":true}`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.Type() != "domain-login" || p.AuthToken() != "tok" {
		t.Fatalf("unexpected type/token: %q %q", p.Type(), p.AuthToken())
	}
	if p.String("targetId") != "42" || p.String("isNew") != "true" {
		t.Fatalf("scalar rendering failed: %q %q", p.String("targetId"), p.String("isNew"))
	}
	rest := p.Without(FieldAuthToken)
	if _, ok := rest[FieldAuthToken]; ok {
		t.Fatal("auth token should be removed")
	}
	if _, ok := p[FieldAuthToken]; !ok {
		t.Fatal("Without must not mutate the payload")
	}
}

func TestParsePayloadRejects(t *testing.T) {
	cases := map[string]error{
		"":                     ErrPayloadEmpty,
		"   ":                  ErrPayloadEmpty,
		"not json":             ErrPayloadNotJSON,
		"[1,2]":                ErrPayloadNotJSON,
		"null":                 ErrPayloadNotJSON,
		`{"type":"a"} {"x":1}`: ErrPayloadNotJSON,
		`{"domain":"x"}`:       ErrPayloadNoType,
		`{"type":7}`:           nil,
		`{"type":"  "}`:        ErrPayloadNoType,
	}
	for raw, want := range cases {
		_, err := ParsePayload(raw)
		if want == nil {
			if err != nil {
				t.Fatalf("%q: unexpected error %v", raw, err)
			}
			continue
		}
		if !errors.Is(err, want) {
			t.Fatalf("%q: got %v want %v", raw, err, want)
		}
	}
}

func TestNormalizeType(t *testing.T) {
	cases := map[string]string{
		"domain-login":        "domainLogin",
		"DOMAIN_LOGIN":        "domainLogin",
		"domainLogin":         "domainLogin",
		"update-applications": "updateApplications",
		"clone":               "clone",
		"CLONE":               "clone",
		"SystemHubLogin":      "systemHubLogin",
		" delete_domain ":     "deleteDomain",
		"--":                  "",
		"":                    "",
	}
	for in, want := range cases {
		if got := NormalizeType(in); got != want {
			t.Fatalf("NormalizeType(%q) = %q, want %q", in, got, want)
		}
	}
}
