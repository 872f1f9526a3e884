package security

import (
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"sort"

	"github.com/golang-jwt/jwt/v5"
)

// JSONWebKey is the public half of a signing key in RFC 7517 form.
type JSONWebKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JSONWebKeySet lists the keys tokens may be verified with.
type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// BuildJWKS renders the verification keys of provider, ordered by kid.
func BuildJWKS(provider KeyProvider) JSONWebKeySet {
	public := provider.PublicKeys()
	kids := make([]string, 0, len(public))
	for kid := range public {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	set := JSONWebKeySet{Keys: make([]JSONWebKey, 0, len(kids))}
	for _, kid := range kids {
		set.Keys = append(set.Keys, toJWK(kid, public[kid]))
	}
	return set
}

func toJWK(kid string, key *rsa.PublicKey) JSONWebKey {
	return JSONWebKey{
		Kty: "RSA",
		Use: "sig",
		Alg: jwt.SigningMethodRS256.Alg(),
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
