package modules

import (
	"context"
	"crypto/dsa" //nolint:staticcheck // obsolete crypto is still inventoried
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"log/slog"
)

const unknownAlgorithmRef = "crypto/algorithm/unknown@unknown"

var signatureAlgorithmRefs = map[x509.SignatureAlgorithm]string{
	x509.MD5WithRSA:       "crypto/algorithm/md5-rsa@1.2.840.113549.1.1.4",
	x509.SHA1WithRSA:      "crypto/algorithm/sha-1-rsa@1.2.840.113549.1.1.5",
	x509.SHA256WithRSA:    "crypto/algorithm/sha-256-rsa@1.2.840.113549.1.1.11",
	x509.SHA384WithRSA:    "crypto/algorithm/sha-384-rsa@1.2.840.113549.1.1.12",
	x509.SHA512WithRSA:    "crypto/algorithm/sha-512-rsa@1.2.840.113549.1.1.13",
	x509.DSAWithSHA1:      "crypto/algorithm/sha-1-dsa@1.2.840.10040.4.3",
	x509.DSAWithSHA256:    "crypto/algorithm/sha-256-dsa@2.16.840.1.101.3.4.3.2",
	x509.ECDSAWithSHA1:    "crypto/algorithm/sha-1-ecdsa@1.2.840.10045.4.1",
	x509.ECDSAWithSHA256:  "crypto/algorithm/sha-256-ecdsa@1.2.840.10045.4.3.2",
	x509.ECDSAWithSHA384:  "crypto/algorithm/sha-384-ecdsa@1.2.840.10045.4.3.3",
	x509.ECDSAWithSHA512:  "crypto/algorithm/sha-512-ecdsa@1.2.840.10045.4.3.4",
	x509.SHA256WithRSAPSS: "crypto/algorithm/rsassa-pss@1.2.840.113549.1.1.10",
	x509.SHA384WithRSAPSS: "crypto/algorithm/rsassa-pss@1.2.840.113549.1.1.10",
	x509.SHA512WithRSAPSS: "crypto/algorithm/rsassa-pss@1.2.840.113549.1.1.10",
	x509.PureEd25519:      "crypto/algorithm/ed25519@1.3.101.112",
}

// post-quantum and hash based algorithms unknown to crypto/x509, by OID
var pqcAlgorithms = map[string]string{
	"2.16.840.1.101.3.4.3.17":    "ml-dsa-44",
	"2.16.840.1.101.3.4.3.18":    "ml-dsa-65",
	"2.16.840.1.101.3.4.3.19":    "ml-dsa-87",
	"2.16.840.1.101.3.4.3.20":    "slh-dsa-sha2-128s",
	"2.16.840.1.101.3.4.3.21":    "slh-dsa-sha2-128f",
	"2.16.840.1.101.3.4.3.22":    "slh-dsa-sha2-192s",
	"2.16.840.1.101.3.4.3.23":    "slh-dsa-sha2-192f",
	"2.16.840.1.101.3.4.3.24":    "slh-dsa-sha2-256s",
	"2.16.840.1.101.3.4.3.25":    "slh-dsa-sha2-256f",
	"2.16.840.1.101.3.4.3.26":    "slh-dsa-shake-128s",
	"2.16.840.1.101.3.4.3.27":    "slh-dsa-shake-128f",
	"2.16.840.1.101.3.4.3.28":    "slh-dsa-shake-192s",
	"2.16.840.1.101.3.4.3.29":    "slh-dsa-shake-192f",
	"2.16.840.1.101.3.4.3.30":    "slh-dsa-shake-256s",
	"2.16.840.1.101.3.4.3.31":    "slh-dsa-shake-256f",
	"2.16.840.1.101.3.4.4.1":     "ml-kem-512",
	"2.16.840.1.101.3.4.4.2":     "ml-kem-768",
	"2.16.840.1.101.3.4.4.3":     "ml-kem-1024",
	"1.2.840.113549.1.9.16.3.17": "hss-lms-hashsig",
	"1.3.6.1.5.5.7.6.34":         "xmss-hashsig",
	"1.3.6.1.5.5.7.6.35":         "xmssmt-hashsig",
}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

func signatureAlgorithmRef(ctx context.Context, cert *x509.Certificate) string {
	if ref, ok := signatureAlgorithmRefs[cert.SignatureAlgorithm]; ok {
		return ref
	}

	var outer struct {
		TBSCert   asn1.RawValue
		SigAlg    algorithmIdentifier
		Signature asn1.BitString
	}
	if _, err := asn1.Unmarshal(cert.Raw, &outer); err != nil {
		slog.DebugContext(ctx, "Failed to unmarshal outer certificate", "error", err)
		return unknownAlgorithmRef
	}
	oid := outer.SigAlg.Algorithm.String()
	if name, ok := pqcAlgorithms[oid]; ok {
		return "crypto/algorithm/" + name + "@" + oid
	}
	slog.DebugContext(ctx, "Unknown signature algorithm OID", "oid", oid)
	return unknownAlgorithmRef
}

func publicKeyRef(ctx context.Context, cert *x509.Certificate) string {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("crypto/key/rsa-%d@1.2.840.113549.1.1.1", pub.N.BitLen())
	case *ecdsa.PublicKey:
		switch pub.Params().BitSize {
		case 256:
			return "crypto/key/ecdsa-p256@1.2.840.10045.3.1.7"
		case 384:
			return "crypto/key/ecdsa-p384@1.3.132.0.34"
		case 521:
			return "crypto/key/ecdsa-p521@1.3.132.0.35"
		default:
			return "crypto/key/ecdsa-unknown@1.2.840.10045.2.1"
		}
	case ed25519.PublicKey:
		return "crypto/key/ed25519-256@1.3.101.112"
	case *dsa.PublicKey:
		return fmt.Sprintf("crypto/key/dsa-%d@1.2.840.10040.4.1", pub.P.BitLen())
	}

	var info struct {
		Algorithm     algorithmIdentifier
		SubjectPubKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(cert.RawSubjectPublicKeyInfo, &info); err != nil {
		slog.DebugContext(ctx, "Failed to unmarshal SubjectPublicKeyInfo", "error", err)
		return "crypto/key/unknown@unknown"
	}
	oid := info.Algorithm.Algorithm.String()
	if name, ok := pqcAlgorithms[oid]; ok {
		return "crypto/key/" + name + "@" + oid
	}
	slog.DebugContext(ctx, "Unknown public key algorithm OID", "oid", oid)
	return "crypto/key/unknown@unknown"
}
