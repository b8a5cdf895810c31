package modules

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"log/slog"
	"path"
	"time"

	"github.com/CZERTAINLY/Ingestor/internal/ingest"
	"github.com/CZERTAINLY/Ingestor/internal/model"
)

const (
	ArtifactCertificate = "certificate"
	maxCertificateFile  = 4 << 20
)

// certificate artifact attributes
const (
	AttrSubject            = "subject"
	AttrIssuer             = "issuer"
	AttrSerial             = "serial"
	AttrNotBefore          = "not_before"
	AttrNotAfter           = "not_after"
	AttrSignatureAlgorithm = "signature_algorithm_ref"
	AttrPublicKey          = "public_key_ref"
	AttrSourceFormat       = "source_format"
	AttrFingerprint        = "sha256_fingerprint"
	AttrContent            = "base64_content"
	AttrPath               = "path"
)

type certificatesFactory struct {
	factory
}

func (certificatesFactory) NewFileModule() (ingest.FileModule, error) {
	return &certificates{}, nil
}

// certificates finds X.509 certificates in PEM, DER and PKCS#7 files and
// posts one artifact per certificate.
type certificates struct {
	base
}

type certHit struct {
	cert   *x509.Certificate
	source string
}

func (m *certificates) Process(ctx context.Context, f *ingest.File) error {
	if f.Size > maxCertificateFile {
		return nil
	}
	b, err := readAll(ctx, m.jc, f, maxCertificateFile)
	switch {
	case errors.Is(err, model.ErrTooBig):
		return nil
	case err != nil:
		return err
	}

	hits, err := detectCertificates(ctx, b)
	if errors.Is(err, model.ErrNoMatch) {
		return nil
	}

	seen := make(map[string]struct{}, len(hits))
	artifacts := make([]ingest.DataArtifact, 0, len(hits))
	for _, h := range hits {
		sum := sha256.Sum256(h.cert.Raw)
		fp := hex.EncodeToString(sum[:])
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		artifacts = append(artifacts, ingest.DataArtifact{
			FileID: f.ID,
			Type:   ArtifactCertificate,
			Attributes: map[string]string{
				AttrSubject:            h.cert.Subject.String(),
				AttrIssuer:             h.cert.Issuer.String(),
				AttrSerial:             h.cert.SerialNumber.String(),
				AttrNotBefore:          h.cert.NotBefore.UTC().Format(time.RFC3339),
				AttrNotAfter:           h.cert.NotAfter.UTC().Format(time.RFC3339),
				AttrSignatureAlgorithm: signatureAlgorithmRef(ctx, h.cert),
				AttrPublicKey:          publicKeyRef(ctx, h.cert),
				AttrSourceFormat:       h.source,
				AttrFingerprint:        fp,
				AttrContent:            base64.StdEncoding.EncodeToString(h.cert.Raw),
				AttrPath:               f.Path,
			},
		})
	}
	slog.DebugContext(ctx, "certificates found", "count", len(artifacts), "ext", path.Ext(f.Path))
	_, err = m.jc.PostArtifacts(ctx, artifacts...)
	return err
}

// detectCertificates returns every certificate in b, or model.ErrNoMatch.
// PEM blocks are searched anywhere in b so leading text is tolerated.
func detectCertificates(ctx context.Context, b []byte) ([]certHit, error) {
	var out []certHit
	appendAll := func(certs []*x509.Certificate, source string) {
		for _, c := range certs {
			if c != nil {
				out = append(out, certHit{cert: c, source: source})
			}
		}
	}

	rest := b
	for {
		p, r := pem.Decode(rest)
		if p == nil {
			break
		}
		switch p.Type {
		case "CERTIFICATE", "TRUSTED CERTIFICATE":
			if certs, err := x509.ParseCertificates(p.Bytes); err == nil {
				appendAll(certs, "PEM")
			}
		case "PKCS7", "CMS":
			appendAll(parsePKCS7(ctx, p.Bytes, true), "PKCS7-PEM")
		}
		rest = r
	}
	if len(out) > 0 {
		return out, nil
	}

	if certs, err := x509.ParseCertificates(b); err == nil {
		appendAll(certs, "DER")
	} else {
		appendAll(parsePKCS7(ctx, b, false), "PKCS7-DER")
	}
	if len(out) == 0 {
		return nil, model.ErrNoMatch
	}
	return out, nil
}
