package modules

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/asn1"
	"time"

	"github.com/smallstep/pkcs7"
)

const pkcs7ParseTimeout = 2 * time.Second

// OID prefix 1.2.840.113549.1.7, the PKCS#7 ContentInfo content types
var oidPKCS7 = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7}

// the DER encoding of oidPKCS7
var oidPKCS7DER = []byte{0x06, 0x09, 0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D, 0x01, 0x07}

// sniffPKCS7 reports whether b looks like a DER ContentInfo of a PKCS#7
// content type.
func sniffPKCS7(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	if bytes.Contains(b[:min(len(b), 2048)], oidPKCS7DER) {
		return true
	}

	var top asn1.RawValue
	if _, err := asn1.Unmarshal(b, &top); err != nil {
		return false
	}
	var ci struct {
		ContentType asn1.ObjectIdentifier
		Content     asn1.RawValue `asn1:"tag:0,explicit,optional"`
	}
	if _, err := asn1.Unmarshal(top.Bytes, &ci); err != nil {
		return false
	}
	return len(ci.ContentType) > len(oidPKCS7) && ci.ContentType[:len(oidPKCS7)].Equal(oidPKCS7)
}

// parsePKCS7 returns the certificates of a PKCS#7 bundle. The parser runs
// in its own goroutine bounded by a timeout and recovers from panics on
// malformed input. Unless permissive, b must pass sniffPKCS7 first.
func parsePKCS7(ctx context.Context, b []byte, permissive bool) []*x509.Certificate {
	if !permissive && !sniffPKCS7(b) {
		return nil
	}

	ch := make(chan []*x509.Certificate, 1)
	ctx, cancel := context.WithTimeout(ctx, pkcs7ParseTimeout)
	defer cancel()

	go func() {
		var certs []*x509.Certificate
		defer func() {
			_ = recover()
			ch <- certs
		}()
		p7, err := pkcs7.Parse(b)
		if err != nil {
			return
		}
		certs = p7.Certificates
	}()

	select {
	case <-ctx.Done():
		return nil
	case certs := <-ch:
		return certs
	}
}
