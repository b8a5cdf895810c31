package modules

import (
	"context"
	"path"
	"strings"

	"github.com/CZERTAINLY/Ingestor/internal/bom"
	"github.com/CZERTAINLY/Ingestor/internal/ingest"
	cdx "github.com/CycloneDX/cyclonedx-go"
)

// component properties
const (
	PropCertificateSourceFormat  = "czertainly:component:certificate:source_format"
	PropCertificateBase64Content = "czertainly:component:certificate:base64_content"
	PropDataSource               = "czertainly:ingest:data_source"
)

type cbomFactory struct {
	factory
	deps Deps
}

func (f cbomFactory) NewDataArtifactModule() (ingest.DataArtifactModule, error) {
	return &cbom{builder: f.deps.Builder}, nil
}

// cbom turns certificate artifacts into CycloneDX cryptographic asset
// components.
type cbom struct {
	base
	builder *bom.Builder
}

func (m *cbom) Process(_ context.Context, a ingest.DataArtifact) error {
	if a.Type != ArtifactCertificate {
		return nil
	}
	attr := a.Attributes
	ref := "crypto/certificate/" + attr[AttrFingerprint]
	sigRef := attr[AttrSignatureAlgorithm]
	keyRef := attr[AttrPublicKey]

	c := cdx.Component{
		BOMRef:  ref,
		Type:    cdx.ComponentTypeCryptographicAsset,
		Name:    attr[AttrSubject],
		Version: attr[AttrSerial],
		CryptoProperties: &cdx.CryptoProperties{
			AssetType: cdx.CryptoAssetTypeCertificate,
			CertificateProperties: &cdx.CertificateProperties{
				SubjectName:           attr[AttrSubject],
				IssuerName:            attr[AttrIssuer],
				NotValidBefore:        attr[AttrNotBefore],
				NotValidAfter:         attr[AttrNotAfter],
				SignatureAlgorithmRef: cdx.BOMReference(sigRef),
				SubjectPublicKeyRef:   cdx.BOMReference(keyRef),
				CertificateFormat:     "X.509",
				CertificateExtension:  strings.TrimPrefix(path.Ext(attr[AttrPath]), "."),
			},
		},
	}
	setComponentProp(&c, PropCertificateSourceFormat, attr[AttrSourceFormat])
	setComponentProp(&c, PropCertificateBase64Content, attr[AttrContent])
	setComponentProp(&c, PropDataSource, m.jc.DataSource().Name())
	addEvidenceLocation(&c, attr[AttrPath])

	m.builder.AppendComponents(c, algorithmComponent(sigRef, cdx.CryptoPrimitiveSignature), algorithmComponent(keyRef, ""))
	m.builder.AppendDependencies(ref, sigRef, keyRef)
	return nil
}

// algorithmComponent describes a crypto/algorithm/name@oid or
// crypto/key/name@oid reference.
func algorithmComponent(ref string, primitive cdx.CryptoPrimitive) cdx.Component {
	kind, rest, _ := strings.Cut(strings.TrimPrefix(ref, "crypto/"), "/")
	name, oid, _ := strings.Cut(rest, "@")
	c := cdx.Component{
		BOMRef: ref,
		Type:   cdx.ComponentTypeCryptographicAsset,
		Name:   name,
		CryptoProperties: &cdx.CryptoProperties{
			AssetType: cdx.CryptoAssetTypeAlgorithm,
			OID:       oid,
		},
	}
	if kind == "key" {
		c.CryptoProperties.AssetType = cdx.CryptoAssetTypeRelatedCryptoMaterial
		c.CryptoProperties.RelatedCryptoMaterialProperties = &cdx.RelatedCryptoMaterialProperties{
			Type: cdx.RelatedCryptoMaterialTypePublicKey,
		}
		return c
	}
	c.CryptoProperties.AlgorithmProperties = &cdx.CryptoAlgorithmProperties{Primitive: primitive}
	return c
}

// setComponentProp sets (or upserts) a component property. Empty values
// are skipped.
func setComponentProp(c *cdx.Component, name, value string) {
	if value == "" {
		return
	}
	if c.Properties == nil {
		c.Properties = &[]cdx.Property{}
	}
	props := *c.Properties
	for i := range props {
		if props[i].Name == name {
			props[i].Value = value
			return
		}
	}
	*c.Properties = append(props, cdx.Property{Name: name, Value: value})
}

func addEvidenceLocation(c *cdx.Component, loc string) {
	if loc == "" {
		return
	}
	if c.Evidence == nil {
		c.Evidence = &cdx.Evidence{}
	}
	var occs []cdx.EvidenceOccurrence
	if c.Evidence.Occurrences != nil {
		occs = *c.Evidence.Occurrences
	}
	occs = append(occs, cdx.EvidenceOccurrence{Location: loc})
	c.Evidence.Occurrences = &occs
}
