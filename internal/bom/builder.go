// Package bom assembles CycloneDX documents from ingest results.
package bom

import (
	"io"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"
)

var version string

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		version = "unknown"
	} else {
		version = info.Main.Version
	}
}

// Builder collects the parts of a CycloneDX BOM. It is safe for concurrent
// use. Components with a BOMRef are stored once, the first one wins.
type Builder struct {
	mu           sync.Mutex
	authors      []cdx.OrganizationalContact
	components   []cdx.Component
	refs         map[string]struct{}
	dependencies map[string][]string
	properties   []cdx.Property
}

func NewBuilder() *Builder {
	return &Builder{
		refs:         make(map[string]struct{}),
		dependencies: make(map[string][]string),
	}
}

func (b *Builder) AppendAuthors(authors ...cdx.OrganizationalContact) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authors = append(b.authors, authors...)
	return b
}

func (b *Builder) AppendComponents(components ...cdx.Component) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range components {
		if c.BOMRef != "" {
			if _, ok := b.refs[c.BOMRef]; ok {
				continue
			}
			b.refs[c.BOMRef] = struct{}{}
		}
		b.components = append(b.components, c)
	}
	return b
}

func (b *Builder) AppendProperties(properties ...cdx.Property) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.properties = append(b.properties, properties...)
	return b
}

// AppendDependencies records that ref depends on each of on. Duplicates
// are dropped.
func (b *Builder) AppendDependencies(ref string, on ...string) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	deps := b.dependencies[ref]
	for _, o := range on {
		if !slices.Contains(deps, o) {
			deps = append(deps, o)
		}
	}
	b.dependencies[ref] = deps
	return b
}

// Len returns the number of components.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.components)
}

// BOM returns a snapshot of the collected data as a cdx.BOM. Components
// are ordered by BOMRef.
func (b *Builder) BOM() cdx.BOM {
	b.mu.Lock()
	// those MUST be initialized as cyclone-dx JSON schema do not allow items to be null
	authors := append([]cdx.OrganizationalContact{}, b.authors...)
	components := append([]cdx.Component{}, b.components...)
	properties := append([]cdx.Property{}, b.properties...)
	dependencies := make([]cdx.Dependency, 0, len(b.dependencies))
	for ref, on := range b.dependencies {
		on := slices.Clone(on)
		dependencies = append(dependencies, cdx.Dependency{Ref: ref, Dependencies: &on})
	}
	b.mu.Unlock()

	slices.SortStableFunc(components, func(x, y cdx.Component) int {
		return strings.Compare(x.BOMRef, y.BOMRef)
	})
	slices.SortFunc(dependencies, func(x, y cdx.Dependency) int {
		return strings.Compare(x.Ref, y.Ref)
	})

	return cdx.BOM{
		JSONSchema:   "https://cyclonedx.org/schema/bom-1.6.schema.json",
		BOMFormat:    "CycloneDX",
		SpecVersion:  cdx.SpecVersion1_6,
		SerialNumber: "urn:uuid:" + uuid.New().String(),
		Version:      1,
		Metadata: &cdx.Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Lifecycles: &[]cdx.Lifecycle{
				{
					Phase: "operations",
				},
			},
			Authors: &authors,
			// This can't be not nil otherwise this error will happen
			// json: error calling MarshalJSON for type *cyclonedx.ToolsChoice: unexpected end of JSON input
			Component: &cdx.Component{
				Type:    cdx.ComponentTypeApplication,
				Name:    "Ingestor",
				Version: version,
				Manufacturer: &cdx.OrganizationalEntity{
					Name:    "CZERTAINLY",
					Address: &cdx.PostalAddress{},
					URL: &[]string{
						"https://www.czertainly.com",
					},
				},
			},
		},
		Components:   &components,
		Dependencies: &dependencies,
		Properties:   &properties,
	}
}

// AsJSON encode the BOM into JSON format
func (b *Builder) AsJSON(w io.Writer) error {
	bom := b.BOM()
	return cdx.NewBOMEncoder(w, cdx.BOMFileFormatJSON).SetPretty(true).Encode(&bom)
}
