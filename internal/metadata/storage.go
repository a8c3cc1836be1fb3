// Package metadata keeps a node's descriptor record inside its libvirt
// domain, so the inventory can be rebuilt from libvirt alone.
package metadata

import (
	"encoding/xml"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/k93s/internal/fleet"
)

const (
	// Namespace is the XML namespace of the k93s metadata element.
	Namespace = "https://github.com/jbweber/k93s/xmlns/record/v1"

	// Key is the element prefix libvirt writes the metadata under.
	Key = "k93s"
)

// LibvirtClient is the subset of *libvirt.Libvirt used here.
type LibvirtClient interface {
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)
}

// Element is the XML stored in the domain. The record is kept as YAML text
// so `virsh dumpxml` stays readable.
type Element struct {
	XMLName    xml.Name `xml:"record"`
	Xmlns      string   `xml:"xmlns,attr"`
	RecordYAML string   `xml:",chardata"`
}

// Store saves rec in the domain's metadata, replacing any earlier record.
func Store(l LibvirtClient, domain libvirt.Domain, rec fleet.Record) error {
	if rec.Name == "" {
		return fmt.Errorf("record has no name")
	}

	yamlData, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record to YAML: %w", err)
	}

	xmlData, err := xml.Marshal(Element{
		Xmlns:      Namespace,
		RecordYAML: string(yamlData),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}

	err = l.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{string(xmlData)},
		libvirt.OptString{Key},
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return fmt.Errorf("failed to set libvirt domain metadata: %w", err)
	}

	return nil
}

// Load reads the record stored by Store.
func Load(l LibvirtClient, domain libvirt.Domain) (*fleet.Record, error) {
	xmlStr, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get libvirt domain metadata: %w", err)
	}

	var elem Element
	if err := xml.Unmarshal([]byte(xmlStr), &elem); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}

	var rec fleet.Record
	if err := yaml.Unmarshal([]byte(elem.RecordYAML), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record from YAML: %w", err)
	}
	if rec.Name == "" {
		return nil, fmt.Errorf("metadata holds no record")
	}

	return &rec, nil
}

// Exists reports whether the domain carries k93s metadata.
func Exists(l LibvirtClient, domain libvirt.Domain) bool {
	_, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(0),
	)
	return err == nil
}
