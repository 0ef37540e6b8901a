// Package policy parses the access policy document and builds the desired
// ingress permissions of each security group.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidDocument is returned when the policy document cannot be decoded.
var ErrInvalidDocument = errors.New("policy: invalid document")

// Document is the decoded policy.
type Document struct {
	SecurityGroups map[string]GroupDef `json:"security_groups"`
	Hosts          []HostRule          `json:"hosts"`
}

// GroupDef declares a security group. A group with no ports covers all of
// TCP, UDP and ICMP.
type GroupDef struct {
	Ports []PortDef `json:"ports"`
}

type PortDef struct {
	Port       int    `json:"port"`
	LastPort   *int   `json:"last_port,omitempty"`
	IPProtocol string `json:"ip_protocol,omitempty"`
}

// Range returns the port range the definition declares.
func (p PortDef) Range() PortRange {
	r := PortRange{Begin: p.Port, End: p.Port, Protocol: "tcp"}
	if p.LastPort != nil {
		r.End = *p.LastPort
	}
	if p.IPProtocol != "" {
		r.Protocol = strings.ToLower(p.IPProtocol)
	}
	return r
}

// HostRule grants a host pattern or a static address access to groups.
type HostRule struct {
	Host   string   `json:"host,omitempty"`
	IP     string   `json:"ip,omitempty"`
	Groups []string `json:"groups"`
}

// Validate reports whether the rule names an address source and at least
// one group.
func (r HostRule) Validate() error {
	if r.Host == "" && r.IP == "" {
		return errors.New("rule has neither host nor ip")
	}
	if len(r.Groups) == 0 {
		return errors.New("rule has no groups")
	}
	return nil
}

func (r HostRule) String() string {
	return fmt.Sprintf("host=%q ip=%q groups=%v", r.Host, r.IP, r.Groups)
}

// StripComments removes everything from '#' to the end of each line.
func StripComments(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		if j := bytes.IndexByte(line, '#'); j >= 0 {
			lines[i] = line[:j]
		}
	}
	return bytes.Join(lines, []byte("\n"))
}

// Parse decodes a commented JSON policy document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(StripComments(data), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc.SecurityGroups == nil {
		return nil, fmt.Errorf("%w: missing security_groups", ErrInvalidDocument)
	}
	return &doc, nil
}

// Source loads the raw policy document.
type Source interface {
	Load(ctx context.Context) ([]byte, error)
}

// ObjectGetter is the subset of the S3 client a Source needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// S3Source reads the document from one S3 object.
type S3Source struct {
	Client ObjectGetter
	Bucket string
	Key    string
}

func (s S3Source) Load(ctx context.Context) ([]byte, error) {
	return s.Client.GetObject(ctx, s.Bucket, s.Key)
}

// FileSource reads the document from the local filesystem.
type FileSource string

func (f FileSource) Load(ctx context.Context) ([]byte, error) {
	return os.ReadFile(string(f))
}

// NewSource interprets location as "file:<path>" or "<bucket>/<key>".
func NewSource(location string, client ObjectGetter) (Source, error) {
	if path, ok := strings.CutPrefix(location, "file:"); ok {
		return FileSource(path), nil
	}
	bucket, key, ok := strings.Cut(location, "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("policy: location %q is not <bucket>/<key> or file:<path>", location)
	}
	if client == nil {
		return nil, errors.New("policy: no S3 client for " + location)
	}
	return S3Source{Client: client, Bucket: bucket, Key: key}, nil
}

// Load reads and parses the document from src.
func Load(ctx context.Context, src Source) (*Document, error) {
	data, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: loading: %w", err)
	}
	return Parse(data)
}
