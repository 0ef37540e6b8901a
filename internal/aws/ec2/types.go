package ec2

// SecurityGroup is a security group with its IPv4 ingress rules.
type SecurityGroup struct {
	GroupID string
	Name    string
	VPCID   string
	Ingress []IngressRule
}

// IngressRule is one ingress permission: a protocol/port range and the IPv4
// CIDRs it authorizes. Ports are -1 when the protocol carries none.
type IngressRule struct {
	Protocol string
	FromPort int
	ToPort   int
	CIDRs    []string
}
