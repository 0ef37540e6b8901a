package route53

// ARecord is an A record set with its first value.
type ARecord struct {
	Name  string // fully qualified, with trailing dot
	Value string
	TTL   int64
}

// ChangeInfo reports the status of a submitted change batch.
type ChangeInfo struct {
	ID     string
	Status string // PENDING or INSYNC
}
