package s3

import "time"

// Object is one listed key. Only the fields the record store reads are kept.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ListObjectsResult is one page of a listing; NextToken is empty on the last page.
type ListObjectsResult struct {
	Objects   []Object
	NextToken string
}
