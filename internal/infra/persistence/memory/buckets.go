package memory

import (
	"encoding/json"
	"fmt"
)

// Buckets lists the snapshot sections persisted by durable stores, in write order.
var Buckets = []string{"agencies", "offices", "requesters", "requests", "documents", "import_logs"}

func (s *Snapshot) bucketTarget(bucket string) any {
	switch bucket {
	case "agencies":
		return &s.Agencies
	case "offices":
		return &s.Offices
	case "requesters":
		return &s.Requesters
	case "requests":
		return &s.Requests
	case "documents":
		return &s.Documents
	case "import_logs":
		return &s.ImportLogs
	}
	return nil
}

// EncodeBucket marshals one snapshot section to JSON.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	target := s.bucketTarget(bucket)
	if target == nil {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	return json.Marshal(target)
}

// DecodeBucket populates one snapshot section from JSON. Unknown buckets are
// ignored so that older databases with retired sections still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	target := s.bucketTarget(bucket)
	if target == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
