// Package storage implements content-addressed document storage for the
// certification workflow: equipment registration documents, CAB details,
// test reports and audit reports.
//
// The engine itself records only opaque content hashes; this package serves
// the upload/fetch boundary used by dashboards and CABs. Backends are
// created from location URIs by the factory:
//
//   - file:///var/lib/certeq/docs/ - local filesystem
//   - ipfs://127.0.0.1:5001/?timeout=30s - IPFS node or gateway
//   - s3://bucket/prefix/?region=us-east-1 - Amazon S3 or compatible
//   - vault://vault.example.com:8200/secret/certeq?token=... - HashiCorp Vault KV v2
//
// Multiple URIs aggregate into a multi-backend that stores to every
// available backend and fetches from the first one that has the content.
package storage
