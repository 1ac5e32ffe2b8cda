// Package s3 provides S3-backed snapshot storage.
//
// Store implements blobstore.BlobStore directly on a bucket. CommitStore
// layers a DynamoDB commit pointer on top so writers can publish
// snapshot generations with compare-and-swap semantics:
//
//	store := s3.NewStore(client, "my-bucket", "oriondb/")
//	commits := s3.NewCommitStore(store, ddbClient, "oriondb-commits", "prod-db")
//
//	name, err := commits.Publish(ctx, version, snapshotBytes)
//
// Readers follow the pointer:
//
//	blob, err := commits.OpenCurrent(ctx)
package s3
