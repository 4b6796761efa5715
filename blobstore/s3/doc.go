// Package s3 implements blobstore.Store for Amazon S3.
//
// Store covers plain artifact storage with range reads and managed
// uploads. ReleaseStore layers DynamoDB conditional writes on top to give
// the CURRENT release pointer the compare-and-swap semantics S3 lacks, so
// concurrent publishers cannot clobber each other.
package s3
