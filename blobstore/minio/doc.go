// Package minio implements blobstore.Store for MinIO and other
// S3-compatible object storage.
//
// Useful for self-hosted deployments where index artifacts are published
// to an on-prem object store instead of AWS.
//
// Example:
//
//	client, err := minio.New("minio.example.com:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
//	    Secure: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := miniostore.NewStore(client, "indexes", "products/")
package minio
