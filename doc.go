// Package canopy provides an embeddable approximate nearest neighbor index
// for dense embedding vectors, built as a forest of randomized partition
// trees.
//
// Canopy targets the offline-build / online-serve lifecycle of
// reverse-image product search: a catalog of image embeddings is indexed
// once on a setup machine, persisted as a single self-describing artifact,
// and memory mapped by serving processes that answer many queries against
// the immutable index.
//
//   - Forest of randomized hyperplane partition trees (angular,
//     euclidean, or dot product metric)
//   - Deterministic builds: same items, configuration, and seed produce
//     byte-identical artifacts regardless of concurrency
//   - Single-file binary artifact with CRC32 integrity checking,
//     memory mapped zero-copy at load
//   - Exact re-rank of gathered candidates, so reported distances are
//     true distances
//   - Artifact distribution via pluggable blob stores (local, S3, MinIO)
//     with compressed uploads and an atomic CURRENT release pointer
//
// # Building an index
//
//	items := make([]canopy.Item, 0, len(catalog))
//	for _, p := range catalog {
//	    items = append(items, canopy.Item{ID: p.Handle, Vector: p.Embedding})
//	}
//
//	db, err := canopy.NewBuilder(4096).
//	    Angular().
//	    Trees(100).
//	    Build(ctx, items)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Save(ctx, "catalog.cny"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Serving queries
//
//	db, err := canopy.Open(ctx, "catalog.cny")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	results, err := db.Search(queryEmbedding).
//	    KNN(10).
//	    Execute(ctx)
//
// # Publishing to a serving fleet
//
//	store, _ := blobstore.NewLocalStore("/mnt/shared/indexes")
//	release, err := db.Publish(ctx, store, "products")
//
//	// On the serving machine:
//	db, release, err := canopy.Fetch(ctx, store, "/var/cache/canopy")
//
// Search quality is tuned per query with Effort, the number of distinct
// candidates gathered before the exact re-rank. The default of k times the
// forest size is a good starting point; raise it when recall matters more
// than latency.
package canopy
