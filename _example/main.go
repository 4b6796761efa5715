package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hupe1980/canopy"
	"github.com/hupe1980/canopy/testutil"
)

func main() {
	ctx := context.Background()

	seed := int64(4711)
	dim := 32
	size := 50000
	k := 10

	rng := testutil.NewRNG(seed)
	vectors := rng.UniformVectors(size, dim)

	items := make([]canopy.Item, size)
	for i, v := range vectors {
		items[i] = canopy.Item{
			ID:     fmt.Sprintf("item-%06d", i),
			Vector: v,
		}
	}

	query := make([]float32, dim)
	rng.FillUniform(query)

	fmt.Println("--- Build ---")
	fmt.Println("Dimension:", dim)
	fmt.Println("Size:", size)

	start := time.Now()

	db, err := canopy.NewBuilder(dim).
		Euclidean().
		Trees(20).
		Seed(seed).
		Build(ctx, items)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	fmt.Printf("Seconds: %.2f\n\n", time.Since(start).Seconds())

	fmt.Println("--- KNN ---")

	start = time.Now()

	results, err := db.Search(query).
		KNN(k).
		Effort(500).
		Execute(ctx)
	if err != nil {
		log.Fatal(err)
	}

	elapsed := time.Since(start)

	printResults(results)
	fmt.Printf("Seconds: %.8f\n\n", elapsed.Seconds())

	fmt.Println("--- Exhaustive ---")

	start = time.Now()

	exhaustive, err := db.Search(query).
		KNN(k).
		Effort(size).
		Execute(ctx)
	if err != nil {
		log.Fatal(err)
	}

	elapsed = time.Since(start)

	printResults(exhaustive)
	fmt.Printf("Seconds: %.8f\n\n", elapsed.Seconds())

	exact := make([]uint32, len(exhaustive))
	for i, r := range exhaustive {
		exact[i] = r.Index
	}
	got := make([]uint32, len(results))
	for i, r := range results {
		got[i] = r.Index
	}

	matched := 0
	for _, g := range got {
		for _, e := range exact {
			if g == e {
				matched++
				break
			}
		}
	}
	fmt.Printf("Recall@%d: %.2f\n", k, float64(matched)/float64(len(exact)))
}

func printResults(results []canopy.Result) {
	for _, r := range results {
		fmt.Printf("ID: %s, Distance: %.4f\n", r.ID, r.Distance)
	}
}
