// Package classify builds named age and size views over a file inventory.
package classify

import (
	"sort"
	"time"

	"github.com/fenilsonani/treeaudit/internal/scanner"
)

// Kind distinguishes age buckets from size buckets
type Kind string

const (
	KindAge  Kind = "age"
	KindSize Kind = "size"
)

// AgeThreshold names a minimum file age
type AgeThreshold struct {
	Name string        `json:"name" yaml:"name"`
	Age  time.Duration `json:"age" yaml:"age"`
}

// SizeThreshold names a minimum file size in bytes
type SizeThreshold struct {
	Name string `json:"name" yaml:"name"`
	Size int64  `json:"size" yaml:"size"`
}

// Bucket holds every record that strictly exceeds Threshold. Threshold is
// nanoseconds for age buckets and bytes for size buckets. A record may
// belong to several buckets of the same kind.
type Bucket struct {
	Name       string               `json:"name" yaml:"name"`
	Kind       Kind                 `json:"kind" yaml:"kind"`
	Threshold  int64                `json:"threshold" yaml:"threshold"`
	Files      []scanner.FileRecord `json:"files" yaml:"files"`
	Count      int                  `json:"count" yaml:"count"`
	TotalBytes int64                `json:"total_bytes" yaml:"total_bytes"`
}

// Age returns the threshold of an age bucket as a duration
func (b Bucket) Age() time.Duration {
	return time.Duration(b.Threshold)
}

// Result holds both bucket families, each ordered largest threshold first
type Result struct {
	AgeBuckets  []Bucket `json:"age_buckets" yaml:"age_buckets"`
	SizeBuckets []Bucket `json:"size_buckets" yaml:"size_buckets"`
}

// Classify computes one bucket per threshold. now fixes the reference time
// for ages so results are reproducible.
func Classify(records []scanner.FileRecord, ages []AgeThreshold, sizes []SizeThreshold, now time.Time) Result {
	return Result{
		AgeBuckets:  ByAge(records, ages, now),
		SizeBuckets: BySize(records, sizes),
	}
}

// ByAge returns the age buckets, oldest threshold first
func ByAge(records []scanner.FileRecord, thresholds []AgeThreshold, now time.Time) []Bucket {
	buckets := make([]Bucket, 0, len(thresholds))
	for _, th := range thresholds {
		b := Bucket{Name: th.Name, Kind: KindAge, Threshold: int64(th.Age)}
		for _, rec := range records {
			if now.Sub(rec.ModTime) > th.Age {
				b.add(rec)
			}
		}
		buckets = append(buckets, b)
	}
	sortBuckets(buckets)
	return buckets
}

// BySize returns the size buckets, largest threshold first
func BySize(records []scanner.FileRecord, thresholds []SizeThreshold) []Bucket {
	buckets := make([]Bucket, 0, len(thresholds))
	for _, th := range thresholds {
		b := Bucket{Name: th.Name, Kind: KindSize, Threshold: th.Size}
		for _, rec := range records {
			if rec.Size > th.Size {
				b.add(rec)
			}
		}
		buckets = append(buckets, b)
	}
	sortBuckets(buckets)
	return buckets
}

func (b *Bucket) add(rec scanner.FileRecord) {
	b.Files = append(b.Files, rec)
	b.Count++
	b.TotalBytes += rec.Size
}

// sortBuckets orders by descending threshold; equal thresholds keep name order.
func sortBuckets(buckets []Bucket) {
	sort.SliceStable(buckets, func(i, j int) bool {
		if buckets[i].Threshold != buckets[j].Threshold {
			return buckets[i].Threshold > buckets[j].Threshold
		}
		return buckets[i].Name < buckets[j].Name
	})
}

// Find returns the bucket with the given name
func Find(buckets []Bucket, name string) (Bucket, bool) {
	for _, b := range buckets {
		if b.Name == name {
			return b, true
		}
	}
	return Bucket{}, false
}
