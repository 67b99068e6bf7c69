// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval_guard

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// EmbeddingMetadata records integrity attributes of a query embedding.
//
// The hash lets auditors correlate an event-log entry with the exact vector
// the search ran with; Anomalous marks vectors whose statistics fall outside
// the profile of genuine model output.
type EmbeddingMetadata struct {
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
	Anomalous bool   `json:"anomalous"`
}

// embeddingHash returns the hex SHA-256 of the vector's raw little-endian
// float bits.
func embeddingHash(vector []float32) string {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// anomalousEmbedding reports whether the vector's statistics look unlike
// genuine model output. Embedding models produce near-zero-mean vectors
// with non-trivial spread; a large mean or a near-zero standard deviation
// suggests a degenerate or poisoned vector.
func anomalousEmbedding(vector []float32) bool {
	if len(vector) == 0 {
		return true
	}

	var sum float64
	for _, v := range vector {
		sum += float64(v)
	}
	mean := sum / float64(len(vector))
	if math.Abs(mean) > 0.1 {
		return true
	}

	var variance float64
	for _, v := range vector {
		d := float64(v) - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(vector)))
	return std < 0.01
}
