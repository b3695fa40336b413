// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package score

import "hash/fnv"

// MockScore derives a stable pseudo-score from the repository URL. Used
// by the mock engine for demos and load tests where cloning and
// analyzing real repositories is unwanted.
func MockScore(repoURL string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(repoURL))
	// One decimal in [0.0, 100.0].
	return float64(h.Sum64()%1001) / 10
}
