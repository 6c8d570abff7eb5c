// Command workloadgen emits a deterministic, newline-delimited JSON op
// log exercising create/inherit/modify/release/flush against a style
// cache, for replay by cmd/stylecache-inspect.
//
// Run:
//
//	go run ./tools/workloadgen -n 10000 -seed 1 > workload.jsonl
//
// Adapted from arena-cache's tools/dataset_gen (flag-driven, deterministic
// math/rand dataset, bufio.Writer output), generalized from raw key
// strings to a structured op sequence matching this domain.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
)

// op mirrors the op-log record cmd/stylecache-inspect replays.
type op struct {
	Op       string `json:"op"`
	ID       int    `json:"id,omitempty"`
	Child    int    `json:"child,omitempty"`
	Parent   int    `json:"parent,omitempty"`
	WithMask bool   `json:"with_mask,omitempty"`
	Target   int    `json:"target,omitempty"`
	Key      uint8  `json:"key,omitempty"`
	Value    string `json:"value,omitempty"`
}

func main() {
	n := flag.Int("n", 10000, "number of ops to generate")
	seed := flag.Int64("seed", 1, "PRNG seed")
	numKeys := flag.Int("keys", 16, "distinct attribute keys in [0,128) to draw from")
	flag.Parse()

	if *numKeys <= 0 || *numKeys > 128 {
		fmt.Fprintln(os.Stderr, "workloadgen: -keys must be in (0,128]")
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	enc := json.NewEncoder(w)

	var liveIDs []int
	isValue := make(map[int]bool) // ids created by "create"; only these may be modified
	nextID := 0

	emit := func(o op) {
		if err := enc.Encode(o); err != nil {
			fmt.Fprintln(os.Stderr, "workloadgen: encode:", err)
			os.Exit(1)
		}
	}

	randKey := func() uint8 { return uint8(rng.Intn(*numKeys)) }
	randValue := func() string { return fmt.Sprintf("v%d", rng.Intn(64)) }
	pickLive := func() (int, bool) {
		if len(liveIDs) == 0 {
			return 0, false
		}
		return liveIDs[rng.Intn(len(liveIDs))], true
	}

	for i := 0; i < *n; i++ {
		switch {
		case len(liveIDs) == 0 || rng.Intn(100) < 40:
			id := nextID
			nextID++
			emit(op{Op: "create", ID: id, Key: randKey(), Value: randValue()})
			liveIDs = append(liveIDs, id)
			isValue[id] = true

		case rng.Intn(100) < 60:
			child, ok1 := pickLive()
			parent, ok2 := pickLive()
			if !ok1 || !ok2 {
				continue
			}
			id := nextID
			nextID++
			emit(op{Op: "inherit", ID: id, Child: child, Parent: parent, WithMask: rng.Intn(4) == 0})
			liveIDs = append(liveIDs, id)

		case rng.Intn(100) < 80:
			target, ok := pickLive()
			if !ok || !isValue[target] {
				continue
			}
			emit(op{Op: "modify", Target: target, Key: randKey(), Value: randValue()})

		case rng.Intn(100) < 95:
			idx := rng.Intn(len(liveIDs))
			target := liveIDs[idx]
			emit(op{Op: "release", Target: target})
			liveIDs = append(liveIDs[:idx], liveIDs[idx+1:]...)

		default:
			emit(op{Op: "flush"})
		}
	}
	emit(op{Op: "flush"})
}
