// Command stylecache-inspect replays a newline-delimited JSON op log (the
// format tools/workloadgen emits) against one or more fresh Cache
// instances and prints a snapshot of the result.
//
// Usage:
//
//	stylecache-inspect [-json] [-export path.json.zst] [-shard N] <logfile>
//
// With -shard N > 1, the op log is split by line count into N contiguous
// shards, each replayed against its own independent Cache concurrently
// (errgroup), and the per-shard snapshots are summed. Ids are local to a
// shard: an op naming an id created in another shard finds no handle and
// is skipped, so the sharded result differs from a -shard 1 (the default)
// replay whenever ops cross a shard boundary.
//
// Grounded on arena-cache's cmd/arena-cache-inspect (flag-driven replay
// tool printing a text or JSON snapshot, with an optional compressed
// export), adapted from a KV snapshot dump to an op-log replay.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	stylecache "github.com/kelpgfx/stylecache/pkg"
	"github.com/kelpgfx/stylecache/internal/tuplearena"
)

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

// snapshot is the replay result printed to stdout or exported.
type snapshot struct {
	Ops      int   `json:"ops"`
	LiveHold int   `json:"live_holders"`
	Live     int   `json:"live_styles"`
	Dead     int   `json:"dead_styles"`
	MemBytes int64 `json:"mem_bytes"`
}

func (s *snapshot) add(o snapshot) {
	s.Ops += o.Ops
	s.LiveHold += o.LiveHold
	s.Live += o.Live
	s.Dead += o.Dead
	s.MemBytes += o.MemBytes
}

func main() {
	jsonOut := flag.Bool("json", false, "print the snapshot as JSON instead of text")
	export := flag.String("export", "", "zstd-compress a JSON dump of the snapshot to this path")
	shards := flag.Int("shard", 1, "split the op log into N independently-replayed shards")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stylecache-inspect [-json] [-export path.json.zst] [-shard N] <logfile>")
		os.Exit(2)
	}
	if *shards < 1 {
		fmt.Fprintln(os.Stderr, "stylecache-inspect: -shard must be >= 1")
		os.Exit(2)
	}

	lines, err := readLines(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "stylecache-inspect:", err)
		os.Exit(1)
	}

	chunks := splitInto(lines, *shards)
	results := make([]snapshot, len(chunks))

	var g errgroup.Group
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			snap, err := replay(chunk)
			if err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			results[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "stylecache-inspect:", err)
		os.Exit(1)
	}

	var total snapshot
	for _, s := range results {
		total.add(s)
	}

	if *export != "" {
		if err := exportSnapshot(total, *export); err != nil {
			fmt.Fprintln(os.Stderr, "stylecache-inspect: export:", err)
			os.Exit(1)
		}
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(total)
		return
	}
	fmt.Printf("ops=%d live_holders=%d live_styles=%d dead_styles=%d mem_bytes=%d\n",
		total.Ops, total.LiveHold, total.Live, total.Dead, total.MemBytes)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func splitInto(lines []string, n int) [][]string {
	if n <= 1 || len(lines) == 0 {
		return [][]string{lines}
	}
	out := make([][]string, 0, n)
	size := (len(lines) + n - 1) / n
	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		out = append(out, lines[start:end])
	}
	return out
}

// replay runs one shard's ops against a fresh Cache and returns its
// resulting snapshot. Generator-assigned ids are local to the shard.
func replay(lines []string) (snapshot, error) {
	c, err := stylecache.New()
	if err != nil {
		return snapshot{}, err
	}
	defer c.Close()

	handles := make(map[int]stylecache.StyleHandle)
	ops := 0

	for _, line := range lines {
		var o op
		if err := json.Unmarshal([]byte(line), &o); err != nil {
			return snapshot{}, fmt.Errorf("decode op: %w", err)
		}
		ops++

		switch o.Op {
		case "create":
			pairs := []tuplearena.Pair{{Key: o.Key, Value: []byte(o.Value)}}
			handles[o.ID] = c.StyleCreate(pairs)

		case "inherit":
			child, ok1 := handles[o.Child]
			parent, ok2 := handles[o.Parent]
			if !ok1 || !ok2 {
				continue
			}
			h := c.StyleInherit(child, parent, o.WithMask)
			c.StyleAddRef(h) // a composition style is allocated pending (refcount 0); this replayer retains every handle it tracks
			handles[o.ID] = h

		case "modify":
			h, ok := handles[o.Target]
			if !ok {
				continue
			}
			c.StyleModify(h, []tuplearena.PatchOp{{Key: o.Key, Value: []byte(o.Value)}})

		case "release":
			h, ok := handles[o.Target]
			if !ok {
				continue
			}
			c.StyleRelease(h)
			delete(handles, o.Target)

		case "flush":
			c.Flush()

		default:
			return snapshot{}, fmt.Errorf("unknown op %q", o.Op)
		}
	}
	c.Flush()

	return snapshot{
		Ops:      ops,
		LiveHold: len(handles),
		Live:     liveCountOf(c),
		Dead:     deadCountOf(c),
		MemBytes: c.MemSize(),
	}, nil
}

func liveCountOf(c *stylecache.Cache) int { return c.LiveCount() }
func deadCountOf(c *stylecache.Cache) int { return c.DeadCount() }

func exportSnapshot(s snapshot, path string) error {
	buf, err := json.Marshal(s)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if _, err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
