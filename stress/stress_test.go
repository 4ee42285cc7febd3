package stress

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	cfgpkg "subtrans/internal/config"
	"subtrans/internal/pipeline"
)

// baseConfig 复制自 testdata，构造可运行的最小配置。
func baseConfig(input, outDir string, maxChars int) cfgpkg.Config {
	pace := 0.0
	cfg := cfgpkg.Defaults()
	cfg.Inputs = []string{input}
	cfg.MaxBatchChars = maxChars
	cfg.PaceSeconds = &pace
	cfg.Logging.Level = "error"
	cfg.Output.Dir = outDir
	cfg.Provider = map[string]cfgpkg.Provider{
		"mock": {Client: "mock", Options: map[string]any{"prefix": "STRESS"}},
	}
	cfg.Backends = []string{"mock"}
	return cfg
}

// writeLargeSRT 生成 n 条字幕。
func writeLargeSRT(path string, n int) error {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		s := i * 3
		fmt.Fprintf(&b, "%d\n%02d:%02d:%02d,000 --> %02d:%02d:%02d,900\n", i, s/3600, s/60%60, s%60, s/3600, s/60%60, s%60)
		fmt.Fprintf(&b, "这是第 %d 条字幕，用于批次切分的压力测试。\n\n", i)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// TestStress 在不同批上限下运行流水线并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	dataDir := t.TempDir()
	in := filepath.Join(dataDir, "input.srt")
	if err := writeLargeSRT(in, 2283); err != nil {
		t.Fatalf("write input: %v", err)
	}
	levels := []int{200, 1500, 4500}
	for _, maxChars := range levels {
		t.Run(fmt.Sprintf("max_chars_%d", maxChars), func(t *testing.T) {
			const runs = 5
			successes, batches := 0, 0
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				comp, set, err := cfgpkg.Assemble(baseConfig(in, t.TempDir(), maxChars), nil)
				if err != nil {
					t.Fatalf("assemble: %v", err)
				}
				start := time.Now()
				reports, err := pipeline.Run(context.Background(), comp, set, nil)
				dur := time.Since(start)
				if err != nil {
					t.Errorf("run %d: %v", i, err)
					continue
				}
				successes++
				batches = reports[0].Outcome.Batches
				latencies = append(latencies, dur)
			}
			if successes == 0 {
				t.Fatalf("全部运行失败")
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			p95 := latencies[idx]
			t.Logf("批上限%d 批次%d 成功率%.2f 平均%v 95%%延迟%v", maxChars, batches, float64(successes)/float64(runs), avg, p95)
		})
	}
}
