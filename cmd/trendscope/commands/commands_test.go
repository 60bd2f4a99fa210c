package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/router"
	"github.com/spherical-ai/trendscope/internal/testutil"
)

// writeConfig points a config file at storePath with every remote provider switched off.
func writeConfig(t *testing.T, storePath string) string {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "none")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("REDIS_URL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`llm:
  provider: none
store:
  path: %q
vector:
  adapter: memory
  dimension: 256
observability:
  log_level: error
`, storePath)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

type cliResult struct {
	stdout string
	stderr string
	code   int
}

func run(t *testing.T, cfgPath, stdin string, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))

	ctx := context.Background()
	err := cmd.ExecuteContext(ctx)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), code: ExitCode(ctx, err)}
}

func TestAsk(t *testing.T) {
	cfg := writeConfig(t, testutil.SeedSQLite(t))

	tests := []struct {
		name      string
		args      []string
		wantCode  int
		wantState domain.State
		wantKind  domain.ErrorKind
	}{
		{"semantic question", []string{"ask", "--json", "--max-results", "3", "gaming videos"}, ExitOK, domain.StateDone, ""},
		{"empty question", []string{"ask", "--json", "   "}, ExitValidation, domain.StateRejected, domain.ErrorKindInvalidQuery},
		{"analytical without llm", []string{"ask", "--json", "top 10 channels by total views"}, ExitValidation, domain.StateFailed, domain.ErrorKindTranslationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, cfg, "", tt.args...)
			assert.Equal(t, tt.wantCode, res.code, res.stderr)

			var resp domain.OrchestratedResponse
			require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp), res.stdout)
			assert.Equal(t, tt.wantState, resp.State)
			assert.Equal(t, tt.wantKind, resp.ErrorKind)
			if tt.wantState == domain.StateDone {
				require.NotNil(t, resp.SemanticResult)
				assert.LessOrEqual(t, len(resp.SemanticResult.Rows), 3)
			}
		})
	}
}

func TestAsk_Text(t *testing.T) {
	cfg := writeConfig(t, testutil.SeedSQLite(t))

	res := run(t, cfg, "", "ask", "--verbose", "gaming videos")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "SEMANTIC")
	assert.Contains(t, res.stdout, "Gaming")
}

func TestAsk_Interactive(t *testing.T) {
	cfg := writeConfig(t, testutil.SeedSQLite(t))

	res := run(t, cfg, "gaming videos\n\nexit\ncooking videos\n", "ask", "--json")
	require.Equal(t, ExitOK, res.code, res.stderr)

	dec := json.NewDecoder(strings.NewReader(res.stdout))
	var answers []domain.OrchestratedResponse
	for dec.More() {
		var resp domain.OrchestratedResponse
		require.NoError(t, dec.Decode(&resp))
		answers = append(answers, resp)
	}
	require.Len(t, answers, 1, "input after exit must not be answered")
	assert.Equal(t, "gaming videos", answers[0].Query)
}

func TestExamples(t *testing.T) {
	cfg := writeConfig(t, testutil.SeedSQLite(t))

	res := run(t, cfg, "", "examples", "--json")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var got []router.Example
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &got))
	assert.Equal(t, router.Examples(), got)

	res = run(t, cfg, "", "examples")
	require.Equal(t, ExitOK, res.code)
	assert.Contains(t, res.stdout, "ROUTE")
	assert.Contains(t, res.stdout, "Top 10 channels by total views")
}

func TestStats(t *testing.T) {
	cfg := writeConfig(t, testutil.SeedSQLite(t))

	res := run(t, cfg, "", "stats", "--json")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var stats domain.Statistics
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &stats))
	assert.Equal(t, int64(len(testutil.Videos())), stats.TotalDocuments)
	assert.Contains(t, stats.Categories, "Gaming")

	res = run(t, cfg, "", "stats")
	require.Equal(t, ExitOK, res.code)
	assert.Contains(t, res.stdout, "documents: 8")
}

func TestSimilar(t *testing.T) {
	cfg := writeConfig(t, testutil.SeedSQLite(t))

	res := run(t, cfg, "", "similar", "--json", "-n", "2", "v002")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var rows []domain.Row
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &rows))
	assert.LessOrEqual(t, len(rows), 2)
	for _, r := range rows {
		assert.NotEqual(t, "v002", r.String("video_id"))
	}

	res = run(t, cfg, "", "similar", "missing-id")
	assert.Equal(t, ExitValidation, res.code)
}

func TestSQL(t *testing.T) {
	cfg := writeConfig(t, testutil.SeedSQLite(t))

	res := run(t, cfg, "", "sql", "--json", "SELECT COUNT(*) AS n FROM videos")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var out struct {
		SQL     string       `json:"sql"`
		Columns []string     `json:"columns"`
		Rows    []domain.Row `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, "SELECT COUNT(*) AS n FROM videos LIMIT 10", out.SQL)
	assert.Equal(t, []string{"n"}, out.Columns)
	require.Len(t, out.Rows, 1)
	assert.EqualValues(t, len(testutil.Videos()), out.Rows[0]["n"])

	res = run(t, cfg, "", "sql", "DELETE FROM videos")
	assert.Equal(t, ExitValidation, res.code)
}

func TestSeed(t *testing.T) {
	input := filepath.Join(t.TempDir(), "videos.jsonl")
	lines := []string{
		`{"video_id":"s1","title":"Easy Pasta","channel_title":"KitchenLab","category_name":"Howto & Style","country":"US","views":1200}`,
		`{"video_id":"s2","title":"Speedrun","channel_title":"PixelRush","category_name":"Gaming","country":"CA","views":900}`,
		`{"video_id":"s3"}`,
	}
	require.NoError(t, os.WriteFile(input, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	t.Run("skips bad lines", func(t *testing.T) {
		cfg := writeConfig(t, filepath.Join(t.TempDir(), "seeded.db"))
		res := run(t, cfg, "", "seed", "--json", input)
		require.Equal(t, ExitOK, res.code, res.stderr)

		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
		assert.EqualValues(t, 2, out["stored"])
		assert.EqualValues(t, 2, out["indexed"])

		res = run(t, cfg, "", "sql", "--json", "SELECT video_id FROM videos ORDER BY video_id")
		require.Equal(t, ExitOK, res.code, res.stderr)
		assert.Contains(t, res.stdout, `"s2"`)
	})

	t.Run("strict", func(t *testing.T) {
		cfg := writeConfig(t, filepath.Join(t.TempDir(), "seeded.db"))
		res := run(t, cfg, "", "seed", "--strict", input)
		assert.Equal(t, ExitValidation, res.code)
		assert.Contains(t, res.stderr, "line 3")
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := writeConfig(t, filepath.Join(t.TempDir(), "seeded.db"))
		res := run(t, cfg, "", "seed", filepath.Join(t.TempDir(), "nope.jsonl"))
		assert.Equal(t, ExitValidation, res.code)
	})
}

func TestMissingStore(t *testing.T) {
	cfg := writeConfig(t, filepath.Join(t.TempDir(), "absent.db"))
	res := run(t, cfg, "", "ask", "gaming videos")
	assert.Equal(t, ExitDependency, res.code)
}

func TestExitCode(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want int
	}{
		{"nil", context.Background(), nil, ExitOK},
		{"explicit", context.Background(), exitf(ExitDependency, nil), ExitDependency},
		{"wrapped explicit", context.Background(), fmt.Errorf("run: %w", exitf(ExitValidation, errors.New("bad"))), ExitValidation},
		{"dependency kind", context.Background(), domain.DependencyError("open store", errors.New("refused")), ExitDependency},
		{"invalid kind", context.Background(), domain.InvalidQueryError("empty", nil), ExitValidation},
		{"plain error", context.Background(), errors.New("unknown flag"), ExitValidation},
		{"canceled error", context.Background(), context.Canceled, ExitInterrupted},
		{"canceled context", canceled, exitf(ExitDependency, nil), ExitInterrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.ctx, tt.err))
		})
	}
}
