package cli

import (
	"bytes"
	"encoding/csv"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arblog/internal/model"
)

func attemptsOf(attempts []model.ArbitrageAttempt, err error) iter.Seq2[model.ArbitrageAttempt, error] {
	return func(yield func(model.ArbitrageAttempt, error) bool) {
		for _, a := range attempts {
			if !yield(a, nil) {
				return
			}
		}
		if err != nil {
			yield(model.ArbitrageAttempt{}, err)
		}
	}
}

func sampleAttempts() []model.ArbitrageAttempt {
	return []model.ArbitrageAttempt{
		{
			ID:               1,
			Timestamp:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			StartAmountUSDT:  model.Amount(decimal.RequireFromString("1000")),
			EndAmountUSDT:    model.Amount(decimal.RequireFromString("1005.25")),
			ProfitUSDT:       model.Amount(decimal.RequireFromString("5.25")),
			ProfitPercentage: model.Amount(decimal.RequireFromString("0.525")),
			BaseToken:        "USDT",
			Path:             "USDT→WBNB→CAKE→USDT",
			Routers:          "pancakeswap,biswap,pancakeswap",
			Executed:         true,
		},
		{
			ID:        2,
			Timestamp: time.Date(2025, 3, 1, 12, 0, 1, 0, time.UTC),
		},
	}
}

func TestResetRequiresConfirmation(t *testing.T) {
	t.Chdir(t.TempDir())

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"reset"})

	err := root.Execute()
	assert.ErrorIs(t, err, errResetNotConfirmed)
	assert.NotContains(t, out.String(), "reset")
}

func TestFilterFlags_Build(t *testing.T) {
	newCmd := func(paging bool) (*cobra.Command, *filterFlags) {
		var f filterFlags
		cmd := &cobra.Command{Use: "test"}
		f.register(cmd, paging)
		return cmd, &f
	}

	t.Run("unset flags leave the filter open", func(t *testing.T) {
		cmd, f := newCmd(true)
		require.NoError(t, cmd.ParseFlags(nil))

		filter, err := f.build(cmd)
		require.NoError(t, err)
		assert.Equal(t, model.Filter{}, filter)
	})

	t.Run("every flag", func(t *testing.T) {
		cmd, f := newCmd(true)
		require.NoError(t, cmd.ParseFlags([]string{
			"--id", "7",
			"--executed=false",
			"--from", "2025-01-02T03:04:05Z",
			"--base-token", "USDT",
			"--min-profit", "0.5",
			"--limit", "10",
			"--offset", "5",
			"--order", "desc",
		}))

		filter, err := f.build(cmd)
		require.NoError(t, err)
		require.NotNil(t, filter.ID)
		assert.Equal(t, int64(7), *filter.ID)
		require.NotNil(t, filter.Executed)
		assert.False(t, *filter.Executed)
		assert.True(t, filter.From.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))
		assert.Equal(t, "USDT", filter.BaseToken)
		assert.True(t, filter.MinProfit.Decimal.Equal(decimal.RequireFromString("0.5")))
		assert.Equal(t, 10, filter.Limit)
		assert.Equal(t, 5, filter.Offset)
		assert.True(t, filter.Descending)
	})

	t.Run("date only", func(t *testing.T) {
		cmd, f := newCmd(false)
		require.NoError(t, cmd.ParseFlags([]string{"--to", "2025-01-02"}))

		filter, err := f.build(cmd)
		require.NoError(t, err)
		assert.Equal(t, 2025, filter.To.Year())
		assert.Equal(t, time.January, filter.To.Month())
		assert.Equal(t, 2, filter.To.Day())
	})

	for _, args := range [][]string{
		{"--from", "yesterday"},
		{"--min-profit", "lots"},
		{"--min-profit", "1e-2000000"},
		{"--order", "sideways"},
		{"--limit=-1"},
	} {
		t.Run("rejects "+strings.Join(args, " "), func(t *testing.T) {
			cmd, f := newCmd(true)
			require.NoError(t, cmd.ParseFlags(args))
			_, err := f.build(cmd)
			assert.Error(t, err)
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	n, err := writeCSV(&buf, attemptsOf(sampleAttempts(), nil))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{
		"1", "2025-03-01T12:00:00Z", "1000", "1005.25", "5.25", "0.525",
		"USDT", "USDT→WBNB→CAKE→USDT", "pancakeswap,biswap,pancakeswap", "true",
	}, records[1])
	assert.Equal(t, []string{"2", "2025-03-01T12:00:01Z", "", "", "", "", "", "", "", "false"}, records[2])
}

func TestWriteCSV_StopsOnError(t *testing.T) {
	boom := errors.New("connection lost")
	n, err := writeCSV(&bytes.Buffer{}, attemptsOf(sampleAttempts()[:1], boom))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestDisplayAttempts(t *testing.T) {
	var buf bytes.Buffer
	n, err := displayAttempts(&buf, attemptsOf(sampleAttempts(), nil))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "USDT→WBNB→CAKE→USDT")
	assert.Contains(t, lines[1], "5.25")
	assert.Contains(t, lines[2], "false")

	buf.Reset()
	n, err = displayAttempts(&buf, attemptsOf(nil, nil))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, buf.String())
}

func TestDisplayStats(t *testing.T) {
	first := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	displayStats(&buf, model.Stats{
		TotalAttempts:    4,
		ExecutedAttempts: 1,
		TotalProfitUSDT:  model.Amount(decimal.RequireFromString("12.5")),
		FirstAttemptAt:   &first,
		LastAttemptAt:    &first,
	})

	out := buf.String()
	assert.Contains(t, out, "Attempts:")
	assert.Contains(t, out, "4")
	assert.Contains(t, out, "12.5")
	assert.Contains(t, out, "Window:")
}
