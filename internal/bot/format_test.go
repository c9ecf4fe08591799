package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfawz/hifz/internal/excel"
	"github.com/alfawz/hifz/internal/spaced_repetition"
	"github.com/alfawz/hifz/pkg/models"
)

func TestParseUnit(t *testing.T) {
	u, err := parseUnit(" 2:255 ")
	require.NoError(t, err)
	assert.Equal(t, models.Unit{SurahID: 2, AyahID: 255}, u)

	for _, bad := range []string{"2", "2:", "a:b", "2:300", "115:1", "1:2:3"} {
		_, err := parseUnit(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseRange(t *testing.T) {
	from, to, err := parseRange("1-10")
	require.NoError(t, err)
	assert.Equal(t, 1, from)
	assert.Equal(t, 10, to)

	from, to, err = parseRange("7")
	require.NoError(t, err)
	assert.Equal(t, 7, from)
	assert.Equal(t, 7, to)

	_, _, err = parseRange("1-x")
	assert.Error(t, err)
}

func TestParseScore(t *testing.T) {
	cases := map[string]float64{
		"0.85": 0.85, "85%": 0.85, "85": 0.85, "1": 1, "0": 0,
		"1.5": 1.5, "1.5%": 0.015, "2": 0.02, "100": 1, "150%": 1.5,
	}
	for in, want := range cases {
		got, err := parseScore(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}
	_, err := parseScore("good")
	assert.Error(t, err)
}

func TestParsePlanArgs(t *testing.T) {
	p, err := parsePlanArgs([]string{"42", "Juz", "Amma", "78", "1-40"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.UserID)
	assert.Equal(t, "Juz Amma", p.Title)
	assert.Equal(t, 78, p.SurahID)
	assert.Equal(t, 40, p.EndAyah)

	p, err = parsePlanArgs([]string{"42", "1", "1-7"})
	require.NoError(t, err)
	assert.Equal(t, "", p.Title)

	_, err = parsePlanArgs([]string{"42", "1"})
	assert.Error(t, err)
	_, err = parsePlanArgs([]string{"x", "1", "1-7"})
	assert.Error(t, err)
}

func TestFormatDue(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	sm := spaced_repetition.NewSM2()
	overdue := now.AddDate(0, 0, -3)
	today := now.Add(-time.Hour)
	items := []models.ReviewItem{
		{SurahID: 1, AyahID: 1, EaseFactor: 1.5, ConfidenceScore: 0.4, DueAt: &overdue},
		{SurahID: 1, AyahID: 2, EaseFactor: 2.5, ConfidenceScore: 0.85, DueAt: &today},
		{SurahID: 1, AyahID: 3, EaseFactor: 2.5},
	}

	text := formatDue(items, sm, now)
	assert.Contains(t, text, "1. Al-Fatihah 1:1 (overdue 3 days, hard)")
	assert.Contains(t, text, "2. Al-Fatihah 1:2 (due, easy)")
	assert.Contains(t, text, "3. Al-Fatihah 1:3 (new, hard)")

	assert.Contains(t, formatDue(nil, sm, now), "Nothing is due")
}

func TestFormatImportTruncatesErrors(t *testing.T) {
	res := &excel.ImportResult{TotalProcessed: 12}
	for i := 0; i < 12; i++ {
		res.Errors = append(res.Errors, "Row x: bad")
	}
	text := formatImport(res)
	assert.Contains(t, text, "Errors (12)")
	assert.Contains(t, text, "...and 2 more")
}

func TestPlurals(t *testing.T) {
	assert.Equal(t, "1 day", pluralDays(1))
	assert.Equal(t, "6 days", pluralDays(6))
	assert.Equal(t, "1 ayah", pluralAyat(1))
	assert.Equal(t, "0 ayat", pluralAyat(0))
}
