package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinterFlagsMissingAndDuplicateMarkers(t *testing.T) {
	src := "package q\n\n" +
		"const QGood = `--sql 6b1d2f0e-93a4-4c7e-8f21-0d5e7a9c3b14\nselect 1;`\n" +
		"const QMissing = `select id from recipes;`\n" +
		"const QDup = `--sql 6b1d2f0e-93a4-4c7e-8f21-0d5e7a9c3b14\nselect 2;`\n" +
		"const QBadUUID = `--sql not-a-uuid\ninsert into recipes values (1);`\n" +
		"const Label = \"recipes\"\n"

	l := newLinter()
	require.NoError(t, l.file("q.go", src))
	require.Len(t, l.violations, 3)

	names := make([]string, 0, len(l.violations))
	for _, v := range l.violations {
		names = append(names, v.name)
	}
	assert.Equal(t, []string{"QMissing", "QDup", "QBadUUID"}, names)
	assert.True(t, strings.Contains(l.violations[1].message, "already used at q.go:3"))
}

func TestLinterAcceptsRepositorySQL(t *testing.T) {
	l := newLinter()
	require.NoError(t, l.walk("../../sqlinline"))
	assert.Empty(t, l.violations)
}
