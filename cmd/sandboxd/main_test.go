package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitFlagsAndArgs_SplitsAtTerminator(t *testing.T) {
	flags, rest := splitFlagsAndArgs([]string{"--exec-path=/bin/sh", "--", "-c", "echo hi"})
	assert.Equal(t, []string{"--exec-path=/bin/sh"}, flags)
	assert.Equal(t, []string{"-c", "echo hi"}, rest)
}

func TestSplitFlagsAndArgs_NoTerminatorLeavesRestEmpty(t *testing.T) {
	flags, rest := splitFlagsAndArgs([]string{"--port=2049"})
	assert.Equal(t, []string{"--port=2049"}, flags)
	assert.Empty(t, rest)
}

func TestParseCommaSeparatedPairs_RejectsMalformedEntry(t *testing.T) {
	_, err := parseCommaSeparatedPairs("/host:/guest,noColon")
	assert.Error(t, err)
}

func TestParseCommaSeparatedPairs_EmptyStringIsNotAnError(t *testing.T) {
	pairs, err := parseCommaSeparatedPairs("")
	assert.NoError(t, err)
	assert.Nil(t, pairs)
}

func TestParseCommaSeparatedPairs_AcceptsWellFormedList(t *testing.T) {
	pairs, err := parseCommaSeparatedPairs("8080:80,9090:90")
	assert.NoError(t, err)
	assert.Equal(t, []string{"8080:80", "9090:90"}, pairs)
}
