package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRecordAndList(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	j.Record(EventDirect, "bob", "10.0.0.2:7000")
	j.Record(EventRelayAdd, "frank", "")
	j.Record(EventRelayRemoved, "frank", "broker notice")

	all, err := j.List("", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, EventDirect, all[0].Event)
	assert.Equal(t, EventRelayRemoved, all[2].Event)

	frank, err := j.List("frank", 10)
	require.NoError(t, err)
	require.Len(t, frank, 2)
	assert.Equal(t, EventRelayAdd, frank[0].Event)

	last, err := j.List("", 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, EventRelayRemoved, last[0].Event)
}

func TestNilJournalIsNoop(t *testing.T) {
	var j *Journal
	j.Record(EventDirect, "bob", "")
	entries, err := j.List("", 10)
	assert.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, j.Close())
}
