package kernel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mote "github.com/wnxd/microdbg-mote"
)

const boardYAML = `
board: demo
fault: restart
scheduler:
  type: mlfq
  quanta: [5000, 10000]
  refreshTicks: 100000
taskQueueDepth: 8
processes:
  - name: blink
    image: blink
    memory: 4096
  - name: hello
    image: hello
    memory: 8192
    break: 6144
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(boardYAML))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Board)
	assert.Equal(t, []uint32{5000, 10000}, cfg.Scheduler.Quanta)
	assert.Equal(t, uint64(100000), cfg.Scheduler.RefreshTicks)
	assert.Equal(t, 8, cfg.TaskQueueDepth)
	require.Len(t, cfg.Processes, 2)
	assert.Equal(t, uint32(6144), cfg.Processes[1].Break)

	fr, err := cfg.FaultResponse()
	require.NoError(t, err)
	assert.Equal(t, mote.FaultRestart, fr)
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader("board: minimal\n"))
	require.NoError(t, err)

	assert.Equal(t, "mlfq", cfg.Scheduler.Type)
	assert.Equal(t, []uint32{10000, 20000, 50000}, cfg.Scheduler.Quanta)
	assert.Equal(t, 10, cfg.TaskQueueDepth)
	fr, err := cfg.FaultResponse()
	require.NoError(t, err)
	assert.Equal(t, mote.FaultPanic, fr)
}

func TestParseConfigRejectsUnknownFields(t *testing.T) {
	_, err := ParseConfig(strings.NewReader("bord: typo\n"))
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	bad := []string{
		"fault: explode\n",
		"scheduler:\n  type: lottery\n",
		"scheduler:\n  type: mlfq\n  quanta: []\n",
		"scheduler:\n  type: mlfq\n  quanta: [50]\n",
		"taskQueueDepth: 0\n",
		"processes:\n  - name: \"\"\n    memory: 4096\n",
		"processes:\n  - name: tiny\n    memory: 64\n",
		"processes:\n  - name: bad\n    memory: 4096\n    break: 8192\n",
	}
	for _, doc := range bad {
		_, err := ParseConfig(strings.NewReader(doc))
		assert.Error(t, err, "document %q must fail validation", doc)
	}
}

func TestConfigRoundRobin(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader("scheduler:\n  type: roundrobin\n"))
	require.NoError(t, err)
	assert.Equal(t, "roundrobin", cfg.Scheduler.Type)
}
