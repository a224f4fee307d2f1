package offset

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveExamples(t *testing.T) {
	off, diag := Resolve(120, 50)
	assert.Equal(t, Offsets{70, 0}, off)
	assert.False(t, diag.Any())

	off, _ = Resolve(50, 120)
	assert.Equal(t, Offsets{0, 70}, off)

	off, diag = Resolve(Unset, Unset)
	assert.Equal(t, Offsets{0, 0}, off)
	assert.Equal(t, [2]bool{true, true}, diag.Assumed)
	assert.True(t, diag.Uncalibrated)
}

func TestResolveSymmetry(t *testing.T) {
	for s1 := 0; s1 < 40; s1 += 3 {
		for s2 := 0; s2 < 40; s2 += 7 {
			a, _ := Resolve(s1, s2)
			b, _ := Resolve(s2, s1)
			require.Equal(t, Offsets{b[1], b[0]}, a, "s1=%d s2=%d", s1, s2)
			require.Equal(t, s1-s2, a[0]-a[1])
			require.GreaterOrEqual(t, a[0], 0)
			require.GreaterOrEqual(t, a[1], 0)
		}
	}
}

func TestResolveSingleUnsetMarker(t *testing.T) {
	off, diag := Resolve(Unset, 30)
	assert.Equal(t, Offsets{0, 30}, off)
	assert.Equal(t, [2]bool{true, false}, diag.Assumed)
	assert.False(t, diag.Uncalibrated)
}

func TestDiagnosticsLog(t *testing.T) {
	logger, hook := test.NewNullLogger()
	_, diag := Resolve(Unset, Unset)
	diag.Log(logger)

	require.Len(t, hook.AllEntries(), 3)
	for _, e := range hook.AllEntries() {
		assert.Equal(t, logrus.WarnLevel, e.Level)
	}
}
