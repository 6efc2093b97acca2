package enrollment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Before(t *testing.T) {
	assert.True(t, StatusNotStarted.Before(StatusInProgress))
	assert.True(t, StatusInProgress.Before(StatusCompleted))
	assert.False(t, StatusCompleted.Before(StatusInProgress))
	assert.False(t, StatusInProgress.Before(StatusInProgress))
}

func TestStatus_Precedents(t *testing.T) {
	assert.Empty(t, StatusNotStarted.Precedents())
	assert.Equal(t, []Status{StatusNotStarted}, StatusInProgress.Precedents())
	assert.Equal(t, []Status{StatusNotStarted, StatusInProgress}, StatusCompleted.Precedents())
}
