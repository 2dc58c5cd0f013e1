package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRunnerRequiresDispatchService(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	assert.Error(t, err)
}
