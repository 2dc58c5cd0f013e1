package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderplan/planner-api/internal/domain/model"
	apperrors "github.com/wanderplan/planner-api/internal/errors"
)

func TestNewStrategyRegistry(t *testing.T) {
	reg, err := NewStrategyRegistry(
		&strategyStub{kind: model.JobKindGeneration},
		&strategyStub{kind: model.JobKindRecommendation},
	)
	require.NoError(t, err)

	s, err := reg.ForKind(model.JobKindGeneration)
	require.NoError(t, err)
	assert.Equal(t, model.JobKindGeneration, s.Kind())

	_, err = reg.ForKind(model.JobKindModification)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestNewStrategyRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewStrategyRegistry(
		&strategyStub{kind: model.JobKindGeneration},
		&strategyStub{kind: model.JobKindGeneration},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate strategy")
}

func TestNewStrategyRegistryRejectsNil(t *testing.T) {
	_, err := NewStrategyRegistry(nil)
	assert.Error(t, err)
}
