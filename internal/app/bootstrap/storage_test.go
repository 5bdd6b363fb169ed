package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/robo-agendamentos/internal/config"
	"github.com/wolfman30/robo-agendamentos/internal/outcome"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

func TestBuildPersisterWithoutDatabase(t *testing.T) {
	persister, closer, err := BuildPersister(context.Background(), &appconfig.Config{}, logging.Discard())
	require.NoError(t, err)
	defer closer()
	assert.IsType(t, &outcome.LogStore{}, persister)
}

func TestBuildArchiveDisabledWithoutBucket(t *testing.T) {
	store := BuildArchive(&appconfig.Config{}, nil, logging.Discard())
	assert.False(t, store.Enabled())
}
