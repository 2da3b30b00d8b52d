package gitrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticProvider(t *testing.T) {
	p := StaticProvider{State: RepoState{GitAvailable: true, Branch: "develop"}}
	state := p.Capture(context.Background(), "/anywhere")
	assert.Equal(t, "develop", state.Branch)
	assert.True(t, state.GitAvailable)
}

func TestExecProviderOutsideRepo(t *testing.T) {
	p := ExecProvider{}
	state := p.Capture(context.Background(), t.TempDir())
	assert.False(t, state.GitAvailable)
	assert.Empty(t, state.Branch)
}
