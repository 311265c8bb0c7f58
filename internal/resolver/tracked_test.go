package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hires/internal/hostdoc/memdoc"
)

func TestTrackedDoc_ReleaseAll(t *testing.T) {
	d, err := memdoc.Parse(`<div><p id="a"></p><p id="b"></p></div>`)
	require.NoError(t, err)
	a, _ := d.Find("#a")
	b, _ := d.Find("#b")
	td := newTrackedDoc(d)
	ctx := context.Background()

	_, releaseA, err := td.Subscribe(ctx, a, 0)
	require.NoError(t, err)
	chB, _, err := td.Subscribe(ctx, b, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, td.liveCount())

	releaseA()
	assert.Equal(t, 1, td.liveCount())

	assert.Equal(t, 1, td.releaseAll())
	assert.Zero(t, td.liveCount())
	assert.Zero(t, d.LiveSubscriptions())
	_, open := <-chB
	assert.False(t, open)

	assert.Zero(t, td.releaseAll())
}
