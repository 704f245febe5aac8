package cluster

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/receipts/internal/ids"
	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/testutil"
)

func fixedNow() time.Time { return testutil.BaseTime }

func TestRepoClustererGroupsByRepo(t *testing.T) {
	events := []model.EventEnvelope{
		testutil.PR("o/r2", 1),
		testutil.PR("o/r1", 2),
		testutil.Review("o/r1", 3, "APPROVED"),
	}

	c := &RepoClusterer{Now: fixedNow}
	file, err := c.Cluster(context.Background(), events)
	require.NoError(t, err)

	require.Len(t, file.Workstreams, 2)
	r1, r2 := file.Workstreams[0], file.Workstreams[1]

	assert.Equal(t, ids.FromParts("repo", "o/r1"), r1.ID)
	assert.Equal(t, "o/r1", r1.Title)
	assert.Equal(t, []string{"repo"}, r1.Tags)
	assert.Equal(t, []string{events[1].ID, events[2].ID}, r1.Events)
	assert.Equal(t, model.WorkstreamStats{PullRequests: 1, Reviews: 1}, r1.Stats)
	assert.Equal(t, "1 pull request and 1 review.", r1.Summary)

	assert.Equal(t, ids.FromParts("repo", "o/r2"), r2.ID)
	assert.Equal(t, []string{events[0].ID}, r2.Events)
	assert.Equal(t, "1 pull request and 0 reviews.", r2.Summary)

	assert.Equal(t, model.WorkstreamsVersion, file.Version)
	assert.Equal(t, testutil.BaseTime, file.GeneratedAt)
	require.NoError(t, file.CheckPartition(events))
}

func TestRepoClustererReceipts(t *testing.T) {
	var events []model.EventEnvelope
	for i := 1; i <= 4; i++ {
		events = append(events, testutil.PR("o/r", i))
	}
	for i := 1; i <= 8; i++ {
		events = append(events, testutil.Review("o/r", 100+i, "COMMENTED"))
	}

	file, err := (&RepoClusterer{Now: fixedNow}).Cluster(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, file.Workstreams, 1)

	ws := file.Workstreams[0]
	require.Len(t, ws.Receipts, 9)
	for i := 0; i < 4; i++ {
		assert.Equal(t, events[i].ID, ws.Receipts[i], "every PR is a receipt")
	}
	assert.Equal(t, events[4].ID, ws.Receipts[4])
	assert.Equal(t, events[8].ID, ws.Receipts[8])
	assert.Equal(t, model.WorkstreamStats{PullRequests: 4, Reviews: 8}, ws.Stats)
}

func TestRepoClustererReceiptsTruncated(t *testing.T) {
	var events []model.EventEnvelope
	for i := 1; i <= 14; i++ {
		events = append(events, testutil.PR("o/busy", i))
	}

	file, err := (&RepoClusterer{Now: fixedNow}).Cluster(context.Background(), events)
	require.NoError(t, err)

	ws := file.Workstreams[0]
	assert.Len(t, ws.Events, 14)
	assert.Len(t, ws.Receipts, model.MaxReceipts)
	require.NoError(t, file.CheckPartition(events))
}

func TestRepoClustererEmpty(t *testing.T) {
	file, err := NewRepoClusterer().Cluster(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, file.Workstreams)
	assert.NotNil(t, file.Workstreams)
}

func TestRepoClustererManyRepos(t *testing.T) {
	var events []model.EventEnvelope
	for i := 0; i < 30; i++ {
		repo := fmt.Sprintf("org/repo-%02d", i%7)
		events = append(events, testutil.PR(repo, i+1))
	}

	file, err := (&RepoClusterer{Now: fixedNow}).Cluster(context.Background(), events)
	require.NoError(t, err)
	assert.Len(t, file.Workstreams, 7)
	require.NoError(t, file.CheckPartition(events))

	for i := 1; i < len(file.Workstreams); i++ {
		assert.Less(t, file.Workstreams[i-1].Title, file.Workstreams[i].Title)
	}
}
