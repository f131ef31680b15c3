package store

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowd-data/labelfuse/internal/active"
	"github.com/crowd-data/labelfuse/internal/consensus"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "labelfuse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestMigrateDownRollsBack(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	require.NoError(t, s.MigrateDown())

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(0), version)
}

func TestCreateSessionAndDim(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	id, err := s.CreateSession(3)
	require.NoError(t, err)
	assert.Contains(t, id, "ses_")

	dim, err := s.SessionDim(id)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	_, err = s.SessionDim("ses_missing")
	assert.Error(t, err)

	_, err = s.CreateSession(0)
	assert.Error(t, err)
}

func testParameters() *consensus.Parameters {
	params := consensus.NewParameters(2)
	params.Weights = []float64{1.25, -0.5}
	params.Bias = 0.75
	params.Labellers[3] = consensus.LabellerParams{
		Weights: []float64{0.5, 0.25},
		Bias:    -0.125,
	}
	params.Labellers[7] = consensus.LabellerParams{
		Fallback:     true,
		FallbackRate: 0.9,
	}
	return params
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	session, err := s.CreateSession(2)
	require.NoError(t, err)

	saved := testParameters()
	require.NoError(t, s.SaveSnapshot(session, 1, saved))

	loaded, pass, err := s.LoadLatestSnapshot(session)
	require.NoError(t, err)
	assert.Equal(t, 1, pass)

	if diff := cmp.Diff(saved, loaded, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("snapshot mismatch (-saved +loaded):\n%s", diff)
	}

	// The loaded snapshot must publish the same probabilities.
	savedModel, err := consensus.NewModel(saved)
	require.NoError(t, err)
	loadedModel, err := consensus.NewModel(loaded)
	require.NoError(t, err)

	x := []float64{0.3, -1.1}
	wantP, err := savedModel.TrueLabelProbability(x)
	require.NoError(t, err)
	gotP, err := loadedModel.TrueLabelProbability(x)
	require.NoError(t, err)
	assert.InDelta(t, wantP, gotP, 1e-12)

	wantC, err := savedModel.LabellerCorrectness(7, x)
	require.NoError(t, err)
	gotC, err := loadedModel.LabellerCorrectness(7, x)
	require.NoError(t, err)
	assert.InDelta(t, wantC, gotC, 1e-12)
}

func TestLoadLatestSnapshotPicksNewestPass(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	session, err := s.CreateSession(2)
	require.NoError(t, err)

	first := testParameters()
	require.NoError(t, s.SaveSnapshot(session, 1, first))

	second := testParameters()
	second.Bias = -2.0
	require.NoError(t, s.SaveSnapshot(session, 2, second))

	loaded, pass, err := s.LoadLatestSnapshot(session)
	require.NoError(t, err)
	assert.Equal(t, 2, pass)
	assert.Equal(t, -2.0, loaded.Bias)
}

func TestLoadLatestSnapshotEmptySession(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	session, err := s.CreateSession(2)
	require.NoError(t, err)

	_, _, err = s.LoadLatestSnapshot(session)
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRoundLogAppendAndList(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	session, err := s.CreateSession(2)
	require.NoError(t, err)

	rounds := []active.SelectionRound{
		{RoundID: "rnd_a", Round: 1, ExampleIndex: 4, LabellerID: 0, Score: -0.01, Backend: "consensus", UnixNanos: 100},
		{RoundID: "rnd_b", Round: 1, ExampleIndex: 2, LabellerID: 1, Score: -0.04, Backend: "consensus", UnixNanos: 200},
		{RoundID: "rnd_c", Round: 2, ExampleIndex: 4, LabellerID: 1, Score: 0.25, Backend: "bootstrap-uncertainty", UnixNanos: 300},
	}
	for i := range rounds {
		require.NoError(t, s.AppendRound(session, &rounds[i]))
	}

	got, err := s.ListRounds(session)
	require.NoError(t, err)
	if diff := cmp.Diff(rounds, got); diff != "" {
		t.Errorf("round log mismatch (-want +got):\n%s", diff)
	}

	// Rounds belong to their session only.
	other, err := s.CreateSession(2)
	require.NoError(t, err)
	empty, err := s.ListRounds(other)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAppendRoundValidation(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	session, err := s.CreateSession(2)
	require.NoError(t, err)

	require.Error(t, s.AppendRound(session, nil))

	r := active.SelectionRound{RoundID: "rnd_dup", Round: 1, ExampleIndex: 0, LabellerID: 0, UnixNanos: 1}
	require.NoError(t, s.AppendRound(session, &r))
	assert.Error(t, s.AppendRound(session, &r)) // primary key collision
}
