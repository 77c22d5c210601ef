package fuzz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_TotalWeight_Matches_Table_Sum(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 39, totalWeight)
}

func Test_PickKind_Maps_Draws_To_Kinds_At_Cumulative_Boundaries(t *testing.T) {
	t.Parallel()

	// Cumulative weights: 10, 15, 20, 25, 28, 31, 33, 35, 37, 38, 39.
	cases := []struct {
		draw int
		want Kind
	}{
		{0, KindWriteFile},
		{9, KindWriteFile},
		{10, KindDeleteFile},
		{14, KindDeleteFile},
		{15, KindOverwriteFile},
		{19, KindOverwriteFile},
		{20, KindStatefulRead},
		{24, KindStatefulRead},
		{25, KindStatFile},
		{27, KindStatFile},
		{28, KindStatDirectory},
		{30, KindStatDirectory},
		{31, KindDeleteNonexistent},
		{32, KindDeleteNonexistent},
		{33, KindReadStream},
		{34, KindReadStream},
		{35, KindStatelessRead},
		{36, KindStatelessRead},
		{37, KindOpenFile},
		{38, KindWriteAndMkdir},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, pickKind(tc.draw), "draw %d", tc.draw)
	}
}

func Test_PickKind_Selects_Proportionally_When_Draws_Are_Uniform(t *testing.T) {
	t.Parallel()

	counts := make(map[Kind]int)

	for draw := 0; draw < totalWeight; draw++ {
		counts[pickKind(draw)]++
	}

	for _, entry := range weightTable {
		require.Equal(t, entry.weight, counts[entry.kind],
			"%s should own exactly its weight in draw space", entry.kind)
	}
}

func Test_Kind_String_Names_Every_Kind(t *testing.T) {
	t.Parallel()

	for _, entry := range weightTable {
		assert.NotEqual(t, "unknown", entry.kind.String())
	}

	assert.Equal(t, "unknown", Kind(200).String())
}

func Test_Kind_MarshalText_Uses_Operation_Name(t *testing.T) {
	t.Parallel()

	text, marshalErr := KindWriteAndMkdir.MarshalText()
	require.NoError(t, marshalErr)

	assert.Equal(t, "writeAndMkdir", string(text))
}
