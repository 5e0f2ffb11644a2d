package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snapetech/plutoguide/internal/config"
)

func numbers(chs []Channel) []int {
	out := make([]int, len(chs))
	for i, ch := range chs {
		out[i] = ch.Number
	}
	return out
}

func TestMergeAll_offsetsOnlyConfiguredRegions(t *testing.T) {
	in := []RegionChannels{
		{Region: "local", Channels: []Channel{{ID: "l1", Number: 50, Region: "local"}}},
		{Region: "uk", Channels: []Channel{{ID: "u1", Number: 50, Region: "uk"}}},
	}
	out := MergeAll(in, config.DefaultRegions())
	assert.Equal(t, []string{"l1", "u1"}, IDs(out))
	assert.Equal(t, []int{50, 7050}, numbers(out))
}

func TestMergeAll_collisionAfterOffset(t *testing.T) {
	in := []RegionChannels{
		{Region: "local", Channels: []Channel{{ID: "l1", Number: 7050, Region: "local"}}},
		{Region: "uk", Channels: []Channel{{ID: "u1", Number: 50, Region: "uk"}}},
	}
	out := MergeAll(in, config.DefaultRegions())
	assert.Equal(t, []int{7050, 7051}, numbers(out))
}

func TestMergeAll_numberAboveOffsetUnchanged(t *testing.T) {
	in := []RegionChannels{
		{Region: "ca", Channels: []Channel{{ID: "c1", Number: 6100, Region: "ca"}}},
	}
	out := MergeAll(in, config.DefaultRegions())
	assert.Equal(t, []int{6100}, numbers(out))
}

func TestMergeAll_firstWinsOnDuplicateID(t *testing.T) {
	in := []RegionChannels{
		{Region: "us_east", Channels: []Channel{{ID: "a", Name: "East", Number: 10, Region: "us_east"}}},
		{Region: "uk", Channels: []Channel{{ID: "a", Name: "UK", Number: 10, Region: "uk"}, {ID: "b", Number: 10, Region: "uk"}}},
	}
	out := MergeAll(in, config.DefaultRegions())
	assert.Equal(t, []string{"a", "b"}, IDs(out))
	assert.Equal(t, "East", out[0].Name)
	assert.Equal(t, []int{10, 7010}, numbers(out))
}

func TestMergeAll_doesNotMutateInput(t *testing.T) {
	uk := []Channel{{ID: "u1", Number: 50, Region: "uk"}}
	MergeAll([]RegionChannels{{Region: "uk", Channels: uk}}, config.DefaultRegions())
	assert.Equal(t, 50, uk[0].Number)
}

func TestMergeAll_unknownRegionNoOffset(t *testing.T) {
	in := []RegionChannels{
		{Region: "mars", Channels: []Channel{{ID: "m", Number: 3}, {ID: "n", Number: 3}}},
	}
	out := MergeAll(in, config.DefaultRegions())
	assert.Equal(t, []int{3, 4}, numbers(out))
	assert.Equal(t, "mars", out[0].Region)
}

func TestMergeCached_order(t *testing.T) {
	c := NewCache()
	c.Put("uk", []Channel{{ID: "a", Number: 1, Region: "uk"}})
	c.Put("local", []Channel{{ID: "a", Number: 1, Region: "local"}})

	out := MergeCached(c, []string{"local", "uk", "missing"}, config.DefaultRegions())
	assert.Len(t, out, 1)
	assert.Equal(t, "local", out[0].Region)
	assert.Equal(t, 1, out[0].Number)

	out = MergeCached(c, nil, config.DefaultRegions())
	assert.Equal(t, "uk", out[0].Region)
	assert.Equal(t, 7001, out[0].Number)
}
