// File: internal/ui/merge_test.go
package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoU(t *testing.T) {
	a := Rect{Left: 0, Top: 0, Right: 10, Bottom: 10}

	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.Zero(t, IoU(a, Rect{Left: 20, Top: 20, Right: 30, Bottom: 30}))

	// 64/(100+64-64) overlap for the inset rectangle.
	inset := Rect{Left: 1, Top: 1, Right: 9, Bottom: 9}
	assert.InDelta(t, 0.64, IoU(a, inset), 1e-9)
}

func TestMergeDiscardsOverlappingVisionCandidate(t *testing.T) {
	structural := []Control{
		NewStructural(&fakeNative{rect: Rect{Left: 0, Top: 0, Right: 10, Bottom: 10}, text: "OK"}),
	}
	vision := []Control{
		&VirtualControl{Bounds: Rect{Left: 1, Top: 1, Right: 9, Bottom: 9}, Label: "ok-ish"},
	}

	merged := Merge(structural, vision, 0.5)

	require.Len(t, merged, 1)
	assert.Equal(t, SourceStructural, merged[0].Source())
	assert.Equal(t, "OK", merged[0].Text())
}

func TestMergeKeepsDisjointVisionCandidates(t *testing.T) {
	structural := []Control{
		NewStructural(&fakeNative{rect: Rect{Left: 0, Top: 0, Right: 10, Bottom: 10}, text: "Save"}),
	}
	vision := []Control{
		&VirtualControl{Bounds: Rect{Left: 100, Top: 100, Right: 120, Bottom: 110}, Label: "Chart"},
		&VirtualControl{Bounds: Rect{Left: 2, Top: 2, Right: 8, Bottom: 8}, Label: "dup"},
	}

	merged := Merge(structural, vision, 0.5)

	// Structural first, then the surviving vision candidate in detector order.
	require.Len(t, merged, 2)
	assert.Equal(t, "Save", merged[0].Text())
	assert.Equal(t, "Chart", merged[1].Text())
	assert.Equal(t, SourceVision, merged[1].Source())
}

func TestMergeEmptyStructuralKeepsAllVision(t *testing.T) {
	vision := []Control{
		&VirtualControl{Bounds: Rect{Left: 0, Top: 0, Right: 5, Bottom: 5}, Label: "a"},
		&VirtualControl{Bounds: Rect{Left: 1, Top: 1, Right: 4, Bottom: 4}, Label: "b"},
	}

	merged := Merge(nil, vision, 0.5)

	require.Len(t, merged, 2)
	assert.Equal(t, "a", merged[0].Text())
	assert.Equal(t, "b", merged[1].Text())
}
