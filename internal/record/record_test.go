package record

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/assetsync/internal/source"
)

func newTestRecord() *Record {
	return New(source.Descriptor{
		ID:          "DCIM/a.jpg",
		Name:        "a.jpg",
		ContentType: "image/jpeg",
		Width:       10,
		Height:      10,
		CreatedAt:   time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC),
	})
}

func TestState(t *testing.T) {
	r := newTestRecord()
	assert.Equal(t, StateNew, r.State())

	require.NoError(t, r.SetContentHash("abc"))
	assert.Equal(t, StateHashed, r.State())

	require.NoError(t, r.MarkUploaded())
	assert.Equal(t, StateUploaded, r.State())
}

func TestNewClampsNegativeDimensions(t *testing.T) {
	r := New(source.Descriptor{ID: "x", Width: -1, Height: -5})
	assert.Equal(t, 0, r.Width)
	assert.Equal(t, 0, r.Height)
}

func TestSetContentHash(t *testing.T) {
	r := newTestRecord()

	require.NoError(t, r.SetContentHash("abc"))
	require.NoError(t, r.SetContentHash("abc"), "setting the same hash is a no-op")

	err := r.SetContentHash("def")
	assert.True(t, errors.Is(err, ErrHashFrozen))
	assert.Equal(t, "abc", r.ContentHash)

	assert.True(t, errors.Is(newTestRecord().SetContentHash(""), ErrInvalid))
}

func TestSetNormalizedType(t *testing.T) {
	r := newTestRecord()
	r.ContentType = "image/heic"

	require.NoError(t, r.SetNormalizedType("image/jpeg"))
	assert.Equal(t, "image/jpeg", r.ContentType)
	assert.True(t, r.Normalized)

	assert.ErrorIs(t, r.SetNormalizedType("image/png"), ErrContentTypeFrozen)

	hashed := newTestRecord()
	require.NoError(t, hashed.SetContentHash("abc"))
	assert.ErrorIs(t, hashed.SetNormalizedType("image/png"), ErrContentTypeFrozen)
}

func TestSetLocationNeverOverwrites(t *testing.T) {
	r := newTestRecord()

	assert.False(t, r.SetLocation(""))
	assert.True(t, r.SetLocation("Brisbane, Australia"))
	assert.False(t, r.SetLocation("Sydney, Australia"))
	assert.Equal(t, "Brisbane, Australia", r.Location)
}

func TestMarkUploadedRequiresHash(t *testing.T) {
	r := newTestRecord()
	assert.ErrorIs(t, r.MarkUploaded(), ErrNotHashed)
	assert.False(t, r.Uploaded)
}

func TestMarshalRoundTripOmitsAbsentFields(t *testing.T) {
	r := newTestRecord()

	data, err := Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"hash"`)
	assert.NotContains(t, string(data), `"location"`)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestUnmarshalCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "{{{"},
		{name: "missing id", data: `{"name":"a.jpg"}`},
		{name: "uploaded without hash", data: `{"assetId":"a","uploaded":true}`},
		{name: "negative width", data: `{"assetId":"a","width":-3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestCheckTransition(t *testing.T) {
	base := newTestRecord()
	require.NoError(t, base.SetContentHash("abc"))
	base.SetLocation("Here")
	require.NoError(t, base.MarkUploaded())

	tests := []struct {
		name    string
		mutate  func(r *Record)
		wantErr bool
	}{
		{name: "unchanged", mutate: func(r *Record) {}},
		{name: "hash changed", mutate: func(r *Record) { r.ContentHash = "def" }, wantErr: true},
		{name: "uploaded regressed", mutate: func(r *Record) { r.Uploaded = false }, wantErr: true},
		{name: "location overwritten", mutate: func(r *Record) { r.Location = "There" }, wantErr: true},
		{name: "name changed", mutate: func(r *Record) { r.OriginalName = "b.jpg" }, wantErr: true},
		{name: "content type changed", mutate: func(r *Record) { r.ContentType = "image/png" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base.Clone()
			tt.mutate(next)
			err := CheckTransition(base, next)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckTransitionAllowsOneNormalization(t *testing.T) {
	prev := newTestRecord()
	prev.ContentType = "image/heic"

	next := prev.Clone()
	require.NoError(t, next.SetNormalizedType("image/jpeg"))
	assert.NoError(t, CheckTransition(prev, next))
	assert.NoError(t, CheckTransition(nil, next))
}
