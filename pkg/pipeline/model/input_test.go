package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
)

func TestRawInputValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  RawInput
		ok   bool
	}{
		{"complete", RawInput{Width: 2, Height: 2, Channels: 3}, true},
		{"missing channels", RawInput{Width: 2, Height: 2}, false},
		{"too many channels", RawInput{Width: 2, Height: 2, Channels: 5}, false},
		{"bad depth", RawInput{Width: 2, Height: 2, Channels: 1, Depth: "double"}, false},
		{"page height divides", RawInput{Width: 2, Height: 4, Channels: 1, PageHeight: 2}, true},
		{"page height does not divide", RawInput{Width: 2, Height: 5, Channels: 1, PageHeight: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.raw
			err := raw.Validate()
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, DepthUchar, raw.Depth)
				return
			}
			assert.True(t, errors.Is(err, imgerr.ErrConfiguration))
		})
	}
}

func TestCreateInputValidate(t *testing.T) {
	c := CreateInput{Width: 4, Height: 4, Background: "#ff0000"}
	require.NoError(t, c.Validate())
	assert.Equal(t, 4, c.Channels)
	assert.Equal(t, Colour{R: 255, A: 255}, c.BackgroundColour())

	c = CreateInput{Width: 4, Height: 4, Channels: 2}
	assert.Error(t, c.Validate())

	c = CreateInput{Width: MaxDimension + 1, Height: 4}
	assert.Error(t, c.Validate())
}

func TestInputHints(t *testing.T) {
	assert.NoError(t, ValidateDensity(1))
	assert.Error(t, ValidateDensity(0.5))
	assert.Error(t, ValidateDensity(100001))

	assert.NoError(t, ValidatePages(-1))
	assert.Error(t, ValidatePages(0))
	assert.Error(t, ValidatePages(-2))
	assert.NoError(t, ValidatePages(100000))

	assert.NoError(t, ValidatePage(0))
	assert.Error(t, ValidatePage(-1))

	assert.NoError(t, ValidatePixelLimit(0))
	assert.Error(t, ValidatePixelLimit(-1))

	assert.NoError(t, ValidateTimeout(3600))
	assert.Error(t, ValidateTimeout(3601))
}

func TestInputDefaults(t *testing.T) {
	in := NewInput(InputFile)
	assert.Equal(t, 72.0, in.Density)
	assert.Equal(t, 1, in.Pages)
	assert.True(t, in.FailOnError)
}

func TestParseColour(t *testing.T) {
	tests := []struct {
		in   string
		want Colour
		ok   bool
	}{
		{"", Black, true},
		{"white", Colour{255, 255, 255, 255}, true},
		{"#00ff00", Colour{0, 255, 0, 255}, true},
		{"rgba(0,0,255,0.5)", Colour{0, 0, 255, 128}, true},
		{"bogus", Colour{}, false},
	}
	for _, tt := range tests {
		got, err := ParseColour("background", tt.in, Black)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewExtractChannel(t *testing.T) {
	op, err := NewExtractChannel("green")
	require.NoError(t, err)
	assert.Equal(t, 1, op.Channel)

	_, err = NewExtractChannel(7)
	assert.Error(t, err)

	_, err = NewExtractChannel(1.5)
	assert.Error(t, err)
}
