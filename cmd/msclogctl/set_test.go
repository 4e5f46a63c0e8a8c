package main

import (
	"testing"

	"github.com/flynn/hid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-msclog/internal/constants"
)

func TestParseInterval(t *testing.T) {
	v, err := parseInterval("10")
	require.NoError(t, err)
	assert.Equal(t, uint8(10), v)

	v, err = parseInterval("0")
	require.NoError(t, err)
	assert.Equal(t, uint8(0), v)

	for _, bad := range []string{"256", "-1", "ten", ""} {
		_, err := parseInterval(bad)
		assert.Error(t, err, bad)
	}
}

func TestMatches(t *testing.T) {
	d := &hid.DeviceInfo{
		VendorID:  constants.VendorID,
		ProductID: constants.ProductID,
		UsagePage: constants.HIDUsagePage,
	}
	assert.True(t, matches(d))

	d.UsagePage = 0x01
	assert.False(t, matches(d))
}
