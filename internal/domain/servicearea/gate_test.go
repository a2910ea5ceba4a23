package servicearea

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tianguis/checkout/internal/domain/vendor"
)

func TestCheck_OpenMarketplace(t *testing.T) {
	v := &vendor.Profile{ID: "v1"}
	require.NoError(t, Check(v, "06700"))
	require.NoError(t, Check(v, ""))
}

func TestCheck_ConfiguredColonias(t *testing.T) {
	v := &vendor.Profile{
		ID: "v1",
		ServiceColonias: []vendor.Colonia{
			{ID: "roma-norte-06700", Name: "Roma Norte", Delegacion: "Cuauhtémoc"},
			{ID: "condesa-06140", Name: "Condesa", Delegacion: "Cuauhtémoc"},
		},
	}

	require.NoError(t, Check(v, "06700"))
	require.NoError(t, Check(v, "06140"))

	err := Check(v, "03100")
	var zoneErr *ZoneError
	require.ErrorAs(t, err, &zoneErr)
	assert.Equal(t, "03100", zoneErr.Zip)
	assert.Contains(t, zoneErr.Error(), "03100")
}

func TestCheck_HyphenatedColoniaNames(t *testing.T) {
	// The zip is the segment after the last hyphen even when the colonia
	// name itself contains hyphens.
	v := &vendor.Profile{
		ID: "v1",
		ServiceColonias: []vendor.Colonia{
			{ID: "san-miguel-chapultepec-11850", Name: "San Miguel Chapultepec"},
		},
	}
	require.NoError(t, Check(v, "11850"))
	require.Error(t, Check(v, "chapultepec"))
}
