package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/internal/catalog"
	apperrors "querygate/pkg/errors"
)

func queryWith(params ...catalog.QueryParamSpec) catalog.QuerySpec {
	return catalog.QuerySpec{
		Name:         "q",
		DatabaseName: "db",
		SQL:          "SELECT 1",
		Parameters:   params,
	}
}

func TestBindRequiredMissing(t *testing.T) {
	q := queryWith(catalog.QueryParamSpec{Name: "id", Type: catalog.ParamLong, Required: true, Position: 1})

	_, err := Bind(q, map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequest(err))
	assert.Contains(t, err.Error(), "Required parameter missing: id")

	// Empty string counts as missing.
	_, err = Bind(q, map[string]interface{}{"id": ""})
	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequest(err))
}

func TestBindOptionalMissingBindsNull(t *testing.T) {
	q := queryWith(catalog.QueryParamSpec{Name: "nick", Type: catalog.ParamString, Position: 1})

	binds, err := Bind(q, map[string]interface{}{})
	require.NoError(t, err)
	require.Len(t, binds, 1)
	assert.Nil(t, binds[0])
}

func TestBindDeclarationOrder(t *testing.T) {
	q := queryWith(
		catalog.QueryParamSpec{Name: "a", Type: catalog.ParamString, Required: true, Position: 1},
		catalog.QueryParamSpec{Name: "b", Type: catalog.ParamLong, Required: true, Position: 2},
	)

	binds, err := Bind(q, map[string]interface{}{"b": "2", "a": "one"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"one", int64(2)}, binds)
}

func TestCoerceInteger(t *testing.T) {
	p := catalog.QueryParamSpec{Name: "n", Type: catalog.ParamInteger, Required: true, Position: 1}

	v, err := coerce(p, "42")
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)

	// JSON numbers arrive as float64; integral values pass.
	v, err = coerce(p, float64(7))
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)

	_, err = coerce(p, float64(7.5))
	assert.True(t, apperrors.IsBadRequest(err))

	_, err = coerce(p, "not-a-number")
	assert.True(t, apperrors.IsBadRequest(err))

	// 32-bit overflow is a bad request, not a silent wrap.
	_, err = coerce(p, "2147483648")
	assert.True(t, apperrors.IsBadRequest(err))
}

func TestCoerceLong(t *testing.T) {
	p := catalog.QueryParamSpec{Name: "n", Type: catalog.ParamLong, Position: 1}

	v, err := coerce(p, "9223372036854775807")
	require.NoError(t, err)
	assert.Equal(t, int64(9223372036854775807), v)

	_, err = coerce(p, "12.5")
	assert.True(t, apperrors.IsBadRequest(err))
}

func TestCoerceDecimalKeepsVerbatimString(t *testing.T) {
	p := catalog.QueryParamSpec{Name: "amount", Type: catalog.ParamDecimal, Position: 1}

	// The literal string goes to the driver so precision survives.
	v, err := coerce(p, "123.456789012345678901")
	require.NoError(t, err)
	assert.Equal(t, "123.456789012345678901", v)

	_, err = coerce(p, "12,5")
	assert.True(t, apperrors.IsBadRequest(err))
}

func TestCoerceBooleanStrict(t *testing.T) {
	p := catalog.QueryParamSpec{Name: "flag", Type: catalog.ParamBoolean, Position: 1}

	v, err := coerce(p, "TRUE")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = coerce(p, "false")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	for _, bad := range []string{"1", "yes", "on", ""} {
		_, err = coerce(p, bad)
		assert.Truef(t, apperrors.IsBadRequest(err), "value %q should be rejected", bad)
	}
}

func TestCoerceTimestampLayouts(t *testing.T) {
	p := catalog.QueryParamSpec{Name: "at", Type: catalog.ParamTimestamp, Position: 1}

	for _, ok := range []string{
		"2024-05-01 12:30:45",
		"2024-05-01T12:30:45",
		"2024-05-01 12:30:45.123",
		"2024-05-01",
	} {
		v, err := coerce(p, ok)
		require.NoErrorf(t, err, "layout %q", ok)
		_, isTime := v.(time.Time)
		assert.True(t, isTime)
	}

	_, err := coerce(p, "01/05/2024")
	assert.True(t, apperrors.IsBadRequest(err))
}
